package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesLoadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marvel_pages_loaded_total",
		Help: "Total pages merged into character lists by kind (initial, next)",
	}, []string{"kind"})

	pageLoadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marvel_page_load_failures_total",
		Help: "Total failed page loads by kind (initial, next)",
	}, []string{"kind"})

	pageLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marvel_page_load_duration_seconds",
		Help:    "Time from fetch start to merge of a page",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	charactersLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marvel_characters_loaded",
		Help: "Characters accumulated by the most recently updated list",
	})
)
