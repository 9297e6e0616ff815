package pagination

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Sternrassler/marvel-client/pkg/marvel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticFetcher serves pages from an in-memory list of characters.
type staticFetcher struct {
	mu       sync.Mutex
	total    int
	failAt   int
	requests []int

	// short maps an offset to the number of results served there.
	short map[int]int
	// available caps the results actually served while total is still reported (0 = total).
	available int
}

func (f *staticFetcher) FetchPage(_ context.Context, offset, limit int) (*marvel.Page, error) {
	f.mu.Lock()
	f.requests = append(f.requests, offset)
	f.mu.Unlock()

	if f.failAt > 0 && offset == f.failAt {
		return nil, errors.New("server error")
	}

	end := f.total
	if f.available > 0 {
		end = f.available
	}
	n := limit
	if short, ok := f.short[offset]; ok && short < n {
		n = short
	}
	if offset+n > end {
		n = end - offset
	}
	if n < 0 {
		n = 0
	}
	page := makePage(offset, n, f.total)
	page.Limit = limit
	return page, nil
}

func TestBatchFetcher_FetchAll(t *testing.T) {
	fetcher := &staticFetcher{total: 245}
	bf := NewBatchFetcher(fetcher, BatchConfig{MaxConcurrency: 3, PageSize: 50})

	characters, err := bf.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, characters, 245)
	for i, c := range characters {
		assert.Equal(t, 1000+i, c.ID)
	}
	assert.Len(t, fetcher.requests, 5)
}

func TestBatchFetcher_SinglePage(t *testing.T) {
	fetcher := &staticFetcher{total: 12}
	bf := NewBatchFetcher(fetcher, DefaultBatchConfig())

	characters, err := bf.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, characters, 12)
	assert.Equal(t, []int{0}, fetcher.requests)
}

func TestBatchFetcher_MaxItems(t *testing.T) {
	fetcher := &staticFetcher{total: 1000}
	bf := NewBatchFetcher(fetcher, BatchConfig{PageSize: 100, MaxItems: 250})

	characters, err := bf.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, characters, 250)
	assert.Len(t, fetcher.requests, 3)
}

func TestBatchFetcher_FirstPageError(t *testing.T) {
	bf := NewBatchFetcher(&staticFetcher{total: 0, failAt: -1}, DefaultBatchConfig())
	characters, err := bf.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, characters)

	failing := NewBatchFetcher(failingFetcher{}, DefaultBatchConfig())
	_, err = failing.FetchAll(context.Background())
	assert.Error(t, err)
}

func TestBatchFetcher_PartialResult(t *testing.T) {
	fetcher := &staticFetcher{total: 300, failAt: 200}
	bf := NewBatchFetcher(fetcher, BatchConfig{MaxConcurrency: 1, PageSize: 100})

	characters, err := bf.FetchAll(context.Background())
	require.Error(t, err)
	assert.Len(t, characters, 200)
}

func TestBatchFetcher_ShortMiddlePage(t *testing.T) {
	fetcher := &staticFetcher{total: 40, short: map[int]int{10: 7}}
	bf := NewBatchFetcher(fetcher, BatchConfig{MaxConcurrency: 2, PageSize: 10})

	characters, err := bf.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, characters, 40)
	for i, c := range characters {
		assert.Equal(t, 1000+i, c.ID, "position %d", i)
	}
	assert.Contains(t, fetcher.requests, 17, "gap after the short page is fetched")
}

func TestBatchFetcher_ServerRunsDry(t *testing.T) {
	tests := []struct {
		name      string
		fetcher   *staticFetcher
		wantCount int
	}{
		{
			name:      "fewer characters than total",
			fetcher:   &staticFetcher{total: 40, available: 25},
			wantCount: 25,
		},
		{
			name:      "empty first page",
			fetcher:   &staticFetcher{total: 40, short: map[int]int{0: 0}},
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bf := NewBatchFetcher(tt.fetcher, BatchConfig{MaxConcurrency: 2, PageSize: 10})

			characters, err := bf.FetchAll(context.Background())
			require.ErrorIs(t, err, ErrIncomplete)
			assert.Len(t, characters, tt.wantCount)
		})
	}
}

type failingFetcher struct{}

func (failingFetcher) FetchPage(context.Context, int, int) (*marvel.Page, error) {
	return nil, errors.New("unreachable")
}
