package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/marvel-client/pkg/client"
	"github.com/Sternrassler/marvel-client/pkg/marvel"
	"github.com/Sternrassler/marvel-client/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

type serveArgs struct {
	root *rootArgs

	Port string
}

func (sa *serveArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sa.Port, "port", "", "Listen port (default PORT or 8080)")
}

func newServeCmd(root *rootArgs) *cobra.Command {
	args := &serveArgs{root: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the character list over HTTP",
		Long: `Serve the character list over HTTP with caching, quota tracking and retries.

Endpoints:
  GET /v1/characters?offset=&limit=&nameStartsWith=&orderBy=
  GET /v1/characters/{id}
  GET /v1/quota
  GET /health, /ready, /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return args.run(cmd)
		},
	}
	args.AddFlags(cmd)

	return cmd
}

func (sa *serveArgs) run(cmd *cobra.Command) error {
	cfg := sa.root.cfg
	logger := log.With().Str("component", "proxy").Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	port := sa.Port
	if port == "" {
		port = cfg.Port
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newRouter(b.client, b.redis, cfg.PageSize),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Bool("redis", b.redis != nil).Msg("Starting proxy server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down proxy server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter wires the HTTP endpoints. rdb may be nil.
func newRouter(c *client.Client, rdb *redis.Client, pageSize int) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", readyHandler(rdb)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler())

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/characters", charactersHandler(c, pageSize)).Methods(http.MethodGet)
	api.HandleFunc("/characters/{id:[0-9]+}", characterHandler(c)).Methods(http.MethodGet)
	api.HandleFunc("/quota", quotaHandler(c)).Methods(http.MethodGet)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rdb != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func charactersHandler(c *client.Client, pageSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		offset, err := intParam(q.Get("offset"), 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "offset: "+err.Error())
			return
		}
		limit, err := intParam(q.Get("limit"), pageSize)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit: "+err.Error())
			return
		}

		query := client.CharacterQuery{
			Offset:         offset,
			Limit:          limit,
			NameStartsWith: q.Get("nameStartsWith"),
			OrderBy:        q.Get("orderBy"),
		}
		if _, err := query.Values(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		wrapper, err := c.FetchCharacters(r.Context(), query)
		if err != nil {
			writeUpstreamError(w, r, err)
			return
		}

		writePage(w, &wrapper.Data, wrapper.AttributionText)
	}
}

func characterHandler(c *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(mux.Vars(r)["id"])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid character id")
			return
		}

		character, err := c.FetchCharacter(r.Context(), id)
		if err != nil {
			writeUpstreamError(w, r, err)
			return
		}

		setAttribution(w, c.Attribution())
		writeJSON(w, http.StatusOK, character)
	}
}

func quotaHandler(c *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tracker := c.GetQuota()
		if tracker == nil {
			writeError(w, http.StatusNotFound, "quota tracking disabled (no REDIS_URL)")
			return
		}

		state, err := tracker.GetState(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "quota state unavailable")
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func intParam(s string, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return n, nil
}

// upstreamStatus maps a client error to the status returned to proxy callers.
func upstreamStatus(err error) int {
	var me *client.MarvelError
	switch {
	case errors.Is(err, client.ErrQuotaExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, client.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, client.ErrContextCancelled), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.As(err, &me) && me.ErrorClass == client.ErrorClassClient &&
		me.StatusCode >= 400 && me.StatusCode < 500:
		return me.StatusCode
	default:
		return http.StatusBadGateway
	}
}

func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	status := upstreamStatus(err)
	log.Warn().
		Str("component", "proxy").
		Str("path", r.URL.Path).
		Int("status", status).
		Err(err).
		Msg("Upstream request failed")
	writeError(w, status, err.Error())
}

func writePage(w http.ResponseWriter, page *marvel.Page, attribution string) {
	setAttribution(w, attribution)
	writeJSON(w, http.StatusOK, page)
}

func setAttribution(w http.ResponseWriter, text string) {
	if text != "" {
		w.Header().Set("X-Marvel-Attribution", text)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}
