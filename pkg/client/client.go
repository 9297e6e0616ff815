// Package client provides the Marvel Comics API HTTP client with request signing,
// quota tracking, caching, retries and a circuit breaker.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/marvel-client/pkg/cache"
	"github.com/Sternrassler/marvel-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// DefaultBaseURL is the public Marvel API gateway.
const DefaultBaseURL = "https://gateway.marvel.com"

// Prometheus metrics for Marvel client operations.
var (
	marvelRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marvel_requests_total",
		Help: "Total Marvel requests by endpoint and status",
	}, []string{"endpoint", "status"})

	marvelRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marvel_request_duration_seconds",
		Help:    "Marvel request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	marvelErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marvel_errors_total",
		Help: "Total Marvel errors by class",
	}, []string{"class"})

	marvelCircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marvel_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	})
)

// Client is the Marvel API client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	signer     *Signer
	quota      *ratelimit.Tracker // nil without Redis
	cache      *cache.Manager     // nil without Redis
	breaker    *gobreaker.CircuitBreaker
	retry      RetryConfig
	config     Config
	logger     zerolog.Logger

	// last attributionText seen in a response
	attribution atomic.Value
}

// Config holds the client configuration.
type Config struct {
	// Redis client for caching and quota state. Optional: nil disables both.
	Redis *redis.Client

	// API key pair from developer.marvel.com
	PublicKey  string
	PrivateKey string

	// BaseURL of the API gateway
	BaseURL string

	UserAgent string

	// Timeout per HTTP attempt
	Timeout time.Duration

	// DailyQuota is the number of calls allowed per UTC day
	DailyQuota int

	// CacheTTL applies when a response carries no Cache-Control or Expires header
	CacheTTL time.Duration

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration

	// Circuit breaker: consecutive failures before opening, and the open period
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redis *redis.Client, publicKey, privateKey string) Config {
	return Config{
		Redis:           redis,
		PublicKey:       publicKey,
		PrivateKey:      privateKey,
		BaseURL:         DefaultBaseURL,
		UserAgent:       "marvel-client/1.0",
		Timeout:         30 * time.Second,
		DailyQuota:      ratelimit.DefaultDailyLimit,
		CacheTTL:        cache.DefaultTTL,
		MaxRetries:      3,
		InitialBackoff:  1 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// New creates a new Marvel client.
func New(cfg Config) (*Client, error) {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("public and private API keys are required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max_retries must be >= 1 (got %d)", cfg.MaxRetries)
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	logger := log.With().Str("component", "marvel-client").Logger()

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: baseURL,
		signer:  NewSigner(cfg.PublicKey, cfg.PrivateKey),
		retry: RetryConfig{
			MaxAttempts:       cfg.MaxRetries,
			InitialBackoff:    cfg.InitialBackoff,
			MaxBackoff:        30 * cfg.InitialBackoff,
			BackoffMultiplier: 2.0,
		},
		config: cfg,
		logger: logger,
	}

	if cfg.Redis != nil {
		c.quota = ratelimit.NewTracker(cfg.Redis, cfg.DailyQuota, logger)
		c.cache = cache.NewManager(cfg.Redis)
	} else {
		logger.Info().Msg("No Redis configured: cache and quota tracking disabled")
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "marvel-api",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrContextCancelled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			marvelCircuitState.Set(float64(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return c, nil
}

// Do performs an HTTP request with caching, quota tracking, retries and the circuit breaker.
// This is the core request method; signing parameters are added here.
//
// Non-retryable error statuses (4xx, 429) are returned as responses for the caller to handle.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		marvelRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check cache. Fresh entries are served without a call.
	cacheKey := cache.CacheKey{
		Endpoint:    endpoint,
		QueryParams: req.URL.Query(),
	}

	var cachedEntry *cache.CacheEntry
	if c.cache != nil {
		entry, err := c.cache.GetStale(ctx, cacheKey)
		switch {
		case err == nil && !entry.IsExpired():
			marvelRequestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
			c.logger.Debug().Str("endpoint", endpoint).Msg("Serving cached response")
			return cache.EntryToResponse(entry), nil
		case err == nil:
			cachedEntry = entry
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	// Step 2: Check quota
	if c.quota != nil {
		allowed, err := c.quota.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Quota check failed")
			return nil, fmt.Errorf("quota check: %w", err)
		}
		if !allowed {
			c.logger.Warn().
				Str("endpoint", endpoint).
				Msg("Request blocked: daily quota exhausted")
			marvelRequestsTotal.WithLabelValues(endpoint, "quota_exhausted").Inc()
			return nil, ErrQuotaExhausted
		}
	}

	// Step 3: Revalidate stale entries
	if cache.ShouldMakeConditionalRequest(cachedEntry) {
		cache.AddConditionalHeaders(req, cachedEntry)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", cachedEntry.ETag).
			Msg("Making conditional request")
	}

	// Step 4: Headers and signature
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
	c.signer.Sign(req.URL)

	// Step 5: Execute with retry inside the circuit breaker
	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing Marvel request")

	var resp *http.Response
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, retryWithBackoff(ctx, c.retry, func() error {
			var attemptErr error
			resp, attemptErr = c.attempt(ctx, req, endpoint)
			return attemptErr
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			marvelRequestsTotal.WithLabelValues(endpoint, "circuit_open").Inc()
			c.logger.Warn().Str("endpoint", endpoint).Msg("Request rejected by circuit breaker")
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}

	// Step 6: Quota exceeded upstream
	if resp.StatusCode == http.StatusTooManyRequests && c.quota != nil {
		if err := c.quota.MarkExhausted(ctx, ratelimit.NextReset(time.Now())); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to mark quota exhausted")
		}
	}

	// Step 7: Handle 304 Not Modified
	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		cache.NotModifiedResponses.Inc()
		if cachedEntry == nil {
			return nil, &MarvelError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassDecode,
				Message:    "304 Not Modified without a cached response",
			}
		}

		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		newExpires := cache.ParseExpires(resp.Header, c.config.CacheTTL)
		if err := c.cache.UpdateTTL(ctx, cacheKey, newExpires); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}
		cachedEntry.Expires = newExpires
		return cache.EntryToResponse(cachedEntry), nil
	}

	// Step 8: Update cache on success
	if resp.StatusCode == http.StatusOK && c.cache != nil {
		entry, err := cache.ResponseToEntry(resp, c.config.CacheTTL)
		if err != nil {
			resp.Body.Close()
			return nil, &MarvelError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassNetwork,
				Message:    "read response body",
				Err:        err,
			}
		}
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Dur("ttl", entry.TTL()).
				Msg("Cached response")
		}
	}

	return resp, nil
}

// attempt performs one HTTP round trip. Retryable failures are returned as errors
// with the response body closed.
func (c *Client) attempt(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		marvelErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		marvelRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &MarvelError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}

	if c.quota != nil {
		if _, err := c.quota.RecordCall(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record quota call")
		}
	}

	status := strconv.Itoa(resp.StatusCode)
	marvelRequestsTotal.WithLabelValues(endpoint, status).Inc()

	if resp.StatusCode < 400 {
		return resp, nil
	}

	errClass := classifyStatus(resp.StatusCode)
	marvelErrorsTotal.WithLabelValues(string(errClass)).Inc()
	c.logger.Warn().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Str("error_class", string(errClass)).
		Msg("Marvel request error")

	if shouldRetry(errClass) {
		return nil, errorFromResponse(resp)
	}

	// Don't retry client errors - let caller handle status
	return resp, nil
}

// Get performs a GET request to a Marvel endpoint, e.g. "/v1/public/characters".
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	u := c.baseURL.JoinPath(strings.TrimPrefix(endpoint, "/"))
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// Attribution returns the attribution text of the most recent decoded response.
func (c *Client) Attribution() string {
	if s, ok := c.attribution.Load().(string); ok {
		return s
	}
	return ""
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, nil when caching is disabled.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

// GetQuota returns the quota tracker, nil when quota tracking is disabled.
func (c *Client) GetQuota() *ratelimit.Tracker {
	return c.quota
}
