package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/marvel-client/internal/testutil"
	"github.com/Sternrassler/marvel-client/pkg/cache"
	"github.com/Sternrassler/marvel-client/pkg/marvel"
	"github.com/Sternrassler/marvel-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   13, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func testConfig(baseURL string, redisClient *redis.Client) Config {
	cfg := DefaultConfig(redisClient, testutil.TestPublicKey, testutil.TestPrivateKey)
	cfg.BaseURL = baseURL
	cfg.Timeout = 5 * time.Second
	cfg.InitialBackoff = time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// countingServer answers with handler and counts requests.
func countingServer(t *testing.T, handler func(n int32, w http.ResponseWriter, r *http.Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(hits.Add(1), w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func writeMock(w http.ResponseWriter, resp testutil.MockResponse) {
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write([]byte(resp.Body))
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name:        "missing public key",
			mutate:      func(c *Config) { c.PublicKey = "" },
			expectError: true,
			errorMsg:    "public and private API keys are required",
		},
		{
			name:        "missing private key",
			mutate:      func(c *Config) { c.PrivateKey = "" },
			expectError: true,
			errorMsg:    "public and private API keys are required",
		},
		{
			name:        "relative base url",
			mutate:      func(c *Config) { c.BaseURL = "/v1/public" },
			expectError: true,
			errorMsg:    "invalid base url",
		},
		{
			name:        "zero retries",
			mutate:      func(c *Config) { c.MaxRetries = 0 },
			expectError: true,
			errorMsg:    "max_retries must be >= 1",
		},
		{
			name:        "empty base url uses default",
			mutate:      func(c *Config) { c.BaseURL = "" },
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(nil, "pub", "priv")
			tt.mutate(&cfg)

			client, err := New(cfg)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client.GetCache() != nil || client.GetQuota() != nil {
				t.Error("cache and quota should be disabled without Redis")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(nil, "pub", "priv")

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.DailyQuota != ratelimit.DefaultDailyLimit {
		t.Errorf("DailyQuota = %d, want %d", cfg.DailyQuota, ratelimit.DefaultDailyLimit)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.BreakerFailures != 5 {
		t.Errorf("BreakerFailures = %d, want 5", cfg.BreakerFailures)
	}
	if cfg.BreakerCooldown != 30*time.Second {
		t.Errorf("BreakerCooldown = %v, want 30s", cfg.BreakerCooldown)
	}
}

func TestDo_SignsRequest(t *testing.T) {
	mock := testutil.NewMockMarvel(45)
	defer mock.Close()
	mock.RequireSignature()

	c := newTestClient(t, testConfig(mock.URL(), nil))

	if _, err := c.FetchPage(context.Background(), 0, 20); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	q := mock.GetLastQuery()
	for _, param := range []string{"ts", "apikey", "hash"} {
		if len(q[param]) != 1 || q[param][0] == "" {
			t.Errorf("missing signing parameter %q in %v", param, q)
		}
	}
	header := mock.GetLastRequestHeader()
	if ua := header.Get("User-Agent"); ua != "marvel-client/1.0" {
		t.Errorf("User-Agent = %q, want marvel-client/1.0", ua)
	}
	if accept := header.Get("Accept"); accept != "application/json" {
		t.Errorf("Accept = %q, want application/json", accept)
	}
}

func TestDo_WrongKeysRejected(t *testing.T) {
	mock := testutil.NewMockMarvel(45)
	defer mock.Close()
	mock.RequireSignature()

	cfg := testConfig(mock.URL(), nil)
	cfg.PrivateKey = "wrong"
	c := newTestClient(t, cfg)

	_, err := c.FetchPage(context.Background(), 0, 20)

	var me *MarvelError
	if !errors.As(err, &me) {
		t.Fatalf("expected MarvelError, got %v", err)
	}
	if me.StatusCode != http.StatusUnauthorized || me.Code != "InvalidCredentials" {
		t.Errorf("got status %d code %q, want 401 InvalidCredentials", me.StatusCode, me.Code)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("client errors must not be retried, got %d requests", mock.GetRequestCount())
	}
}

func TestFetchPage(t *testing.T) {
	mock := testutil.NewMockMarvel(45)
	defer mock.Close()

	c := newTestClient(t, testConfig(mock.URL(), nil))
	ctx := context.Background()

	tests := []struct {
		name      string
		offset    int
		wantCount int
		wantFirst int
	}{
		{"first page", 0, 20, 1011000},
		{"second page", 20, 20, 1011020},
		{"last partial page", 40, 5, 1011040},
		{"past the end", 60, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := c.FetchPage(ctx, tt.offset, 20)
			if err != nil {
				t.Fatalf("FetchPage() error = %v", err)
			}
			if page.Offset != tt.offset || page.Total != 45 || page.Limit != 20 {
				t.Errorf("page = offset %d limit %d total %d, want %d/20/45", page.Offset, page.Limit, page.Total, tt.offset)
			}
			if page.Count != tt.wantCount || len(page.Results) != tt.wantCount {
				t.Errorf("count = %d (%d results), want %d", page.Count, len(page.Results), tt.wantCount)
			}
			if tt.wantCount > 0 && page.Results[0].ID != tt.wantFirst {
				t.Errorf("first ID = %d, want %d", page.Results[0].ID, tt.wantFirst)
			}
		})
	}

	if c.Attribution() != testutil.Attribution {
		t.Errorf("Attribution() = %q, want %q", c.Attribution(), testutil.Attribution)
	}
}

func TestCharacterQuery_Values(t *testing.T) {
	tests := []struct {
		name    string
		query   CharacterQuery
		wantErr bool
		want    map[string]string
	}{
		{
			name:  "plain",
			query: CharacterQuery{Offset: 20, Limit: 20},
			want:  map[string]string{"offset": "20", "limit": "20"},
		},
		{
			name:  "filtered",
			query: CharacterQuery{Offset: 0, Limit: 100, NameStartsWith: "Spi", OrderBy: "-modified"},
			want:  map[string]string{"offset": "0", "limit": "100", "nameStartsWith": "Spi", "orderBy": "-modified"},
		},
		{"negative offset", CharacterQuery{Offset: -1, Limit: 20}, true, nil},
		{"zero limit", CharacterQuery{Limit: 0}, true, nil},
		{"limit over max", CharacterQuery{Limit: marvel.MaxPageLimit + 1}, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := tt.query.Values()
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Values() error = %v", err)
			}
			if len(values) != len(tt.want) {
				t.Errorf("Values() = %v, want %v", values, tt.want)
			}
			for k, v := range tt.want {
				if values.Get(k) != v {
					t.Errorf("%s = %q, want %q", k, values.Get(k), v)
				}
			}
		})
	}
}

func TestFiltered_FetchPage(t *testing.T) {
	mock := testutil.NewMockMarvel(0)
	defer mock.Close()
	mock.SetCharacters([]marvel.Character{
		{ID: 1, Name: "Spider-Man"},
		{ID: 2, Name: "Hulk"},
		{ID: 3, Name: "Spider-Woman"},
	})

	c := newTestClient(t, testConfig(mock.URL(), nil))

	page, err := c.Filtered("spider", "name").FetchPage(context.Background(), 0, 20)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if page.Total != 2 || len(page.Results) != 2 {
		t.Fatalf("got total %d with %d results, want 2/2", page.Total, len(page.Results))
	}

	q := mock.GetLastQuery()
	if q["nameStartsWith"][0] != "spider" || q["orderBy"][0] != "name" {
		t.Errorf("filter parameters not sent: %v", q)
	}
}

func TestFetchCharacter(t *testing.T) {
	mock := testutil.NewMockMarvel(5)
	defer mock.Close()

	c := newTestClient(t, testConfig(mock.URL(), nil))
	ctx := context.Background()

	character, err := c.FetchCharacter(ctx, 1011002)
	if err != nil {
		t.Fatalf("FetchCharacter() error = %v", err)
	}
	if character.Name != "Hero 0003" {
		t.Errorf("Name = %q, want Hero 0003", character.Name)
	}

	_, err = c.FetchCharacter(ctx, 42)
	var me *MarvelError
	if !errors.As(err, &me) || me.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 MarvelError, got %v", err)
	}
}

func TestDo_RetryOnServerError(t *testing.T) {
	page := testutil.NewPageResponse(marvel.Page{Offset: 0, Limit: 20, Total: 0, Count: 0, Results: []marvel.Character{}})
	srv, hits := countingServer(t, func(n int32, w http.ResponseWriter, r *http.Request) {
		if n < 3 {
			writeMock(w, testutil.NewServerErrorResponse())
			return
		}
		writeMock(w, page)
	})

	c := newTestClient(t, testConfig(srv.URL, nil))

	if _, err := c.FetchPage(context.Background(), 0, 20); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", hits.Load())
	}
}

func TestDo_RetryExhausted(t *testing.T) {
	srv, hits := countingServer(t, func(_ int32, w http.ResponseWriter, r *http.Request) {
		writeMock(w, testutil.NewServerErrorResponse())
	})

	c := newTestClient(t, testConfig(srv.URL, nil))

	_, err := c.FetchPage(context.Background(), 0, 20)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if classOf(err) != ErrorClassServer {
		t.Errorf("error class = %q, want server", classOf(err))
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", hits.Load())
	}
}

func TestDo_QuotaExceededNotRetried(t *testing.T) {
	srv, hits := countingServer(t, func(_ int32, w http.ResponseWriter, r *http.Request) {
		writeMock(w, testutil.NewQuotaExceededResponse())
	})

	c := newTestClient(t, testConfig(srv.URL, nil))

	_, err := c.FetchPage(context.Background(), 0, 20)
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 request, got %d", hits.Load())
	}
}

func TestDo_CircuitBreakerOpens(t *testing.T) {
	srv, hits := countingServer(t, func(_ int32, w http.ResponseWriter, r *http.Request) {
		writeMock(w, testutil.NewServerErrorResponse())
	})

	cfg := testConfig(srv.URL, nil)
	cfg.MaxRetries = 1
	cfg.BreakerFailures = 2
	cfg.BreakerCooldown = time.Minute
	c := newTestClient(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.FetchPage(ctx, 0, 20); errors.Is(err, ErrCircuitOpen) || err == nil {
			t.Fatalf("request %d: expected server error, got %v", i+1, err)
		}
	}

	_, err := c.FetchPage(ctx, 0, 20)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("open breaker must not reach the server, got %d requests", hits.Load())
	}
}

func TestDo_InvalidPage(t *testing.T) {
	srv, _ := countingServer(t, func(_ int32, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":200,"status":"Ok","data":{"offset":0,"limit":20,"total":1,"count":2,"results":[]}}`))
	})

	c := newTestClient(t, testConfig(srv.URL, nil))

	_, err := c.FetchPage(context.Background(), 0, 20)
	if classOf(err) != ErrorClassDecode {
		t.Errorf("error class = %q, want decode (err=%v)", classOf(err), err)
	}
	if !errors.Is(err, marvel.ErrInvalidPage) {
		t.Errorf("expected marvel.ErrInvalidPage, got %v", err)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	srv, hits := countingServer(t, func(_ int32, w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	c := newTestClient(t, testConfig(srv.URL, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchPage(ctx, 0, 20)
	if !errors.Is(err, ErrContextCancelled) {
		t.Fatalf("expected ErrContextCancelled, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("cancelled requests must not be retried, got %d requests", hits.Load())
	}
}

func TestDo_CacheHit(t *testing.T) {
	redisClient := setupTestRedis(t)
	mock := testutil.NewMockMarvel(45)
	defer mock.Close()

	c := newTestClient(t, testConfig(mock.URL(), redisClient))
	ctx := context.Background()

	first, err := c.FetchPage(ctx, 20, 20)
	if err != nil {
		t.Fatalf("first FetchPage() error = %v", err)
	}
	second, err := c.FetchPage(ctx, 20, 20)
	if err != nil {
		t.Fatalf("second FetchPage() error = %v", err)
	}

	if mock.GetRequestCount() != 1 {
		t.Errorf("fresh cache entry should be served locally, got %d requests", mock.GetRequestCount())
	}
	if second.Results[0].ID != first.Results[0].ID {
		t.Errorf("cached page differs: %d vs %d", second.Results[0].ID, first.Results[0].ID)
	}
}

func TestDo_RevalidatesStaleEntry(t *testing.T) {
	redisClient := setupTestRedis(t)
	mock := testutil.NewMockMarvel(45)
	defer mock.Close()

	c := newTestClient(t, testConfig(mock.URL(), redisClient))
	ctx := context.Background()

	if _, err := c.FetchPage(ctx, 0, 20); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	key := cache.CacheKey{
		Endpoint:    CharactersEndpoint,
		QueryParams: map[string][]string{"offset": {"0"}, "limit": {"20"}},
	}
	if err := c.GetCache().UpdateTTL(ctx, key, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("UpdateTTL() error = %v", err)
	}

	page, err := c.FetchPage(ctx, 0, 20)
	if err != nil {
		t.Fatalf("FetchPage() after expiry error = %v", err)
	}
	if len(page.Results) != 20 {
		t.Errorf("revalidated page has %d results, want 20", len(page.Results))
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("expected 2 requests, got %d", mock.GetRequestCount())
	}
	if mock.GetConditionalCount() != 1 {
		t.Errorf("expected 1 conditional request, got %d", mock.GetConditionalCount())
	}

	entry, err := c.GetCache().Get(ctx, key)
	if err != nil {
		t.Fatalf("entry should be fresh again after 304: %v", err)
	}
	if entry.IsExpired() {
		t.Error("entry still expired after 304")
	}
}

func TestDo_QuotaBlocksRequests(t *testing.T) {
	redisClient := setupTestRedis(t)
	mock := testutil.NewMockMarvel(45)
	defer mock.Close()

	cfg := testConfig(mock.URL(), redisClient)
	cfg.DailyQuota = 1
	c := newTestClient(t, cfg)
	ctx := context.Background()

	if _, err := c.FetchPage(ctx, 0, 20); err != nil {
		t.Fatalf("first FetchPage() error = %v", err)
	}

	_, err := c.FetchPage(ctx, 20, 20)
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("blocked request reached the server (%d requests)", mock.GetRequestCount())
	}
}

func TestDo_429MarksQuotaExhausted(t *testing.T) {
	redisClient := setupTestRedis(t)
	srv, hits := countingServer(t, func(_ int32, w http.ResponseWriter, r *http.Request) {
		writeMock(w, testutil.NewQuotaExceededResponse())
	})

	c := newTestClient(t, testConfig(srv.URL, redisClient))
	ctx := context.Background()

	if _, err := c.FetchPage(ctx, 0, 20); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted from 429, got %v", err)
	}

	state, err := c.GetQuota().GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.NeedsCriticalBlock() {
		t.Error("quota should be blocked after 429")
	}

	if _, err := c.FetchPage(ctx, 20, 20); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected local ErrQuotaExhausted, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 request, got %d", hits.Load())
	}
}
