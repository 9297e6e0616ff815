// Package testutil provides testing utilities for the Marvel client.
package testutil

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/marvel-client/pkg/marvel"
)

// Test key pair accepted by the mock when signature checking is enabled.
const (
	TestPublicKey  = "test-public-key"
	TestPrivateKey = "test-private-key"
)

// Attribution is the attributionText served by the mock.
const Attribution = "Data provided by Marvel. © 2024 MARVEL"

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockMarvel is a configurable mock Marvel API for testing.
// Without overrides it serves the character catalog page by page.
type MockMarvel struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	characters     []marvel.Character
	checkSignature bool

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	LastQuery         map[string][]string
}

// NewMockMarvel creates a mock serving total generated characters.
func NewMockMarvel(total int) *MockMarvel {
	mock := &MockMarvel{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		characters: Characters(total),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastQuery = r.URL.Query()

		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		checkSignature := mock.checkSignature
		mock.mu.Unlock()

		if checkSignature && !validSignature(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"code":    "InvalidCredentials",
				"message": "That hash, timestamp and key combination is invalid.",
			})
			return
		}

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// Characters generates n characters with IDs 1011000+i and names "Hero 0001".
func Characters(n int) []marvel.Character {
	out := make([]marvel.Character, n)
	for i := range out {
		id := 1011000 + i
		out[i] = marvel.Character{
			ID:          id,
			Name:        fmt.Sprintf("Hero %04d", i+1),
			Description: fmt.Sprintf("Generated character number %d", i+1),
			Thumbnail: marvel.Image{
				Path:      fmt.Sprintf("http://i.annihil.us/u/prod/marvel/i/mg/%d", id),
				Extension: "jpg",
			},
			ResourceURI: fmt.Sprintf("http://gateway.marvel.com/v1/public/characters/%d", id),
		}
	}
	return out
}

// URL returns the mock server URL.
func (m *MockMarvel) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockMarvel) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockMarvel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.LastQuery = nil
}

// RequireSignature makes the mock reject requests not signed with the test key pair.
func (m *MockMarvel) RequireSignature() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkSignature = true
}

// SetCharacters replaces the served catalog.
func (m *MockMarvel) SetCharacters(characters []marvel.Character) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.characters = characters
}

// SetHandler sets a custom handler for a specific path.
func (m *MockMarvel) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// ClearHandler removes a custom handler, restoring the catalog for path.
func (m *MockMarvel) ClearHandler(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, path)
}

// SetResponse configures a simple response for a path.
func (m *MockMarvel) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockMarvel) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockMarvel) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetLastRequestHeader returns the headers of the last request.
func (m *MockMarvel) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// GetLastQuery returns the query parameters of the last request.
func (m *MockMarvel) GetLastQuery() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// defaultHandler serves the character list and single characters.
func (m *MockMarvel) defaultHandler(w http.ResponseWriter, r *http.Request) {
	const listPath = "/v1/public/characters"

	switch {
	case r.URL.Path == listPath:
		m.serveList(w, r)
	case strings.HasPrefix(r.URL.Path, listPath+"/"):
		m.serveCharacter(w, strings.TrimPrefix(r.URL.Path, listPath+"/"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{
			"code":   "ResourceNotFound",
			"status": fmt.Sprintf("%s does not exist", r.URL.Path),
		})
	}
}

func (m *MockMarvel) serveList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusConflict, map[string]any{"code": 409, "status": "You must pass a valid offset."})
			return
		}
		offset = n
	}

	limit := 20
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusConflict, map[string]any{"code": 409, "status": "You must pass an integer limit greater than 0."})
			return
		}
		if n > marvel.MaxPageLimit {
			writeJSON(w, http.StatusConflict, map[string]any{"code": 409, "status": "You may not request more than 100 items."})
			return
		}
		limit = n
	}

	m.mu.RLock()
	all := m.characters
	m.mu.RUnlock()

	if prefix := q.Get("nameStartsWith"); prefix != "" {
		var filtered []marvel.Character
		for _, c := range all {
			if strings.HasPrefix(strings.ToLower(c.Name), strings.ToLower(prefix)) {
				filtered = append(filtered, c)
			}
		}
		all = filtered
	}

	results := []marvel.Character{}
	if offset < len(all) {
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		results = all[offset:end]
	}

	m.writePage(w, r, marvel.Page{
		Offset:  offset,
		Limit:   limit,
		Total:   len(all),
		Count:   len(results),
		Results: results,
	})
}

func (m *MockMarvel) serveCharacter(w http.ResponseWriter, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"code": 404, "status": "We couldn't find that character"})
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.characters {
		if c.ID == id {
			body, _ := json.Marshal(marvel.DataWrapper{
				Code:            200,
				Status:          "Ok",
				AttributionText: Attribution,
				Data:            marvel.Page{Limit: 20, Total: 1, Count: 1, Results: []marvel.Character{c}},
			})
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write(body)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"code": 404, "status": "We couldn't find that character"})
}

// writePage answers with the envelope, or 304 when If-None-Match matches the page ETag.
func (m *MockMarvel) writePage(w http.ResponseWriter, r *http.Request, page marvel.Page) {
	body, err := json.Marshal(page)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sum := md5.Sum(body)
	etag := hex.EncodeToString(sum[:])

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "max-age=300")

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	envelope, _ := json.Marshal(marvel.DataWrapper{
		Code:            200,
		Status:          "Ok",
		ETag:            etag,
		Copyright:       "© 2024 MARVEL",
		AttributionText: Attribution,
		Data:            page,
	})
	w.WriteHeader(http.StatusOK)
	w.Write(envelope)
}

func validSignature(r *http.Request) bool {
	q := r.URL.Query()
	ts := q.Get("ts")
	if ts == "" || q.Get("apikey") != TestPublicKey {
		return false
	}
	sum := md5.Sum([]byte(ts + TestPrivateKey + TestPublicKey))
	return q.Get("hash") == hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NewPageResponse creates a 200 OK envelope around page.
func NewPageResponse(page marvel.Page) MockResponse {
	body, _ := json.Marshal(marvel.DataWrapper{
		Code:            200,
		Status:          "Ok",
		AttributionText: Attribution,
		Data:            page,
	})
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers: map[string]string{
			"ETag":         `"test-etag-123"`,
			"Expires":      time.Now().Add(5 * time.Minute).Format(http.TimeFormat),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewQuotaExceededResponse creates a 429 Too Many Requests response.
func NewQuotaExceededResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"code": "RequestThrottled", "message": "You have exceeded your rate limit. Please try again later."}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"code": 500, "status": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewInvalidCredentialsResponse creates a 401 response as sent for a bad hash.
func NewInvalidCredentialsResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"code": "InvalidCredentials", "message": "That hash, timestamp and key combination is invalid."}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
