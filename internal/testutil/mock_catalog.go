// Package testutil provides a mock catalog API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/artic-client/pkg/catalog"
)

// MockResponse overrides the answer for one request.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCatalog serves /artworks pages out of an in-memory record list.
type MockCatalog struct {
	server *httptest.Server

	mu        sync.Mutex
	records   []catalog.Record
	pageSize  int
	overrides map[int][]MockResponse // page -> queued responses
	etag      string
	headers   map[string]string

	requests         map[int]int
	order            []int
	conditionalCount int
	lastHeader       http.Header
}

// NewMockCatalog creates a server with n records (IDs 1..n) split into pages
// of pageSize. The server also answers any page past the end with an empty
// data array, like the real API.
func NewMockCatalog(n, pageSize int) *MockCatalog {
	return NewMockCatalogWithRecords(Records(n), pageSize)
}

// NewMockCatalogWithRecords serves the given records.
func NewMockCatalogWithRecords(records []catalog.Record, pageSize int) *MockCatalog {
	m := &MockCatalog{
		records:   records,
		pageSize:  pageSize,
		overrides: make(map[int][]MockResponse),
		headers:   make(map[string]string),
		requests:  make(map[int]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Records builds n records with IDs 1..n and every optional field absent.
func Records(n int) []catalog.Record {
	records := make([]catalog.Record, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, catalog.Record{ID: i, Title: fmt.Sprintf("Artwork %d", i)})
	}
	return records
}

// URL returns the base URL to configure a client with.
func (m *MockCatalog) URL() string {
	return m.server.URL + "/api/v1"
}

// Close shuts down the server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// QueueResponse makes the next request for page answer with resp instead of
// data. Queued responses are consumed in order.
func (m *MockCatalog) QueueResponse(page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[page] = append(m.overrides[page], resp)
}

// SetETag enables ETag revalidation with the given tag.
func (m *MockCatalog) SetETag(etag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.etag = etag
}

// SetHeader adds a header to every data response.
func (m *MockCatalog) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// Requests returns the number of requests received for page.
func (m *MockCatalog) Requests(page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[page]
}

// TotalRequests returns the number of requests received.
func (m *MockCatalog) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// RequestOrder returns the pages requested, in arrival order.
func (m *MockCatalog) RequestOrder() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.order...)
}

// ConditionalCount returns the number of requests carrying If-None-Match.
func (m *MockCatalog) ConditionalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conditionalCount
}

// LastHeader returns the headers of the last request.
func (m *MockCatalog) LastHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader.Clone()
}

func (m *MockCatalog) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/v1/artworks" {
		http.NotFound(w, r)
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	m.mu.Lock()
	m.requests[page]++
	m.order = append(m.order, page)
	m.lastHeader = r.Header.Clone()
	if r.Header.Get("If-None-Match") != "" {
		m.conditionalCount++
	}

	var override *MockResponse
	if queue := m.overrides[page]; len(queue) > 0 {
		override = &queue[0]
		m.overrides[page] = queue[1:]
	}
	etag := m.etag
	headers := make(map[string]string, len(m.headers))
	for k, v := range m.headers {
		headers[k] = v
	}
	m.mu.Unlock()

	if override != nil {
		if override.Delay > 0 {
			select {
			case <-time.After(override.Delay):
			case <-r.Context().Done():
				return
			}
		}
		for k, v := range override.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(override.StatusCode)
		_, _ = w.Write([]byte(override.Body))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	for k, v := range headers {
		w.Header().Set(k, v)
	}

	if etag != "" {
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	limit := m.pageSize
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	_ = json.NewEncoder(w).Encode(BuildResponse(m.records, page, limit))
}

// BuildResponse slices records into the API envelope for page.
func BuildResponse(records []catalog.Record, page, limit int) catalog.Response {
	totalPages := (len(records) + limit - 1) / limit
	start := (page - 1) * limit
	end := start + limit
	if start > len(records) {
		start = len(records)
	}
	if end > len(records) {
		end = len(records)
	}

	return catalog.Response{
		Pagination: catalog.Pagination{
			Total:       len(records),
			Limit:       limit,
			Offset:      start,
			TotalPages:  totalPages,
			CurrentPage: page,
		},
		Data: append([]catalog.Record{}, records[start:end]...),
	}
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewRateLimitResponse creates a 429 response asking to retry after 0s.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Too many requests"}`,
		Headers: map[string]string{
			"Content-Type":          "application/json",
			"Retry-After":           "0",
		},
	}
}

// NewNotFoundResponse creates a 404 response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "Not found"}`,
	}
}

// NewMalformedResponse creates a 200 response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html>maintenance</html>`,
	}
}
