package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/artic-client/internal/testutil"
	"github.com/Sternrassler/artic-client/pkg/cache"
	"github.com/Sternrassler/artic-client/pkg/catalog"
)

const testUserAgent = "ArticTest/1.0 (test@example.com)"

// newTestClient builds a client against the mock with pacing and backoff off.
func newTestClient(t *testing.T, mock *testutil.MockCatalog, mutate ...func(*Config)) *Client {
	t.Helper()

	cfg := DefaultConfig(testUserAgent)
	cfg.BaseURL = mock.URL()
	cfg.RateLimit = 0
	cfg.Timeout = 2 * time.Second
	for _, m := range mutate {
		m(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.retrier.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

// memoryCache is a PageCache that keeps entries regardless of expiry.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*cache.Entry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*cache.Entry)}
}

func (m *memoryCache) Get(_ context.Context, key cache.Key) (*cache.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key.String()]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	cp := *e
	return &cp, nil
}

func (m *memoryCache) Set(_ context.Context, key cache.Key, entry *cache.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries[key.String()] = &cp
	return nil
}

func (m *memoryCache) UpdateTTL(_ context.Context, key cache.Key, newExpires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key.String()]
	if !ok {
		return cache.ErrCacheMiss
	}
	e.Expires = newExpires
	return nil
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig(testUserAgent),
		},
		{
			name:   "zero config with user agent gets defaults",
			config: Config{UserAgent: testUserAgent},
		},
		{
			name:        "empty user agent",
			config:      Config{},
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name:        "unsupported scheme",
			config:      Config{UserAgent: testUserAgent, BaseURL: "ftp://example.com"},
			expectError: true,
			errorMsg:    "must be http(s)",
		},
		{
			name:        "page size too large",
			config:      Config{UserAgent: testUserAgent, PageSize: MaxPageSize + 1},
			expectError: true,
			errorMsg:    "page size",
		},
		{
			name:        "negative page size",
			config:      Config{UserAgent: testUserAgent, PageSize: -1},
			expectError: true,
			errorMsg:    "page size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.errorMsg)
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.PageSize() != DefaultPageSize {
				t.Errorf("PageSize() = %d, want %d", c.PageSize(), DefaultPageSize)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(testUserAgent)

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.PageSize != 12 {
		t.Errorf("PageSize = %d, want 12", cfg.PageSize)
	}
	if cfg.RateLimit*60 > 60 {
		t.Errorf("RateLimit %.2f/s exceeds 60 requests per minute", cfg.RateLimit)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if len(cfg.Fields) != 7 {
		t.Errorf("Fields = %v, want 7 fields", cfg.Fields)
	}
}

func TestFetchPage_Success(t *testing.T) {
	mock := testutil.NewMockCatalog(30, 12)
	defer mock.Close()
	c := newTestClient(t, mock)

	page, err := c.FetchPage(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if page.Number != 2 {
		t.Errorf("Number = %d, want 2", page.Number)
	}
	if len(page.Items) != 12 {
		t.Fatalf("len(Items) = %d, want 12", len(page.Items))
	}
	if page.Items[0].ID != 13 || page.Items[11].ID != 24 {
		t.Errorf("IDs = %d..%d, want 13..24", page.Items[0].ID, page.Items[11].ID)
	}
	if page.Pagination.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", page.Pagination.TotalPages)
	}
	if page.IsLast() {
		t.Error("page 2 of 3 reported as last")
	}
}

func TestFetchPage_LastPartialPage(t *testing.T) {
	mock := testutil.NewMockCatalog(30, 12)
	defer mock.Close()
	c := newTestClient(t, mock)

	page, err := c.FetchPage(context.Background(), 3)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Items) != 6 {
		t.Errorf("len(Items) = %d, want 6", len(page.Items))
	}
	if !page.IsLast() {
		t.Error("page 3 of 3 not reported as last")
	}
}

func TestFetchPage_NormalizesMissingFields(t *testing.T) {
	mock := testutil.NewMockCatalog(1, 12)
	defer mock.Close()
	c := newTestClient(t, mock)

	page, err := c.FetchPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	item := page.Items[0]
	if item.PlaceOfOrigin != catalog.DefaultPlaceOfOrigin {
		t.Errorf("PlaceOfOrigin = %q, want %q", item.PlaceOfOrigin, catalog.DefaultPlaceOfOrigin)
	}
	if item.ArtistDisplay != catalog.DefaultArtistDisplay {
		t.Errorf("ArtistDisplay = %q, want %q", item.ArtistDisplay, catalog.DefaultArtistDisplay)
	}
	if item.Inscriptions != catalog.DefaultInscriptions {
		t.Errorf("Inscriptions = %q, want %q", item.Inscriptions, catalog.DefaultInscriptions)
	}
	if item.DateStart != nil || item.DateEnd != nil {
		t.Errorf("dates = %v/%v, want nil", item.DateStart, item.DateEnd)
	}
}

func TestFetchPage_RequestShape(t *testing.T) {
	mock := testutil.NewMockCatalog(5, 12)
	defer mock.Close()
	c := newTestClient(t, mock)

	if _, err := c.FetchPage(context.Background(), 1); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	h := mock.LastHeader()
	if got := h.Get("User-Agent"); got != testUserAgent {
		t.Errorf("User-Agent = %q, want %q", got, testUserAgent)
	}
	if got := h.Get("AIC-User-Agent"); got != testUserAgent {
		t.Errorf("AIC-User-Agent = %q, want %q", got, testUserAgent)
	}

	u := c.pageURL(4)
	if u.Path != "/api/v1/artworks" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("page") != "4" || q.Get("limit") != "12" {
		t.Errorf("query = %v", q)
	}
	if q.Get("fields") != "id,title,place_of_origin,artist_display,inscriptions,date_start,date_end" {
		t.Errorf("fields = %q", q.Get("fields"))
	}
}

func TestFetchPage_EndOfCatalog(t *testing.T) {
	mock := testutil.NewMockCatalog(20, 12)
	defer mock.Close()
	c := newTestClient(t, mock)

	_, err := c.FetchPage(context.Background(), 3)
	if !errors.Is(err, catalog.ErrEndOfCatalog) {
		t.Fatalf("expected ErrEndOfCatalog, got %v", err)
	}
	if mock.Requests(3) != 1 {
		t.Errorf("page 3 requested %d times, want 1 (no retry)", mock.Requests(3))
	}
}

func TestFetchPage_EmptyCatalog(t *testing.T) {
	mock := testutil.NewMockCatalog(0, 12)
	defer mock.Close()
	c := newTestClient(t, mock)

	_, err := c.FetchPage(context.Background(), 1)
	if !errors.Is(err, catalog.ErrEndOfCatalog) {
		t.Fatalf("expected ErrEndOfCatalog, got %v", err)
	}
}

func TestFetchPage_InvalidPage(t *testing.T) {
	mock := testutil.NewMockCatalog(5, 12)
	defer mock.Close()
	c := newTestClient(t, mock)

	for _, page := range []int{0, -3} {
		if _, err := c.FetchPage(context.Background(), page); !errors.Is(err, ErrInvalidPage) {
			t.Errorf("FetchPage(%d) error = %v, want ErrInvalidPage", page, err)
		}
	}
	if mock.TotalRequests() != 0 {
		t.Errorf("made %d requests for invalid pages", mock.TotalRequests())
	}
}

func TestFetchPage_RetryOnServerError(t *testing.T) {
	mock := testutil.NewMockCatalog(12, 12)
	defer mock.Close()
	mock.QueueResponse(1, testutil.NewServerErrorResponse())
	mock.QueueResponse(1, testutil.NewServerErrorResponse())
	c := newTestClient(t, mock)

	page, err := c.FetchPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Items) != 12 {
		t.Errorf("len(Items) = %d, want 12", len(page.Items))
	}
	if mock.Requests(1) != 3 {
		t.Errorf("requests = %d, want 3", mock.Requests(1))
	}
}

func TestFetchPage_NoRetryOnClientError(t *testing.T) {
	mock := testutil.NewMockCatalog(12, 12)
	defer mock.Close()
	mock.QueueResponse(1, testutil.NewNotFoundResponse())
	c := newTestClient(t, mock)

	_, err := c.FetchPage(context.Background(), 1)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.ErrorClass != ErrorClassClient || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("got class %s status %d", apiErr.ErrorClass, apiErr.StatusCode)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("client error should not be retried")
	}
	if mock.Requests(1) != 1 {
		t.Errorf("requests = %d, want 1", mock.Requests(1))
	}
}

func TestFetchPage_RetryOnRateLimit(t *testing.T) {
	mock := testutil.NewMockCatalog(12, 12)
	defer mock.Close()
	mock.QueueResponse(1, testutil.NewRateLimitResponse())
	c := newTestClient(t, mock)

	if _, err := c.FetchPage(context.Background(), 1); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if mock.Requests(1) != 2 {
		t.Errorf("requests = %d, want 2", mock.Requests(1))
	}
}

func TestFetchPage_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockCatalog(12, 12)
	defer mock.Close()
	for i := 0; i < 3; i++ {
		mock.QueueResponse(1, testutil.NewServerErrorResponse())
	}
	c := newTestClient(t, mock)

	_, err := c.FetchPage(context.Background(), 1)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if ClassOf(err) != ErrorClassServer {
		t.Errorf("ClassOf = %q, want server", ClassOf(err))
	}
	if mock.Requests(1) != 3 {
		t.Errorf("requests = %d, want 3", mock.Requests(1))
	}
}

func TestFetchPage_DecodeError(t *testing.T) {
	mock := testutil.NewMockCatalog(12, 12)
	defer mock.Close()
	mock.QueueResponse(1, testutil.NewMalformedResponse())
	c := newTestClient(t, mock)

	_, err := c.FetchPage(context.Background(), 1)
	if ClassOf(err) != ErrorClassDecode {
		t.Fatalf("ClassOf = %q, want decode (err = %v)", ClassOf(err), err)
	}
	if errors.Is(err, catalog.ErrEndOfCatalog) {
		t.Error("decode failure must not look like the end of the catalog")
	}
}

func TestFetchPage_NetworkError(t *testing.T) {
	mock := testutil.NewMockCatalog(12, 12)
	url := mock.URL()
	mock.Close()

	c := newTestClient(t, mock, func(cfg *Config) { cfg.BaseURL = url })

	_, err := c.FetchPage(context.Background(), 1)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if ClassOf(err) != ErrorClassNetwork {
		t.Errorf("ClassOf = %q, want network", ClassOf(err))
	}
}

func TestItems_FailOpen(t *testing.T) {
	mock := testutil.NewMockCatalog(20, 12)
	defer mock.Close()
	for i := 0; i < 3; i++ {
		mock.QueueResponse(1, testutil.NewServerErrorResponse())
	}
	c := newTestClient(t, mock)
	ctx := context.Background()

	if items := c.Items(ctx, 1); items == nil || len(items) != 0 {
		t.Errorf("Items on failure = %v, want empty non-nil slice", items)
	}
	if items := c.Items(ctx, 9); len(items) != 0 {
		t.Errorf("Items past the end = %d items, want 0", len(items))
	}
	if items := c.Items(ctx, 2); len(items) != 8 {
		t.Errorf("Items(2) = %d items, want 8", len(items))
	}
}

func TestFetchPage_CacheHit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	mock := testutil.NewMockCatalog(12, 12)
	defer mock.Close()
	mock.SetHeader("Cache-Control", "max-age=300")
	c := newTestClient(t, mock, func(cfg *Config) { cfg.Cache = cache.NewManager(rdb) })
	ctx := context.Background()

	first, err := c.FetchPage(ctx, 1)
	if err != nil {
		t.Fatalf("first FetchPage() error = %v", err)
	}
	second, err := c.FetchPage(ctx, 1)
	if err != nil {
		t.Fatalf("second FetchPage() error = %v", err)
	}

	if mock.Requests(1) != 1 {
		t.Errorf("requests = %d, want 1 (second served from cache)", mock.Requests(1))
	}
	if len(second.Items) != len(first.Items) || second.Items[0].ID != first.Items[0].ID {
		t.Error("cached page differs from the fetched one")
	}
}

func TestFetchPage_Revalidates304(t *testing.T) {
	mock := testutil.NewMockCatalog(12, 12)
	defer mock.Close()
	mock.SetETag(`"v1"`)
	mock.SetHeader("Cache-Control", "max-age=0")

	pc := newMemoryCache()
	c := newTestClient(t, mock, func(cfg *Config) { cfg.Cache = pc })
	ctx := context.Background()

	if _, err := c.FetchPage(ctx, 1); err != nil {
		t.Fatalf("first FetchPage() error = %v", err)
	}
	page, err := c.FetchPage(ctx, 1)
	if err != nil {
		t.Fatalf("second FetchPage() error = %v", err)
	}

	if mock.ConditionalCount() != 1 {
		t.Errorf("conditional requests = %d, want 1", mock.ConditionalCount())
	}
	if len(page.Items) != 12 {
		t.Errorf("len(Items) after 304 = %d, want 12", len(page.Items))
	}
}

func TestFetchPage_SharesInFlightRequests(t *testing.T) {
	mock := testutil.NewMockCatalog(12, 12)
	defer mock.Close()
	// Holds the first request open so the others join it.
	mock.QueueResponse(1, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"pagination":{"total":1,"limit":12,"offset":0,"total_pages":1,"current_page":1},"data":[{"id":1,"title":"Slow"}]}`,
		Delay:      200 * time.Millisecond,
	})
	c := newTestClient(t, mock)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.FetchPage(context.Background(), 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("FetchPage() error = %v", err)
		}
	}
	if mock.Requests(1) > 2 {
		t.Errorf("requests = %d, want concurrent calls to share one", mock.Requests(1))
	}
}

func TestFetchPage_SharedRequestOutlivesFirstCaller(t *testing.T) {
	mock := testutil.NewMockCatalog(12, 12)
	defer mock.Close()
	mock.QueueResponse(1, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"pagination":{"total":1,"limit":12,"offset":0,"total_pages":1,"current_page":1},"data":[{"id":1,"title":"Slow"}]}`,
		Delay:      300 * time.Millisecond,
	})
	c := newTestClient(t, mock)

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	first := make(chan error, 1)
	go func() {
		_, err := c.FetchPage(shortCtx, 1)
		first <- err
	}()

	deadline := time.Now().Add(time.Second)
	for mock.Requests(1) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	page, err := c.FetchPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("joined FetchPage() error = %v", err)
	}
	if page.Items[0].Title != "Slow" {
		t.Errorf("title = %q, want the shared response", page.Items[0].Title)
	}

	if err := <-first; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("first caller error = %v, want deadline exceeded", err)
	}
	if mock.Requests(1) != 1 {
		t.Errorf("requests = %d, want 1", mock.Requests(1))
	}
}

func TestFetchBudget(t *testing.T) {
	mock := testutil.NewMockCatalog(12, 12)
	defer mock.Close()
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Timeout = time.Second
		cfg.Retry = RetryConfig{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, BackoffMultiplier: 2}
	})

	if got, want := c.fetchBudget(), 13*time.Second; got != want {
		t.Errorf("fetchBudget() = %v, want %v", got, want)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{http.StatusTooManyRequests, ErrorClassRateLimit},
		{http.StatusInternalServerError, ErrorClassServer},
		{http.StatusServiceUnavailable, ErrorClassServer},
		{http.StatusBadRequest, ErrorClassClient},
		{http.StatusForbidden, ErrorClassClient},
		{http.StatusMovedPermanently, ErrorClassServer},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
