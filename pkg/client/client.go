// Package client fetches pages from the artwork catalog API with rate
// limiting, caching, retries and error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/artic-client/pkg/cache"
	"github.com/Sternrassler/artic-client/pkg/catalog"
	"github.com/Sternrassler/artic-client/pkg/ratelimit"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artic_requests_total",
		Help: "Total catalog API requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "artic_request_duration_seconds",
		Help:    "Catalog API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artic_errors_total",
		Help: "Total catalog API errors by class",
	}, []string{"class"})

	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artic_pages_total",
		Help: "Catalog page fetches by outcome",
	}, []string{"outcome"}) // "ok", "end", "error"
)

const (
	// DefaultBaseURL is the public Art Institute of Chicago API.
	DefaultBaseURL = "https://api.artic.edu/api/v1"

	// DefaultPageSize matches the rows shown per table page.
	DefaultPageSize = 12

	// MaxPageSize is the largest limit the API accepts.
	MaxPageSize = 100

	artworksPath = "/artworks"
)

// DefaultFields are the record fields requested from the API.
var DefaultFields = []string{
	"id", "title", "place_of_origin", "artist_display",
	"inscriptions", "date_start", "date_end",
}

// PageCache is the subset of *cache.Manager the client needs.
type PageCache interface {
	Get(ctx context.Context, key cache.Key) (*cache.Entry, error)
	Set(ctx context.Context, key cache.Key, entry *cache.Entry) error
	UpdateTTL(ctx context.Context, key cache.Key, newExpires time.Time) error
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, without the /artworks suffix.
	BaseURL string

	// UserAgent is sent as User-Agent and AIC-User-Agent.
	// The API asks for "AppName (contact@example.com)".
	UserAgent string

	// PageSize is the number of records per page (the API's limit param).
	PageSize int

	// Fields restricts the record fields returned. Empty means DefaultFields.
	Fields []string

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// RateLimit in requests per second; RateBurst tokens may be used at once.
	RateLimit float64
	RateBurst int

	Retry RetryConfig

	// Cache is optional; nil disables caching.
	Cache PageCache

	// HTTPClient replaces the default client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration that stays within the public API's
// documented limit of 60 requests per minute.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		PageSize:  DefaultPageSize,
		Fields:    DefaultFields,
		Timeout:   15 * time.Second,
		RateLimit: 1,
		RateBurst: 5,
		Retry:     DefaultRetryConfig(),
	}
}

// Client fetches catalog pages.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	config      Config
	rateLimiter *ratelimit.Tracker
	retrier     *retrier
	cache       PageCache
	group       singleflight.Group
	logger      zerolog.Logger
}

// New creates a catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("%w: user-agent is required", ErrInvalidConfig)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidConfig, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w: base url must be http(s), got %q", ErrInvalidConfig, cfg.BaseURL)
	}

	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize < 1 || cfg.PageSize > MaxPageSize {
		return nil, fmt.Errorf("%w: page size must be between 1 and %d (got %d)", ErrInvalidConfig, MaxPageSize, cfg.PageSize)
	}

	if len(cfg.Fields) == 0 {
		cfg.Fields = DefaultFields
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	logger := log.With().Str("component", "catalog-client").Logger()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     base,
		config:      cfg,
		rateLimiter: ratelimit.NewTracker(cfg.RateLimit, cfg.RateBurst, logger),
		retrier:     newRetrier(cfg.Retry, logger),
		cache:       cfg.Cache,
		logger:      logger,
	}, nil
}

// PageSize returns the configured number of records per page.
func (c *Client) PageSize() int {
	return c.config.PageSize
}

// RateLimitState exposes the last rate limit headers seen.
func (c *Client) RateLimitState() ratelimit.State {
	return c.rateLimiter.State()
}

// FetchPage fetches one page (1-based) of the catalog.
//
// It returns catalog.ErrEndOfCatalog when the page holds no records or lies
// beyond the last page, and an *APIError (possibly wrapped in
// ErrRetryExhausted) for failed requests. Concurrent calls for the same page
// share one request. The shared request is not cancelled with any single
// caller's ctx; it is bounded by the client's own timeouts, and each caller
// stops waiting when its ctx ends.
func (c *Client) FetchPage(ctx context.Context, page int) (*catalog.Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPage, page)
	}

	ch := c.group.DoChan(strconv.Itoa(page), func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchBudget())
		defer cancel()
		return c.fetchPage(sharedCtx, page)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("page %d: %w", page, ctx.Err())
	case res := <-ch:
		if res.Shared {
			c.logger.Debug().Int("page", page).Msg("Shared in-flight page request")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*catalog.Page), nil
	}
}

// fetchBudget bounds one shared page fetch: every attempt at the HTTP
// timeout plus the longest backoff between attempts.
func (c *Client) fetchBudget() time.Duration {
	attempts := time.Duration(c.retrier.config.MaxAttempts)
	backoff := c.retrier.config.MaxBackoff
	if backoff <= 0 {
		backoff = DefaultRetryConfig().MaxBackoff
	}
	return attempts*c.config.Timeout + (attempts-1)*backoff
}

// Items fetches one page and fails open: every error, including the end of
// the catalog, yields an empty slice. Use FetchPage to tell them apart.
func (c *Client) Items(ctx context.Context, page int) []catalog.Item {
	p, err := c.FetchPage(ctx, page)
	if err != nil {
		if !errors.Is(err, catalog.ErrEndOfCatalog) {
			c.logger.Error().Err(err).Int("page", page).Msg("Error fetching artworks")
		}
		return []catalog.Item{}
	}
	return p.Items
}

func (c *Client) fetchPage(ctx context.Context, page int) (*catalog.Page, error) {
	u := c.pageURL(page)

	body, err := c.get(ctx, u)
	if err != nil {
		pagesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	var resp catalog.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		pagesTotal.WithLabelValues("error").Inc()
		return nil, &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    "decode page",
			Err:        err,
		}
	}

	if len(resp.Data) == 0 || (resp.Pagination.TotalPages > 0 && page > resp.Pagination.TotalPages) {
		c.logger.Debug().
			Int("page", page).
			Int("total_pages", resp.Pagination.TotalPages).
			Msg("Reached end of catalog")
		pagesTotal.WithLabelValues("end").Inc()
		return nil, fmt.Errorf("page %d: %w", page, catalog.ErrEndOfCatalog)
	}

	pagesTotal.WithLabelValues("ok").Inc()
	return catalog.PageFromResponse(page, resp), nil
}

func (c *Client) pageURL(page int) *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + artworksPath

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(c.config.PageSize))
	q.Set("fields", strings.Join(c.config.Fields, ","))
	u.RawQuery = q.Encode()

	return &u
}

// get returns the body of a successful GET, consulting and filling the cache.
func (c *Client) get(ctx context.Context, u *url.URL) ([]byte, error) {
	endpoint := u.Path
	cacheKey := cache.Key{Endpoint: endpoint, Query: u.Query()}

	var cached *cache.Entry
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			cached = entry
		case errors.Is(err, cache.ErrCacheMiss):
		default:
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	if cached != nil && !cached.IsExpired() {
		c.logger.Debug().Str("key", cacheKey.String()).Msg("Cache hit")
		return cached.Data, nil
	}

	var resp *http.Response
	err := c.retrier.do(ctx, func() error {
		r, err := c.attempt(ctx, u, cached)
		resp = r
		return err
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		cache.NotModifiedResponses.Inc()
		newExpires, ok := cache.ExpiresFromHeaders(resp.Header)
		if !ok {
			newExpires = time.Now().Add(cache.DefaultTTL)
		}
		if err := c.cache.UpdateTTL(ctx, cacheKey, newExpires); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		return cached.Data, nil
	}

	if c.cache == nil {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Message: "read body", Err: err}
		}
		return body, nil
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Message: "read body", Err: err}
	}
	if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache response")
	} else {
		c.logger.Debug().
			Str("key", cacheKey.String()).
			Dur("ttl", entry.TTL()).
			Msg("Cached response")
	}
	return entry.Data, nil
}

// attempt performs a single HTTP request. On success the caller owns the
// body; on error the body is already closed.
func (c *Client) attempt(ctx context.Context, u *url.URL, cached *cache.Entry) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("AIC-User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	if cache.ShouldMakeConditionalRequest(cached) {
		cache.AddConditionalHeaders(req, cached)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().Str("etag", cached.ETag).Msg("Making conditional request")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.Warn().Err(err).Str("url", u.String()).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		return nil, &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if err := c.rateLimiter.UpdateFromHeaders(resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	switch {
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		return resp, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, nil
	}

	errClass := classifyStatus(resp.StatusCode)
	errorsTotal.WithLabelValues(string(errClass)).Inc()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()

	c.logger.Warn().
		Int("status", resp.StatusCode).
		Str("error_class", string(errClass)).
		Msg("Catalog request error")

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: errClass,
		Message:    strings.TrimSpace(resp.Status + " " + string(bytes.TrimSpace(snippet))),
	}
}

// classifyStatus maps a non-2xx status to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		// unexpected 1xx/3xx
		return ErrorClassServer
	}
}
