package pagination

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/artic-client/pkg/catalog"
	"github.com/Sternrassler/artic-client/pkg/selection"
)

// ErrIncomplete is returned when a page kept failing before N records were
// collected. The Result returned alongside holds what was collected so far.
var ErrIncomplete = errors.New("selection incomplete")

// ErrPublish is returned by Publish when the store rejected the result.
// The selection held by the store is then unchanged.
var ErrPublish = errors.New("publish selection")

// PageFetcher fetches a single catalog page. It returns
// catalog.ErrEndOfCatalog once there are no more records.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) (*catalog.Page, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, page int) (*catalog.Page, error)

// FetchPage calls f(ctx, page).
func (f PageFetcherFunc) FetchPage(ctx context.Context, page int) (*catalog.Page, error) {
	return f(ctx, page)
}

// retryable is implemented by errors that know whether another attempt may
// succeed, such as *client.APIError.
type retryable interface {
	Retryable() bool
}

// Config holds selector configuration.
type Config struct {
	// PageTimeout bounds each page attempt. Zero means no per-page limit.
	PageTimeout time.Duration

	// MaxAttempts per page, including the first one.
	MaxAttempts int

	// Backoff before the second attempt; doubled for each further attempt.
	Backoff time.Duration
}

// DefaultConfig returns the default selector configuration.
func DefaultConfig() Config {
	return Config{
		PageTimeout: 30 * time.Second,
		MaxAttempts: 2,
		Backoff:     2 * time.Second,
	}
}

// Result is the outcome of SelectFirstN.
type Result struct {
	// IDs of the first min(N, len(Items)) records, in catalog order.
	IDs []int

	// Items is the working list: alreadyFetched followed by every fetched page.
	Items []catalog.Item

	// Pages lists the page numbers fetched by this run, in order.
	Pages []int

	// NextPage is the first page not in Items.
	NextPage int

	// Exhausted is set when the catalog ran out before N records.
	Exhausted bool
}

// Selector collects the first N records of the catalog.
type Selector struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSelector creates a selector on top of fetcher.
func NewSelector(fetcher PageFetcher, config Config) *Selector {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Backoff < 0 {
		config.Backoff = 0
	}

	return &Selector{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "selector").Logger(),
		sleep:   sleepContext,
	}
}

// SelectFirstN returns the identifiers of the first n records.
//
// alreadyFetched holds records the caller has, in catalog order, ending just
// before startPage. Pages from startPage on are fetched one at a time until
// n records are known or the catalog is exhausted. An n of zero or less is a
// no-op and returns nil, nil.
//
// When a page keeps failing the error wraps ErrIncomplete and the returned
// Result holds the records collected before the failure.
func (s *Selector) SelectFirstN(ctx context.Context, n, startPage int, alreadyFetched []catalog.Item) (*Result, error) {
	if n <= 0 {
		return nil, nil
	}
	if startPage < 1 {
		startPage = 1
	}

	start := time.Now()
	res := &Result{
		Items:    append([]catalog.Item(nil), alreadyFetched...),
		NextPage: startPage,
	}

	var runErr error
	for len(res.Items) < n {
		page, err := s.fetchWithRetry(ctx, res.NextPage)
		if errors.Is(err, catalog.ErrEndOfCatalog) {
			res.Exhausted = true
			break
		}
		if err != nil {
			runErr = fmt.Errorf("%w: page %d: %w", ErrIncomplete, res.NextPage, err)
			break
		}

		res.Pages = append(res.Pages, res.NextPage)
		res.NextPage++

		if len(page.Items) == 0 {
			res.Exhausted = true
			break
		}
		res.Items = append(res.Items, page.Items...)

		if page.IsLast() {
			// Skips the request that would only confirm the end.
			res.Exhausted = len(res.Items) < n
			break
		}
	}

	count := min(n, len(res.Items))
	res.IDs = catalog.IDs(res.Items[:count])

	outcome := "complete"
	switch {
	case runErr != nil:
		outcome = "incomplete"
	case res.Exhausted:
		outcome = "exhausted"
	}
	selectionsTotal.WithLabelValues(outcome).Inc()
	selectionPagesFetched.Observe(float64(len(res.Pages)))

	s.logger.Info().
		Int("requested", n).
		Int("selected", len(res.IDs)).
		Int("pages_fetched", len(res.Pages)).
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("Selection finished")

	return res, runErr
}

// Publish runs SelectFirstN and replaces store's selection with the result.
// A partial result is published too, together with the ErrIncomplete error.
// For n <= 0 nothing is fetched and the store is left untouched. A store
// failure is reported as an error wrapping ErrPublish.
func (s *Selector) Publish(ctx context.Context, store selection.Store, n, startPage int, alreadyFetched []catalog.Item) (*Result, error) {
	res, err := s.SelectFirstN(ctx, n, startPage, alreadyFetched)
	if res == nil {
		return nil, err
	}

	if setErr := store.Set(ctx, res.IDs); setErr != nil {
		return res, errors.Join(err, fmt.Errorf("%w: %w", ErrPublish, setErr))
	}
	return res, err
}

// fetchWithRetry fetches one page, repeating failed attempts. The end of the
// catalog, errors that report themselves as not retryable and a done parent
// context are returned without retrying.
func (s *Selector) fetchWithRetry(ctx context.Context, page int) (*catalog.Page, error) {
	backoff := s.config.Backoff
	var lastErr error

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		p, err := s.fetchOnce(ctx, page)
		if err == nil {
			return p, nil
		}
		if errors.Is(err, catalog.ErrEndOfCatalog) {
			return nil, err
		}
		var r retryable
		if errors.As(err, &r) && !r.Retryable() {
			s.logger.Error().Err(err).Int("page", page).Msg("Page fetch failed permanently")
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err

		if attempt == s.config.MaxAttempts {
			break
		}

		selectionPageRetries.Inc()
		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		s.logger.Warn().
			Err(err).
			Int("page", page).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Page fetch failed - retrying")

		if err := s.sleep(ctx, wait); err != nil {
			return nil, err
		}
		backoff *= 2
	}

	s.logger.Error().Err(lastErr).Int("page", page).Msg("Giving up on page")
	return nil, lastErr
}

func (s *Selector) fetchOnce(ctx context.Context, page int) (*catalog.Page, error) {
	if s.config.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.PageTimeout)
		defer cancel()
	}
	return s.fetcher.FetchPage(ctx, page)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
