// Package viewer keeps the state behind one paged view of the catalog: the
// page cursor, the rows on screen, the pages already fetched and the
// user's selection.
package viewer

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/artic-client/pkg/catalog"
	"github.com/Sternrassler/artic-client/pkg/logging"
	"github.com/Sternrassler/artic-client/pkg/pagination"
	"github.com/Sternrassler/artic-client/pkg/selection"
)

// ErrBusy is returned for page navigation and selection changes while a
// selection is running.
var ErrBusy = errors.New("selection in progress")

// View is the page currently on screen.
type View struct {
	// Cursor is the zero-based page index; catalog page Cursor+1.
	Cursor int

	Items []catalog.Item

	// Err is set when the page could not be fetched. Items is then empty.
	Err error

	// End is set when the page lies past the end of the catalog.
	End bool
}

// Session serializes page navigation and selection for one user.
type Session struct {
	fetcher  pagination.PageFetcher
	selector *pagination.Selector
	store    selection.Store
	logger   zerolog.Logger

	mu        sync.Mutex
	view      View
	selecting bool

	// fetched holds catalog pages 1..fetchedPages in order.
	fetched      []catalog.Item
	fetchedPages int
}

// NewSession creates a session positioned on the first page. Nothing is
// fetched until Load is called.
func NewSession(fetcher pagination.PageFetcher, selector *pagination.Selector, store selection.Store) *Session {
	return &Session{
		fetcher:  fetcher,
		selector: selector,
		store:    store,
		logger:   logging.NewLogger("viewer"),
		view:     View{Items: []catalog.Item{}},
	}
}

// View returns the current page view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Selecting reports whether a selection is running.
func (s *Session) Selecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selecting
}

// Load fetches the page under the cursor.
func (s *Session) Load(ctx context.Context) (View, error) {
	s.mu.Lock()
	if s.selecting {
		s.mu.Unlock()
		return View{}, ErrBusy
	}
	cursor := s.view.Cursor
	s.mu.Unlock()

	return s.load(ctx, cursor)
}

// Next moves to the following page and loads it.
func (s *Session) Next(ctx context.Context) (View, error) {
	return s.move(ctx, func(c int) int { return c + 1 })
}

// Prev moves to the preceding page and loads it. On the first page it
// reloads the first page.
func (s *Session) Prev(ctx context.Context) (View, error) {
	return s.move(ctx, func(c int) int { return max(c-1, 0) })
}

// GoTo moves to the zero-based page index and loads it. Negative indexes
// are clamped to 0.
func (s *Session) GoTo(ctx context.Context, index int) (View, error) {
	return s.move(ctx, func(int) int { return max(index, 0) })
}

func (s *Session) move(ctx context.Context, to func(cursor int) int) (View, error) {
	s.mu.Lock()
	if s.selecting {
		s.mu.Unlock()
		return View{}, ErrBusy
	}
	cursor := to(s.view.Cursor)
	// A new cursor invalidates what is on screen.
	s.view = View{Cursor: cursor, Items: []catalog.Item{}}
	s.mu.Unlock()

	return s.load(ctx, cursor)
}

// load fetches page cursor+1. Failures produce an empty view. A result that
// arrives after the cursor moved on is dropped.
func (s *Session) load(ctx context.Context, cursor int) (View, error) {
	number := cursor + 1
	page, err := s.fetcher.FetchPage(ctx, number)

	v := View{Cursor: cursor, Items: []catalog.Item{}}
	switch {
	case errors.Is(err, catalog.ErrEndOfCatalog):
		v.End = true
	case err != nil:
		s.logger.Error().Err(err).Int("page", number).Msg("Error fetching artworks")
		v.Err = err
	default:
		v.Items = page.Items
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil && number == s.fetchedPages+1 {
		s.fetched = append(s.fetched, page.Items...)
		s.fetchedPages = number
	}

	if s.view.Cursor != cursor {
		return s.view, nil
	}
	s.view = v
	return v, nil
}

// SelectFirstN replaces the selection with the first n records of the
// catalog, counted from page 1. Pages fetched earlier in the session are
// reused. n <= 0 leaves the selection unchanged and returns nil, nil.
//
// Page navigation returns ErrBusy until SelectFirstN returns. An error
// wrapping pagination.ErrIncomplete comes with the partial result, which
// has been published.
func (s *Session) SelectFirstN(ctx context.Context, n int) (*pagination.Result, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	if s.selecting {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.selecting = true
	have := append([]catalog.Item(nil), s.fetched...)
	start := s.fetchedPages + 1
	s.mu.Unlock()

	res, err := s.selector.Publish(ctx, s.store, n, start, have)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.selecting = false
	if res != nil && res.NextPage-1 > s.fetchedPages {
		s.fetched = res.Items
		s.fetchedPages = res.NextPage - 1
	}

	return res, err
}

// Toggle flips the selection state of one record. It returns ErrBusy while
// a selection is running.
func (s *Session) Toggle(ctx context.Context, id int) error {
	return s.write(func() error { return s.store.Toggle(ctx, id) })
}

// SetSelection replaces the selection with ids. It returns ErrBusy while a
// selection is running.
func (s *Session) SetSelection(ctx context.Context, ids []int) error {
	return s.write(func() error { return s.store.Set(ctx, ids) })
}

// write runs fn under the session lock so that no selection run starts
// while the store is being changed.
func (s *Session) write(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selecting {
		return ErrBusy
	}
	return fn()
}

// Selected returns the selected identifiers.
func (s *Session) Selected(ctx context.Context) ([]int, error) {
	return s.store.Get(ctx)
}

// Subscribe registers fn for selection changes when the store pushes them.
// ok is false, and nothing is registered, for stores that do not. fn may run
// while the session is locked and must not call back into the session.
func (s *Session) Subscribe(fn func(ids []int)) (unsubscribe func(), ok bool) {
	obs, ok := s.store.(selection.Observable)
	if !ok {
		return func() {}, false
	}
	return obs.Subscribe(fn), true
}

// FetchedPages returns how many leading catalog pages the session holds.
func (s *Session) FetchedPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchedPages
}

// ParseCount reads a record count typed by the user. Anything that is not
// a positive whole number yields false, which callers treat as "do nothing".
func ParseCount(input string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
