// Package server exposes catalog pages and the selection over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/artic-client/internal/viewer"
	"github.com/Sternrassler/artic-client/pkg/catalog"
	"github.com/Sternrassler/artic-client/pkg/logging"
	"github.com/Sternrassler/artic-client/pkg/metrics"
	"github.com/Sternrassler/artic-client/pkg/pagination"
	"github.com/Sternrassler/artic-client/pkg/selection"
)

// maxBodyBytes bounds PUT /api/selection bodies.
const maxBodyBytes = 1 << 20

// Server serves the HTTP API.
type Server struct {
	pages   pagination.PageFetcher
	session *viewer.Session
	store   selection.Store
	logger  zerolog.Logger
}

// New creates a server. Selection changes run through session, which holds
// them back while a select-first-N run is in flight. Reads go to store.
func New(pages pagination.PageFetcher, session *viewer.Session, store selection.Store) *Server {
	return &Server{
		pages:   pages,
		session: session,
		store:   store,
		logger:  logging.NewLogger("server"),
	}
}

// PageResponse is the body of GET /api/artworks.
type PageResponse struct {
	Page       int                 `json:"page"`
	Items      []catalog.Item      `json:"items"`
	Pagination *catalog.Pagination `json:"pagination,omitempty"`
	End        bool                `json:"end"`
}

// SelectionResponse is the body of every /api/selection endpoint.
type SelectionResponse struct {
	IDs []int `json:"ids"`

	// Set by POST /api/selection/first.
	Requested  int    `json:"requested,omitempty"`
	Pages      []int  `json:"pages_fetched,omitempty"`
	Exhausted  bool   `json:"exhausted,omitempty"`
	Incomplete bool   `json:"incomplete,omitempty"`
	Error      string `json:"error,omitempty"`
}

// selectionRequest is the body of PUT /api/selection.
type selectionRequest struct {
	IDs []int `json:"ids"`
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/artworks", s.handlePage)
	mux.HandleFunc("GET /api/selection", s.handleGetSelection)
	mux.HandleFunc("PUT /api/selection", s.handlePutSelection)
	mux.HandleFunc("POST /api/selection/toggle/{id}", s.handleToggle)
	mux.HandleFunc("POST /api/selection/first", s.handleSelectFirst)
	return mux
}

// Run serves on addr until ctx is done, then shuts down within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info().Msg("HTTP server stopped")
		return nil
	case err := <-serverErr:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	number := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		number = n
	}

	page, err := s.pages.FetchPage(r.Context(), number)
	switch {
	case errors.Is(err, catalog.ErrEndOfCatalog):
		s.writeJSON(w, http.StatusOK, PageResponse{Page: number, Items: []catalog.Item{}, End: true})
	case err != nil:
		s.logger.Error().Err(err).Int("page", number).Msg("Error fetching artworks")
		s.writeError(w, http.StatusBadGateway, "catalog unavailable")
	default:
		s.writeJSON(w, http.StatusOK, PageResponse{
			Page:       number,
			Items:      page.Items,
			Pagination: &page.Pagination,
			End:        page.IsLast(),
		})
	}
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.Get(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SelectionResponse{IDs: ids})
}

func (s *Server) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "body must be {\"ids\": [...]}")
		return
	}

	if err := s.session.SetSelection(r.Context(), req.IDs); err != nil {
		s.selectionWriteError(w, err)
		return
	}
	s.handleGetSelection(w, r)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	if err := s.session.Toggle(r.Context(), id); err != nil {
		s.selectionWriteError(w, err)
		return
	}
	s.handleGetSelection(w, r)
}

// handleSelectFirst replaces the selection with the first n records.
// An n that is not a positive integer leaves the selection unchanged.
func (s *Server) handleSelectFirst(w http.ResponseWriter, r *http.Request) {
	n, ok := viewer.ParseCount(r.URL.Query().Get("n"))
	if !ok {
		s.handleGetSelection(w, r)
		return
	}

	res, err := s.session.SelectFirstN(r.Context(), n)
	if errors.Is(err, viewer.ErrBusy) {
		s.writeError(w, http.StatusConflict, "a selection is already running")
		return
	}
	if errors.Is(err, pagination.ErrPublish) {
		s.storeError(w, err)
		return
	}
	if res == nil {
		s.logger.Error().Err(err).Int("n", n).Msg("Selection failed")
		s.writeError(w, http.StatusBadGateway, "selection failed")
		return
	}

	resp := SelectionResponse{
		IDs:       res.IDs,
		Requested: n,
		Pages:     res.Pages,
		Exhausted: res.Exhausted,
	}
	if err != nil {
		resp.Incomplete = errors.Is(err, pagination.ErrIncomplete)
		resp.Error = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// selectionWriteError answers a failed selection change.
func (s *Server) selectionWriteError(w http.ResponseWriter, err error) {
	if errors.Is(err, viewer.ErrBusy) {
		s.writeError(w, http.StatusConflict, "a selection is running")
		return
	}
	s.storeError(w, err)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("Selection store error")
	s.writeError(w, http.StatusServiceUnavailable, "selection store unavailable")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Unable to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
