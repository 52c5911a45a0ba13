// Package server exposes papers, snapshots and rankings over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/elonfeng/paperpulse/internal/metrics"
	"github.com/elonfeng/paperpulse/internal/store"
	"github.com/elonfeng/paperpulse/pkg/collector"
	"github.com/elonfeng/paperpulse/pkg/engagement"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Recomputer rescores a stored snapshot.
type Recomputer interface {
	Recompute(ctx context.Context, date string) (*engagement.Report, error)
}

// Collector gathers a snapshot for a date.
type Collector interface {
	Run(ctx context.Context, date string) (*collector.Summary, error)
}

// Server provides the HTTP API.
type Server struct {
	store     store.Store
	engine    Recomputer
	collector Collector // optional, nil = POST /collect disabled
	port      int
	router    *mux.Router
	now       func() time.Time
}

// New creates a new HTTP server.
func New(s store.Store, engine Recomputer, c Collector, port int) *Server {
	if port == 0 {
		port = 8080
	}
	srv := &Server{
		store:     s,
		engine:    engine,
		collector: c,
		port:      port,
		router:    mux.NewRouter(),
		now:       time.Now,
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.router.Use(requestID, accessLog)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/papers", s.handlePapers).Methods(http.MethodGet)
	// Old-style arXiv IDs contain a slash, so {id} matches across segments.
	api.HandleFunc("/papers/{id:.+}/metrics", s.handlePaperMetrics).Methods(http.MethodGet)
	api.HandleFunc("/papers/{id:.+}", s.handlePaper).Methods(http.MethodGet)
	api.HandleFunc("/snapshots", s.handleSnapshots).Methods(http.MethodGet)
	api.HandleFunc("/snapshots/{date}/rescore", s.handleRescore).Methods(http.MethodPost)
	api.HandleFunc("/rankings", s.handleRankings).Methods(http.MethodGet)
	api.HandleFunc("/collect", s.handleCollect).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("paperpulse server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePapers(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := store.PaperListOpts{
		Category: r.URL.Query().Get("category"),
		Limit:    limit,
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		opts.Since = t
	}

	papers, err := s.store.ListPapers(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  papers,
		"count": len(papers),
	})
}

func (s *Server) handlePaper(w http.ResponseWriter, r *http.Request) {
	paper, err := s.store.GetPaper(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "paper not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, paper)
}

func (s *Server) handlePaperMetrics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetPaper(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "paper not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	history, err := s.store.PaperHistory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paper_id": id,
		"data":     history,
		"count":    len(history),
	})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	dates, err := s.store.ListSnapshotDates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  dates,
		"count": len(dates),
	})
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	date := r.URL.Query().Get("date")
	if date != "" {
		if date, err = engagement.ParseDate(date); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		date, err = s.store.LatestSnapshotDate(ctx)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"date": "", "data": []store.RankedPaper{}, "count": 0})
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	ranking, err := s.store.ListRanking(ctx, date, store.RankingOpts{
		Category: r.URL.Query().Get("category"),
		Limit:    limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date,
		"data":  ranking,
		"count": len(ranking),
	})
}

func (s *Server) handleRescore(w http.ResponseWriter, r *http.Request) {
	date, err := engagement.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.engine.Recompute(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusServiceUnavailable, "collection is not configured")
		return
	}

	date := engagement.SnapshotDate(s.now())
	if d := r.URL.Query().Get("date"); d != "" {
		var err error
		if date, err = engagement.ParseDate(d); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sum, err := s.collector.Run(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
