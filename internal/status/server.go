// Package status serves the health and progress of the running migration
// over HTTP.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/allyourbase/oraclone/internal/journal"
	"github.com/allyourbase/oraclone/internal/migrate"
)

// History lists past runs.
type History interface {
	Runs(ctx context.Context, limit int) ([]journal.Run, error)
}

// Response is the body of GET /status.
type Response struct {
	Run     *migrate.Snapshot `json:"run"`
	NextRun *time.Time        `json:"nextRun,omitempty"`
}

// Server exposes /health, /status and, with a history, /runs.
type Server struct {
	addr    string
	logger  *slog.Logger
	router  *chi.Mux
	history History
	http    *http.Server

	mu      sync.Mutex
	tracker *migrate.Tracker
	next    time.Time
}

func New(addr string, history History, logger *slog.Logger) *Server {
	s := &Server{addr: addr, logger: logger, history: history}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	if history != nil {
		r.Get("/runs", s.handleRuns)
	}
	s.router = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Track makes t the run reported by /status.
func (s *Server) Track(t *migrate.Tracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker = t
}

// SetNextRun reports the next scheduled run; the zero time clears it.
func (s *Server) SetNextRun(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = t
}

// Run listens on the configured address until ctx is done, then shuts
// the server down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run over an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.http = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("status server starting", "address", ln.Addr().String())
		errc <- s.http.Serve(ln)
	}()

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("status server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("shutting down status server")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	tracker, next := s.tracker, s.next
	s.mu.Unlock()

	var resp Response
	if tracker != nil {
		snap := tracker.Snapshot()
		resp.Run = &snap
	}
	if !next.IsZero() {
		resp.NextRun = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.history.Runs(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "listing runs failed")
		return
	}
	if runs == nil {
		runs = []journal.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// requestLogger logs each request at DEBUG.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Debug("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
