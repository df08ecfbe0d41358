package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"freeslots/internal/availability"
	"freeslots/internal/config"
	appLog "freeslots/internal/log"
)

// FreeFinder answers free-slot queries for the configured people.
// *availability.Service implements it.
type FreeFinder interface {
	Free(ctx context.Context, date time.Time, length int) (availability.Result, error)
	Location() *time.Location
	DefaultLength() int
}

// Server exposes the free-slot computation over HTTP.
type Server struct {
	cfg     *config.Config
	finder  FreeFinder
	mux     *http.ServeMux
	limiter *rate.Limiter
	now     func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, finder FreeFinder) *Server {
	s := &Server{
		cfg:     cfg,
		finder:  finder,
		mux:     http.NewServeMux(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/free", s.handleFreeConfigured)
	s.mux.HandleFunc("POST /api/free", s.handleFreeAdHoc)
}

// Handler returns the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	h = s.rateLimitMiddleware(h)
	if s.basicAuthEnabled() {
		h = s.basicAuthMiddleware(h)
	}
	h = loggingMiddleware(h)
	return requestIDMiddleware(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// StartServer serves on cfg.Listen until ctx is done, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, finder FreeFinder) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           NewServer(cfg, finder).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
