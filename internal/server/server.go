// Package server exposes scans over HTTP.
//
//	GET  /healthz         liveness
//	GET  /metrics         Prometheus metrics
//	GET  /v1/engines      registered database engines
//	GET  /v1/cloud?host=  hosting classification of a host name
//	POST /v1/plans        strategy and table order, no sampling
//	POST /v1/scans        run a scan and return its result
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/piiscan/internal/database"
	"github.com/koustreak/piiscan/internal/logger"
	"github.com/koustreak/piiscan/internal/scanner"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runner is the scan entry point the API drives. *scanner.Scanner
// satisfies it.
type Runner interface {
	Scan(ctx context.Context, cfg *database.Config, opts scanner.Options) (*scanner.Result, error)
	Plan(ctx context.Context, cfg *database.Config, opts scanner.Options) (*scanner.Plan, error)
}

type Config struct {
	// ScanTimeout bounds one scan request. Zero means no bound beyond the
	// client connection.
	ScanTimeout time.Duration

	// MaxConcurrentScans caps running scans; further requests get 429.
	// Zero means unlimited.
	MaxConcurrentScans int
}

type Server struct {
	runner Runner
	log    *logger.Logger
	cfg    Config
	slots  chan struct{}
}

// New builds a Server. A nil log means the process-wide logger.
func New(runner Runner, log *logger.Logger, cfg Config) *Server {
	if log == nil {
		log = logger.L()
	}
	s := &Server{runner: runner, log: log, cfg: cfg}
	if cfg.MaxConcurrentScans > 0 {
		s.slots = make(chan struct{}, cfg.MaxConcurrentScans)
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/engines", s.handleEngines)
		r.Get("/cloud", s.handleCloud)
		r.Post("/plans", s.handlePlan)
		r.Post("/scans", s.handleScan)
	})
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if s.cfg.ScanTimeout > 0 {
		srv.WriteTimeout = s.cfg.ScanTimeout + 30*time.Second
	}

	errc := make(chan error, 1)
	failed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-failed:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		errc <- srv.Shutdown(shutdownCtx)
	}()

	s.log.With().Str("addr", addr).Logger().Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		close(failed)
		return err
	}
	return <-errc
}

// requestLogger logs one line per request with status and latency, and
// hands handlers a logger tagged with the request ID.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		ctx := s.log.With().Str("request_id", reqID).Logger().WithContext(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.log.Request(r.Method, r.URL.Path, status, time.Since(start), reqID)
	})
}

// acquire takes a scan slot without blocking.
func (s *Server) acquire() (release func(), ok bool) {
	if s.slots == nil {
		return func() {}, true
	}
	select {
	case s.slots <- struct{}{}:
		return func() { <-s.slots }, true
	default:
		return nil, false
	}
}
