// Package api provides the HTTP and WebSocket API for Barb.
//
// It exposes the function catalogue, the instrument registry, query
// execution and validation, backtests, Prometheus metrics and a
// WebSocket endpoint that runs queries and backtests on request.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/barb/internal/backtest"
	"github.com/seenimoa/barb/internal/config"
	"github.com/seenimoa/barb/internal/datasource"
	"github.com/seenimoa/barb/internal/functions"
	"github.com/seenimoa/barb/internal/infra"
	"github.com/seenimoa/barb/internal/query"
	"github.com/seenimoa/barb/pkg/models"
)

// Version is reported by /health. The CLI overrides it at link time.
var Version = "dev"

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	store    *datasource.Store
	reg      *functions.Registry
	exec     *query.Executor
	engine   *backtest.Engine
	metrics  *Metrics
	limiter  *clientLimiter
	hub      *wsHub
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, store *datasource.Store, log logrus.FieldLogger) *Server {
	if log == nil {
		log = infra.Discard()
	}
	reg := functions.Builtin(functions.WithSessionGap(time.Duration(cfg.Query.SessionGapMinutes) * time.Minute))
	srv := &Server{
		cfg:   cfg,
		store: store,
		reg:   reg,
		exec: query.NewExecutor(reg,
			query.WithLogger(log),
			query.WithPrecision(cfg.Query.Precision),
			query.WithDefaultTimeframe(models.Timeframe(cfg.Query.DefaultTimeframe)),
			query.WithMaxSourceRows(cfg.Query.MaxSourceRows),
		),
		engine: backtest.NewEngine(backtest.Config{
			Timeframe:   models.Timeframe(cfg.Backtest.Timeframe),
			ContextBars: cfg.Backtest.ContextBars,
			Workers:     cfg.Backtest.Workers,
		}, reg, log),
		metrics: NewMetrics(),
		limiter: newClientLimiter(cfg.API.RateLimit, cfg.API.RateBurst),
		hub:     newWSHub(),
		log:     log.WithField("component", "api"),
	}
	srv.limiter.onReject = srv.metrics.rateLimited.Inc
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     srv.checkOrigin,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Metrics returns the server's metric collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.requestTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("API server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) requestTimeout() time.Duration {
	if s.cfg.API.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.cfg.API.RequestTimeout) * time.Second
}

func (s *Server) corsOrigins() []string {
	if len(s.cfg.API.CORSOrigins) > 0 {
		return s.cfg.API.CORSOrigins
	}
	return []string{"*"}
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// The websocket outlives the request timeout.
		r.With(s.limiter.Middleware).Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout()))
			r.Use(s.limiter.Middleware)

			r.Get("/functions", s.handleFunctions)
			r.Get("/instruments", s.handleInstruments)
			r.Post("/query", s.handleQuery)
			r.Post("/validate", s.handleValidate)
			r.Post("/backtest", s.handleBacktest)
		})
	})

	return r
}
