// Package server provides the HTTP boundary for the portfolio engine.
// Handlers are thin adapters: they decode holdings and parameters, call
// the pure engine modules, and encode the results as JSON.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/cache"
	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/history"
	"github.com/aristath/folio/internal/modules/drift"
	"github.com/aristath/folio/internal/modules/extraction"
	"github.com/aristath/folio/internal/modules/rebalancing"
	"github.com/aristath/folio/internal/modules/simulation"
	"github.com/aristath/folio/internal/modules/tax"
)

// Deps are the services the server routes requests to.
type Deps struct {
	Config    *config.Config
	Extractor *extraction.Extractor
	History   *history.Store
	Cache     *cache.Cache
	Drift     *drift.Analyzer
	Rebalance *rebalancing.Calculator
	Strategy  *rebalancing.StrategyService
	Tax       *tax.Rebalancer
	Simulator *simulation.Simulator
	Snapshot  *SnapshotKeeper
	Log       zerolog.Logger
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	deps   Deps
	log    zerolog.Logger
}

// New creates the server and mounts all routes.
func New(deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		log:    deps.Log.With().Str("component", "server").Logger(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/optimize", s.handleOptimize)
		r.Post("/frontier", s.handleFrontier)
		r.Post("/risk", s.handleRisk)
		r.Post("/drift", s.handleDrift)
		r.Post("/rebalance", s.handleRebalance)
		r.Post("/rebalance/tax-aware", s.handleTaxAwareRebalance)
		r.Post("/simulate", s.handleSimulate)

		r.Route("/strategy", func(r chi.Router) {
			r.Post("/compare", s.handleStrategyCompare)
			r.Post("/recommend", s.handleStrategyRecommend)
		})

		r.Route("/prices", func(r chi.Router) {
			r.Post("/", s.handleSavePrices)
			r.Get("/{assetID}", s.handleGetPrices)
		})
	})
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.deps.Config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", s.deps.Config.Port).Msg("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info().Msg("Shutting down HTTP server")
		return s.server.Shutdown(shutdownCtx)
	}
}

// Router exposes the chi router, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
