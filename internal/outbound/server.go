// Package outbound implements the Outbound Interface: the read-only HTTP
// surface external collaborators (CLI, dashboard) use to query
// Recommendations, Strategy status, health, and to request a backtest
// run. The core never depends on outbound; outbound depends on the
// core's arbiter, catalog, and backtester.
package outbound

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/arbiter"
	"github.com/aristath/sharpline/internal/backtest"
	"github.com/aristath/sharpline/internal/catalog"
	"github.com/aristath/sharpline/internal/model"
)

// SourceStatus is one source's health as reported on GET /healthz.
type SourceStatus struct {
	Name            string
	CircuitState    string
	LastSuccessAt   time.Time
	BudgetRemaining int
}

// HealthFunc reports the current health of every registered source.
type HealthFunc func() []SourceStatus

// PipelineLagFunc reports the current Staging/Curated pipeline lag.
type PipelineLagFunc func() time.Duration

// Config holds everything the Outbound Interface needs to serve requests.
type Config struct {
	Log             zerolog.Logger
	Port            int
	Arbiter         *arbiter.Arbiter
	Catalog         *catalog.Catalog
	Backtester      *backtest.Backtester
	Health          HealthFunc
	PipelineLag     PipelineLagFunc
	ConfidenceFloor float64
	DevMode         bool
}

// Server is the Outbound Interface's HTTP surface.
type Server struct {
	router *chi.Mux
	http   *http.Server
	log    zerolog.Logger
	cfg    Config
	hub    *recommendationHub
}

// New constructs an Outbound Interface server. Call Start to begin
// serving and Broadcast after every Arbiter run to push recommendations
// to any connected streaming clients.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "outbound").Logger(),
		cfg:    cfg,
		hub:    newRecommendationHub(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/recommendations", s.handleRecommendations)
		r.Get("/recommendations/stream", s.handleRecommendationsStream)
		r.Get("/strategies", s.handleStrategies)
		r.Post("/backtest", s.handleBacktest)
	})
}

// Broadcast pushes recs to every connected recommendations-stream client.
// Called by whatever triggers Arbiter runs (the Scheduler) right after a
// run completes, so collaborators don't have to poll for new picks.
func (s *Server) Broadcast(recs []model.Recommendation) {
	dtos := make([]recommendationDTO, 0, len(recs))
	for _, r := range recs {
		dtos = append(dtos, toRecommendationDTO(r))
	}
	s.hub.broadcast(dtos)
}

// Start begins serving HTTP requests; blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("starting outbound interface")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down outbound interface")
	return s.http.Shutdown(ctx)
}
