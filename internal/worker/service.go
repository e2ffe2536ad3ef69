// Package worker provides the HTTP service for civicpulse.
package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/thebtf/civicpulse/internal/ingest"
	"github.com/thebtf/civicpulse/internal/search"
	"github.com/thebtf/civicpulse/pkg/models"
)

// DefaultHTTPTimeout bounds request handling, including LLM calls made
// during ingestion.
const DefaultHTTPTimeout = 120 * time.Second

// Store is the read side the HTTP handlers need.
type Store interface {
	ListTopics(ctx context.Context) ([]*models.Topic, error)
	GetTopicByName(ctx context.Context, name string) (*models.Topic, error)
	EventsByTopic(ctx context.Context, topicID int64) ([]*models.Event, error)
	GetEventByID(ctx context.Context, id int64) (*models.Event, error)
	ListEvents(ctx context.Context) ([]*models.Event, error)
	ListPosts(ctx context.Context) ([]*models.Post, error)
}

// Ingestor accepts posts from the HTTP surface.
type Ingestor interface {
	IngestPost(ctx context.Context, post *models.Post) (*models.Event, bool, error)
	IngestCSV(ctx context.Context, r io.Reader) (ingest.Report, error)
}

// Searcher queries the post search index.
type Searcher interface {
	SearchPosts(ctx context.Context, params search.Params) (*search.Result, error)
}

// Service is the HTTP worker. All collaborators are injected; a nil searcher
// disables the search endpoint with 503.
type Service struct {
	version  string
	store    Store
	ingestor Ingestor
	searcher Searcher
	logger   zerolog.Logger

	router    *chi.Mux
	server    *http.Server
	startTime time.Time
}

// NewService wires the worker with its collaborators.
func NewService(version string, store Store, ingestor Ingestor, searcher Searcher, logger zerolog.Logger) *Service {
	s := &Service{
		version:   version,
		store:     store,
		ingestor:  ingestor,
		searcher:  searcher,
		logger:    logger.With().Str("component", "worker").Logger(),
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Service) setupMiddleware() {
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
	s.router.Use(middleware.RealIP)
}

func (s *Service) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/topics", s.handleListTopics)
		r.Get("/topics/{name}/sentiment", s.handleTopicSentiment)

		r.Get("/events", s.handleListEvents)
		r.Get("/events/{id}", s.handleGetEvent)

		r.Get("/posts", s.handleListPosts)
		r.Post("/posts", s.handleIngestPost)
		r.Post("/ingest/csv", s.handleIngestCSV)

		r.Get("/search", s.handleSearch)
	})
}

// Router exposes the handler tree for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

// Start begins serving on the given port. Blocks until the listener fails
// or Shutdown is called.
func (s *Service) Start(port int) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Int("port", port).Str("version", s.version).Msg("Worker HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info().Msg("Worker service shutdown complete")
	return nil
}
