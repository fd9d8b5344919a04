// Package worker provides the HTTP service for the AI pipeline.
package worker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Donggull/ea-plan-05-sub006/internal/analysis"
	"github.com/Donggull/ea-plan-05-sub006/internal/config"
	"github.com/Donggull/ea-plan-05-sub006/internal/contextcache"
	"github.com/Donggull/ea-plan-05-sub006/internal/promptengine"
	"github.com/Donggull/ea-plan-05-sub006/internal/quota"
	"github.com/Donggull/ea-plan-05-sub006/internal/store"
)

// Service is the HTTP front for the pipeline.
type Service struct {
	version   string
	cfg       *config.Config
	pipeline  *analysis.Service
	sessions  *store.SessionStore
	questions *store.QuestionStore
	results   *store.ResultStore
	usage     *store.UsageStore
	governor  *quota.Governor
	cache     *contextcache.Cache
	router    chi.Router
	startTime time.Time

	// projects remembers the last project payload per session so the
	// enriched-context builder can rebuild without the caller resending it.
	projects sync.Map // sessionID -> promptengine.ProjectInput
}

// Deps carries the service's collaborators.
type Deps struct {
	Version   string
	Config    *config.Config
	Pipeline  *analysis.Service
	Sessions  *store.SessionStore
	Questions *store.QuestionStore
	Results   *store.ResultStore
	Usage     *store.UsageStore
	Governor  *quota.Governor
	Cache     *contextcache.Cache
}

// New assembles the service and its routes. Cache may be nil when no
// enriched-context backend is configured.
func New(d Deps) *Service {
	svc := &Service{
		version:   d.Version,
		cfg:       d.Config,
		pipeline:  d.Pipeline,
		sessions:  d.Sessions,
		questions: d.Questions,
		results:   d.Results,
		usage:     d.Usage,
		governor:  d.Governor,
		cache:     d.Cache,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	svc.setupRoutes()
	return svc
}

// Router exposes the HTTP handler.
func (s *Service) Router() http.Handler { return s.router }

// SetCache installs the enriched-context cache. The cache's builder needs
// the service's project resolver, so it is wired after construction.
func (s *Service) SetCache(c *contextcache.Cache) { s.cache = c }

// ResolveProject is the builder-side lookup for remembered project payloads.
func (s *Service) ResolveProject(_ context.Context, sessionID string) (promptengine.ProjectInput, error) {
	if v, ok := s.projects.Load(sessionID); ok {
		return v.(promptengine.ProjectInput), nil
	}
	return promptengine.ProjectInput{}, errNoProjectData
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)

	// Original top-level paths, kept for existing clients.
	s.router.Post("/completion", s.handleCompletion)
	s.router.Post("/questions", s.handleAdhocQuestions)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/completion", s.handleCompletion)
		r.Post("/questions", s.handleAdhocQuestions)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleArchiveSession)
				r.Get("/progress", s.handleProgress)
				r.Post("/analyze", s.handleAnalyze)
				r.Post("/questions", s.handleGenerateQuestions)
				r.Get("/questions", s.handleListQuestions)
				r.Put("/answers/{questionID}", s.handleUpsertAnswer)
				r.Post("/report", s.handleGenerateReport)
				r.Get("/results", s.handleResults)
				r.Post("/context", s.handleEnrichedContext)
				r.Post("/restart", s.handleRestart)
			})
		})

		r.Get("/projects/{projectID}/sessions", s.handleProjectSessions)

		r.Get("/quota", s.handleQuotaInfo)
		r.Post("/quota/grant", s.handleQuotaGrant)
		r.Get("/usage", s.handleUsage)
	})
}

// Run serves until ctx is cancelled, then drains with a shutdown grace
// period.
func (s *Service) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
