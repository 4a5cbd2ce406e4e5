package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/leadforge/outreach/internal/config"
	"github.com/leadforge/outreach/internal/leadimport"
	"github.com/leadforge/outreach/internal/repository/postgres"
	"github.com/leadforge/outreach/internal/storage"
)

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
	router  *chi.Mux
}

// NewServer creates a new API server wired to the lead import pipeline.
func NewServer(
	cfg config.Config,
	repo *postgres.LeadListRepo,
	files storage.FileStore,
	tracker *leadimport.SessionTracker,
) *Server {
	classifierCfg := leadimport.DefaultClassifierConfig()
	classifierCfg.FuzzyThreshold = cfg.Import.FuzzyThreshold
	classifierCfg.SampleLimit = cfg.Import.SampleLimit

	var progress leadimport.ProgressReporter
	if tracker != nil {
		progress = tracker
	}
	var store leadimport.LeadStore
	if repo != nil {
		store = repo
	}
	var remover leadimport.FileRemover
	if files != nil {
		remover = files
	}
	orch := leadimport.NewOrchestrator(classifierCfg, store, remover, progress)

	importHandlers := NewLeadImportHandlers(orch, repo, files, tracker, cfg.Import.PreviewRows, cfg.Import.MaxFileSizeMB)
	var listHandlers *LeadListHandlers
	if repo != nil {
		listHandlers = NewLeadListHandlers(repo)
	}

	router := SetupRoutes(importHandlers, listHandlers)

	return &Server{
		config:  cfg.Server,
		handler: router,
		router:  router,
	}
}

// SetupRoutes configures all API routes.
func SetupRoutes(imports *LeadImportHandlers, lists *LeadListHandlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://app.leadforge.io", "http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Organization-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		imports.RegisterRoutes(r)
		if lists != nil {
			lists.RegisterRoutes(r)
		}
	})

	return r
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// Generous read/write timeouts so large CSV uploads are not cut off;
		// handlers bound their own work with request contexts.
		ReadTimeout:       5 * time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
