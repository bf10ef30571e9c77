// Package server provides the HTTP API for Tsunagu.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/store"
	"github.com/hyperjump/tsunagu/internal/vector"
)

// AnswerService generates answers for retrieval requests.
type AnswerService interface {
	Answer(ctx context.Context, req models.AnswerRequest) (*models.AnswerResponse, error)
}

// GraphBuilder runs knowledge-graph construction.
type GraphBuilder interface {
	Build(ctx context.Context, runID string, req models.BuildRequest) (*models.BuildResult, error)
}

// GraphAdmin is the graph access the admin endpoints need. *graph.Client
// satisfies it.
type GraphAdmin interface {
	Gremlin(ctx context.Context, query string) (json.RawMessage, error)
	Counts(ctx context.Context) (vertices, edges int64, err error)
	Ping(ctx context.Context) error
	GraphName() string
}

// WatchService manages watched directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the Tsunagu API.
type Server struct {
	answer     AnswerService
	builder    GraphBuilder
	store      *store.Store
	graph      GraphAdmin
	chunks     *vector.Handle
	vids       *vector.Handle
	watch      WatchService
	cfg        *config.Config
	configPath string
	cfgMu      sync.Mutex
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies. graph and watch may
// be nil; the endpoints that need them respond 501. configPath may be empty to
// disable watch-list persistence.
func NewServer(
	answer AnswerService,
	builder GraphBuilder,
	st *store.Store,
	graph GraphAdmin,
	chunks *vector.Handle,
	vids *vector.Handle,
	cfg *config.Config,
	configPath string,
	watch WatchService,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		answer:     answer,
		builder:    builder,
		store:      st,
		graph:      graph,
		chunks:     chunks,
		vids:       vids,
		watch:      watch,
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/answer", s.handleAnswer)
	r.Post("/api/v1/build", s.handleBuild)
	r.Get("/api/v1/builds", s.handleListBuilds)
	r.Get("/api/v1/builds/{id}", s.handleGetBuild)
	r.Get("/api/v1/status", s.handleStatus)
	r.Post("/api/v1/gremlin", s.handleGremlin)
	r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
	r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
	r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)
	r.Get("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server. Builds already running in the
// background keep going until the process exits.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
