package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/kg"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/rag"
	"github.com/hyperjump/tsunagu/internal/store"
)

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req models.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TopK <= 0 && s.cfg != nil {
		req.TopK = s.cfg.Retrieval.TopK
	}
	s.logger.Debug("answer request", zap.String("question", req.Question))
	response, err := s.answer.Answer(r.Context(), req)
	if err != nil {
		switch {
		case isBadAnswerRequest(err):
			s.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, rag.ErrUpstream):
			s.logger.Error("answer failed upstream", zap.Error(err))
			s.respondError(w, http.StatusBadGateway, err.Error())
		default:
			s.logger.Error("answer failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// isBadAnswerRequest reports whether err is a request-validation failure the
// caller can fix, as opposed to a server-side fault.
func isBadAnswerRequest(err error) bool {
	return errors.Is(err, models.ErrEmptyRetrievalRequest) ||
		errors.Is(err, models.ErrEmptyQuestion) ||
		errors.Is(err, models.ErrInvalidGraphRatio) ||
		errors.Is(err, models.ErrUnknownRerankMethod)
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req models.BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := kg.ValidateRequest(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	runID := uuid.New().String()
	s.logger.Debug("build request", zap.String("run_id", runID), zap.String("mode", req.Mode))
	// The run outlives the request; the builder records progress in the store
	// under runID, which is what GET /builds/{id} polls.
	go func() {
		if _, err := s.builder.Build(context.Background(), runID, req); err != nil {
			s.logger.Warn("background build failed", zap.String("run_id", runID), zap.Error(err))
		}
	}()
	s.respondJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": models.BuildRunning})
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "build run not found")
			return
		}
		s.logger.Error("get build run failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.store.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list build runs failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

type gremlinRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleGremlin(w http.ResponseWriter, r *http.Request) {
	if s.graph == nil {
		s.respondError(w, http.StatusNotImplemented, "graph not configured")
		return
	}
	var req gremlinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("gremlin request", zap.String("query", req.Query))
	result, err := s.graph.Gremlin(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("gremlin query failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.store.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.store.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"documents":        docCount,
		"chunks":           chunkCount,
		"chunk_index_size": s.chunks.Size(),
		"vid_index_size":   s.vids.Size(),
	}

	if s.graph != nil {
		graphInfo := map[string]interface{}{"name": s.graph.GraphName()}
		vertices, edges, err := s.graph.Counts(ctx)
		if err != nil {
			// The graph being down must not take /status down with it.
			graphInfo["error"] = err.Error()
		} else {
			graphInfo["vertices"] = vertices
			graphInfo["edges"] = edges
		}
		resp["graph"] = graphInfo
	}

	if s.cfg != nil {
		resp["config"] = map[string]interface{}{
			"llm_model":            s.cfg.LLM.Model,
			"embedding_provider":   s.cfg.Embedding.Provider,
			"embedding_dimensions": s.cfg.Embedding.Dimensions,
			"chunk_size":           s.cfg.Build.ChunkSize,
			"chunk_overlap":        s.cfg.Build.ChunkOverlap,
			"top_k":                s.cfg.Retrieval.TopK,
			"graph_ratio":          s.cfg.Retrieval.GraphRatio,
			"database_path":        s.cfg.Storage.DatabasePath,
			"index_dir":            s.cfg.Index.Dir,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	dirs := s.watch.Directories()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": dirs})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatchDirectories writes the current watch list back to the config
// file so it survives a restart. Persistence failures are logged, not fatal;
// the in-memory watcher is already updated.
func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.cfg == nil {
		return
	}
	s.cfgMu.Lock()
	s.cfg.Watch.Directories = s.watch.Directories()
	err := config.Save(s.configPath, s.cfg)
	s.cfgMu.Unlock()
	if err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
