package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/pipeline"
	"github.com/pagelens/pagelens/internal/storage"
	"github.com/pagelens/pagelens/internal/store"
)

type crawlRequest struct {
	URL           string   `json:"url"`
	Modes         []string `json:"modes"`
	Provider      string   `json:"provider"`
	ContentSource string   `json:"content_source"`
	Save          *bool    `json:"save"`
}

type crawlResponse struct {
	TaskID      string                   `json:"task_id"`
	URL         string                   `json:"url"`
	Status      string                   `json:"status"`
	Provider    string                   `json:"provider"`
	Results     extract.AggregatedResult `json:"results"`
	FailedModes []string                 `json:"failed_modes"`
	Artifacts   []store.Artifact         `json:"artifacts"`
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.runCrawl(w, r, req)
}

// crawlQuery is the query-parameter variant of crawl; modes come
// comma-separated.
func (s *Server) crawlQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := crawlRequest{
		URL:           q.Get("url"),
		Provider:      q.Get("provider"),
		ContentSource: q.Get("content_source"),
	}
	for _, name := range strings.Split(q.Get("modes"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			req.Modes = append(req.Modes, name)
		}
	}
	if raw := q.Get("save"); raw != "" {
		save, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid save value %q", raw))
			return
		}
		req.Save = &save
	}
	s.runCrawl(w, r, req)
}

func (s *Server) runCrawl(w http.ResponseWriter, r *http.Request, req crawlRequest) {
	if err := s.validateCrawl(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	save := true
	if req.Save != nil {
		save = *req.Save
	}
	result, err := s.runner.Run(r.Context(), pipeline.Request{
		URL:           req.URL,
		Modes:         req.Modes,
		Provider:      req.Provider,
		ContentSource: req.ContentSource,
		Save:          save,
	})
	if err != nil {
		s.logger.Error("crawl task failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, crawlResponse{
		TaskID:      result.Task.ID,
		URL:         result.Task.URL,
		Status:      string(result.Task.Status),
		Provider:    result.Task.Provider,
		Results:     result.Outcomes,
		FailedModes: result.Outcomes.Failed(),
		Artifacts:   result.Artifacts,
	})
}

// validateCrawl rejects malformed input before a task row is created. Empty
// modes select the whole catalog.
func (s *Server) validateCrawl(req *crawlRequest) error {
	if req.URL == "" {
		return errors.New("url is required")
	}
	u, err := url.ParseRequestURI(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid url %q", req.URL)
	}

	switch req.ContentSource {
	case "", pipeline.ContentSourceCleaned, pipeline.ContentSourceRaw:
	default:
		return fmt.Errorf("unknown content source %q", req.ContentSource)
	}

	if len(req.Modes) == 0 {
		for _, mode := range s.catalog.List() {
			req.Modes = append(req.Modes, mode.Name)
		}
	} else {
		for _, name := range req.Modes {
			if _, err := s.catalog.Resolve(name); err != nil {
				return err
			}
		}
	}

	if _, err := s.registry.Resolve(req.Provider); err != nil {
		return err
	}
	return nil
}

type providerInfo struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Model   string `json:"model"`
	Default bool   `json:"default"`
}

func (s *Server) listProviders(w http.ResponseWriter, _ *http.Request) {
	providers := make([]providerInfo, 0, len(s.registry.List()))
	for _, cfg := range s.registry.List() {
		providers = append(providers, providerInfo{
			Name:    cfg.Name,
			Kind:    string(cfg.Kind),
			Model:   cfg.Model,
			Default: cfg.Name == s.registry.Default(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": providers})
}

func (s *Server) listModes(w http.ResponseWriter, _ *http.Request) {
	modes := make([]string, 0, len(s.catalog.List()))
	for _, mode := range s.catalog.List() {
		modes = append(modes, mode.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"modes": modes})
}

type historyItem struct {
	store.Task
	ArtifactCount int `json:"artifact_count"`
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	tasks, err := s.taskStore.ListTasks(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list tasks failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	items := make([]historyItem, 0, len(tasks))
	for _, task := range tasks {
		artifacts, err := s.taskStore.ListArtifacts(r.Context(), task.ID)
		if err != nil {
			s.logger.Error("list artifacts failed", zap.String("task_id", task.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list tasks")
			return
		}
		items = append(items, historyItem{Task: task, ArtifactCount: len(artifacts)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": items, "limit": limit, "offset": offset})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	task, err := s.taskStore.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (s *Server) listArtifacts(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if _, err := s.taskStore.GetTask(r.Context(), taskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}

	artifacts, err := s.taskStore.ListArtifacts(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list artifacts")
		return
	}
	if artifacts == nil {
		artifacts = []store.Artifact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_id": taskID, "artifacts": artifacts})
}

func (s *Server) previewArtifact(w http.ResponseWriter, r *http.Request) {
	artifactID := chi.URLParam(r, "artifact_id")
	artifact, err := s.taskStore.GetArtifact(r.Context(), artifactID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "artifact not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load artifact")
		return
	}
	if artifact.BlobPath == "" {
		writeError(w, http.StatusConflict, "artifact has no stored content")
		return
	}

	reader, err := s.blobStore.GetObject(r.Context(), artifact.BlobPath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "artifact content not found")
			return
		}
		s.logger.Error("artifact preview failed", zap.String("artifact_id", artifactID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to load artifact content")
		return
	}
	defer func() { _ = reader.Close() }()

	contentType := "application/json"
	if strings.HasSuffix(artifact.BlobPath, ".md") {
		contentType = "text/markdown; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("artifact preview write failed", zap.String("artifact_id", artifactID), zap.Error(err))
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return def
	}
	return val
}
