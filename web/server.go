// ABOUTME: HTTP API server exposing executions, reports, memory, and run control
// ABOUTME: behind a chi router. One engine, one run at a time; analyze is async.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389-research/prospect/memory"
	"github.com/2389-research/prospect/pipeline"
	"github.com/2389-research/prospect/report"
)

// Server is the prospect HTTP API server.
type Server struct {
	engine      *pipeline.Engine
	store       *pipeline.Store
	memory      *memory.Manager
	progressDir string
	router      chi.Router
	addr        string
}

// ServerConfig holds the configuration for the API server.
type ServerConfig struct {
	Addr        string // listen address (default: "127.0.0.1:2390")
	Engine      *pipeline.Engine
	Store       *pipeline.Store
	Memory      *memory.Manager
	ProgressDir string
}

// NewServer creates the API server and sets up routing.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:2390"
	}
	if cfg.Engine == nil || cfg.Store == nil {
		return nil, fmt.Errorf("server config: Engine and Store are required")
	}

	s := &Server{
		engine:      cfg.Engine,
		store:       cfg.Store,
		memory:      cfg.Memory,
		progressDir: cfg.ProgressDir,
		addr:        cfg.Addr,
	}
	s.router = s.buildRouter()
	return s, nil
}

// ServeHTTP implements http.Handler by delegating to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/stop", s.handleStop)

		r.Route("/executions", func(r chi.Router) {
			r.Get("/", s.handleExecutionList)
			r.Route("/{executionID}", func(r chi.Router) {
				r.Get("/", s.handleExecutionGet)
				r.Get("/report", s.handleExecutionReport)
				r.Get("/events", s.handleExecutionEvents)
				r.Post("/resume", s.handleExecutionResume)
				r.Delete("/", s.handleExecutionDelete)
			})
		})

		r.Get("/events", s.handleEvents)

		r.Route("/memory", func(r chi.Router) {
			r.Get("/{entity}", s.handleMemoryGet)
			r.Delete("/{entity}", s.handleMemoryForget)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"busy":   s.engine.Busy(),
	})
}

type analyzeRequest struct {
	Input string `json:"input"`
}

// handleAnalyze starts a new research run in the background. Returns 409 if
// a run is already in flight; one engine drives at most one execution.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		http.Error(w, "input must not be empty", http.StatusBadRequest)
		return
	}
	if s.engine.Busy() {
		http.Error(w, "a run is already in progress", http.StatusConflict)
		return
	}

	go func() {
		if _, err := s.engine.Run(context.Background(), req.Input); err != nil {
			log.Printf("analyze run: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "input": req.Input})
}

// handleStop requests a cooperative interrupt of the current run.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Busy() {
		http.Error(w, "no run in progress", http.StatusConflict)
		return
	}
	s.engine.Stop()
	writeJSON(w, http.StatusAccepted, map[string]any{"stopping": true})
}

func (s *Server) handleExecutionList(w http.ResponseWriter, r *http.Request) {
	execs, err := s.store.List()
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("resumable") == "true" {
		filtered := execs[:0]
		for _, e := range execs {
			if e.Status == pipeline.ExecPaused || e.Status == pipeline.ExecFailed || e.Status == pipeline.ExecRunning {
				filtered = append(filtered, e)
			}
		}
		execs = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs})
}

func (s *Server) handleExecutionGet(w http.ResponseWriter, r *http.Request) {
	exec, ok := s.getExecution(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// handleExecutionReport renders the execution as Markdown or, with
// Accept: text/html, as HTML.
func (s *Server) handleExecutionReport(w http.ResponseWriter, r *http.Request) {
	exec, ok := s.getExecution(w, r)
	if !ok {
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		out, err := report.HTML(exec)
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, out)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	fmt.Fprint(w, report.Markdown(exec))
}

// handleExecutionResume restarts a stored execution in the background.
func (s *Server) handleExecutionResume(w http.ResponseWriter, r *http.Request) {
	exec, ok := s.getExecution(w, r)
	if !ok {
		return
	}
	if s.engine.Busy() {
		http.Error(w, "a run is already in progress", http.StatusConflict)
		return
	}
	if exec.Status == pipeline.ExecCompleted {
		http.Error(w, "execution already completed", http.StatusConflict)
		return
	}

	id := exec.ID
	go func() {
		if _, err := s.engine.Resume(context.Background(), id); err != nil {
			log.Printf("resume %s: %v", id, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "execution_id": id})
}

// handleExecutionDelete removes a stored execution record. Refused while a
// run is in flight so the engine's next checkpoint cannot resurrect it.
func (s *Server) handleExecutionDelete(w http.ResponseWriter, r *http.Request) {
	exec, ok := s.getExecution(w, r)
	if !ok {
		return
	}
	if s.engine.Busy() {
		http.Error(w, "a run is in progress", http.StatusConflict)
		return
	}
	if err := s.store.Delete(exec.ID); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": exec.ID})
}

// handleEvents returns the engine event log from the progress directory.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.writeEvents(w, r.URL.Query().Get("execution_id"))
}

// handleExecutionEvents returns the event log filtered to one execution.
func (s *Server) handleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	exec, ok := s.getExecution(w, r)
	if !ok {
		return
	}
	s.writeEvents(w, exec.ID)
}

func (s *Server) writeEvents(w http.ResponseWriter, executionID string) {
	if s.progressDir == "" {
		writeJSON(w, http.StatusOK, map[string]any{"events": []pipeline.Event{}})
		return
	}
	events, err := pipeline.ReadProgress(s.progressDir)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if executionID != "" {
		filtered := events[:0]
		for _, evt := range events {
			if evt.ExecutionID == executionID {
				filtered = append(filtered, evt)
			}
		}
		events = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleMemoryGet(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		http.Error(w, "memory not configured", http.StatusNotFound)
		return
	}
	entity := chi.URLParam(r, "entity")
	facts, err := s.memory.Recall(entity, 0)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity": memory.NormalizeEntity(entity),
		"facts":  facts,
	})
}

func (s *Server) handleMemoryForget(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		http.Error(w, "memory not configured", http.StatusNotFound)
		return
	}
	entity := chi.URLParam(r, "entity")
	deleted, err := s.memory.Forget(entity)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity":  memory.NormalizeEntity(entity),
		"deleted": deleted,
	})
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) (*pipeline.Execution, bool) {
	id := chi.URLParam(r, "executionID")
	exec, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			http.Error(w, "execution not found", http.StatusNotFound)
		} else {
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
		return nil, false
	}
	return exec, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
