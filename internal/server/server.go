// Package server exposes the chat pipeline over HTTP: a JSON chat endpoint,
// session reset, and liveness/readiness probes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tokyo-trip-assistant/server/internal/agent/graph"
	"github.com/tokyo-trip-assistant/server/internal/agent/model"
	errx "github.com/tokyo-trip-assistant/server/internal/core/error"
	logx "github.com/tokyo-trip-assistant/server/pkg/logger"
)

// FallbackReply is returned with a 200 whenever response generation fails;
// the turn itself still succeeds from the client's point of view.
const FallbackReply = "I'm sorry, I'm having trouble answering right now. Please try again in a moment."

type Config struct {
	Host                   string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port                   int    `envconfig:"SERVER_PORT" default:"8080"`
	ShutdownTimeoutSeconds int    `envconfig:"SERVER_SHUTDOWN_TIMEOUT_SECONDS" default:"10"`
}

type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	SessionID string                `json:"sessionId"`
	Reply     string                `json:"reply"`
	Intent    []model.CategoryScore `json:"intent"`
	Timestamp time.Time             `json:"timestamp"`
}

type ResetRequest struct {
	SessionID string `json:"sessionId"`
}

type errorResponse struct {
	Error     string `json:"error"`
	SessionID string `json:"sessionId,omitempty"`
}

// Server wires the graph runner and session store behind HTTP handlers.
type Server struct {
	cfg    Config
	runner graph.Runner
	repo   model.ConversationRepository
	// ready reports whether downstream dependencies are reachable.
	ready func(ctx context.Context) error

	httpServer *http.Server
}

func New(cfg Config, runner graph.Runner, repo model.ConversationRepository, ready func(ctx context.Context) error) *Server {
	s := &Server{cfg: cfg, runner: runner, repo: repo, ready: ready}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return s
}

// Routes builds the full handler chain, middleware included.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("POST /api/v1/chat", s.handleChat)
	mux.HandleFunc("POST /api/v1/chat/reset", s.handleReset)
	return loggingMiddleware(corsMiddleware(mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := time.Duration(s.cfg.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logx.Info().Msg("shutting down http server")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "tokyo-trip-assistant",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	deps := map[string]string{"redis": "ok"}
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			logx.Warn().Err(err).Msg("readiness check failed")
			deps["redis"] = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "dependencies": deps})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "dependencies": deps})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required", SessionID: req.SessionID})
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	result, err := s.runner.Invoke(r.Context(), model.QueryInput{SessionID: sessionID, Query: req.Message})
	if err != nil {
		if errors.Is(err, graph.ErrGenerationUnavailable) || errors.Is(err, graph.ErrGenerationEmpty) {
			logx.Warn().Err(err).Str("session_id", sessionID).Msg("generation failed, returning fallback reply")
			writeJSON(w, http.StatusOK, ChatResponse{
				SessionID: sessionID,
				Reply:     FallbackReply,
				Intent:    model.FallbackIntent().Scores,
				Timestamp: time.Now().UTC(),
			})
			return
		}
		logx.Error().Err(err).Str("session_id", sessionID).Msg("chat turn failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: errx.UnavailableMessage, SessionID: sessionID})
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		SessionID: sessionID,
		Reply:     result.Reply,
		Intent:    result.Intent.Scores,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sessionId is required"})
		return
	}

	if err := s.repo.Evict(r.Context(), req.SessionID); err != nil {
		logx.Error().Err(err).Str("session_id", req.SessionID).Msg("failed to evict session")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: errx.UnavailableMessage, SessionID: req.SessionID})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "sessionId": req.SessionID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}
