package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ragwalla/agent-studio/internal/domain"
	"github.com/ragwalla/agent-studio/internal/gateway"
	"github.com/ragwalla/agent-studio/internal/relay"
	"github.com/ragwalla/agent-studio/internal/store"
)

// SessionHandler handles chat session and agent endpoints.
type SessionHandler struct {
	repo     store.Repository
	agents   AgentDirectory
	registry *relay.Registry
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(repo store.Repository, agents AgentDirectory, registry *relay.Registry) *SessionHandler {
	return &SessionHandler{
		repo:     repo,
		agents:   agents,
		registry: registry,
	}
}

// RegisterRoutes registers session and agent routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{id}/messages", h.GetMessages)
		r.Delete("/sessions/{id}", h.DeleteSession)
		r.Get("/agents", h.ListAgents)
	})
}

type createSessionRequest struct {
	AgentID string `json:"agentId"`
}

// CreateSession creates a session bound to an agent, verifying the
// agent with the gateway first.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" {
		Error(w, http.StatusBadRequest, "agentId is required")
		return
	}

	agent, err := h.agents.GetAgent(r.Context(), req.AgentID)
	if err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			Error(w, http.StatusNotFound, "agent not found")
			return
		}
		slog.Error("Failed to verify agent", "error", err, "agent_id", req.AgentID)
		Error(w, http.StatusBadGateway, "agent service unavailable")
		return
	}

	session, err := h.repo.CreateSession(r.Context(), agent.ID)
	if err != nil {
		slog.Error("Failed to create session", "error", err, "agent_id", agent.ID)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	slog.Info("Chat session created", "session_id", session.ID, "agent_id", agent.ID)
	JSON(w, http.StatusCreated, map[string]interface{}{
		"session": session,
		"agent":   agent,
	})
}

// ListSessions returns all sessions, newest activity first.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.repo.ListSessions(r.Context())
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetMessages returns the ordered transcript of a session.
func (h *SessionHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if _, err := h.repo.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("Failed to load session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	messages, err := h.repo.ListMessages(r.Context(), sessionID, limit)
	if err != nil {
		slog.Error("Failed to list messages", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// DeleteSession removes a session, its messages, and closes any live
// WebSocket connections attached to it.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if err := h.repo.DeleteSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("Failed to delete session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	h.registry.CloseSession(sessionID, "session deleted")
	slog.Info("Chat session deleted", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// ListAgents returns the agents available at the gateway.
func (h *SessionHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.ListAgents(r.Context())
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			Error(w, http.StatusBadGateway, "agent service unavailable")
			return
		}
		slog.Error("Failed to list agents", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}
