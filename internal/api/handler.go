// Package api provides HTTP handlers for the agent studio REST API.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ragwalla/agent-studio/internal/domain"
)

// AgentDirectory is the gateway surface the REST handlers need.
// Implemented by gateway.Client.
type AgentDirectory interface {
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
