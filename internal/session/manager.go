// Package session maps browser connections to conversation sessions.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ragwalla/agent-studio/internal/domain"
	"github.com/ragwalla/agent-studio/internal/store"
)

// Manager resolves connections to sessions and loads history for
// reconnects. All state lives in the store; the manager carries none.
type Manager struct {
	repo         store.Repository
	historyLimit int
}

// NewManager creates a session manager backed by repo. historyLimit
// caps how many messages History returns; <= 0 means unlimited.
func NewManager(repo store.Repository, historyLimit int) *Manager {
	return &Manager{
		repo:         repo,
		historyLimit: historyLimit,
	}
}

// Resolve returns the session identified by id, or creates a new one
// for agentID when id is empty. An explicit id that is not in the store
// fails with domain.ErrSessionNotFound; there is no silent fallback to
// a fresh session, the caller decides what to do.
func (m *Manager) Resolve(ctx context.Context, id, agentID string) (*domain.Session, error) {
	if id != "" {
		session, err := m.repo.GetSession(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve session %s: %w", id, err)
		}
		return session, nil
	}

	if agentID == "" {
		return nil, fmt.Errorf("resolve session: %w", domain.ErrAgentNotFound)
	}

	session, err := m.repo.CreateSession(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.Info("Session created", "session_id", session.ID, "agent_id", agentID)
	return session, nil
}

// History returns the stored messages for a session in replay order.
func (m *Manager) History(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	messages, err := m.repo.ListMessages(ctx, sessionID, m.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", sessionID, err)
	}
	return messages, nil
}
