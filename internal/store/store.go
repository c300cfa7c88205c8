// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ragwalla/agent-studio/internal/domain"
)

// Repository defines the interface for persisting sessions and messages.
// All reads reflect the latest committed write; there is no caching layer.
type Repository interface {
	// CreateSession inserts a new session with a freshly generated id.
	CreateSession(ctx context.Context, agentID string) (*domain.Session, error)

	// GetSession retrieves a session by id.
	// Returns domain.ErrSessionNotFound if it does not exist.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// ListSessions returns all sessions, most recently active first.
	ListSessions(ctx context.Context) ([]*domain.Session, error)

	// TouchSession bumps the session's last-activity timestamp.
	TouchSession(ctx context.Context, id string) error

	// AppendMessage inserts a message ordered by current time and bumps
	// the session's last-activity timestamp. Returns
	// domain.ErrSessionNotFound if the session does not exist.
	AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string, incomplete bool) (*domain.Message, error)

	// ListMessages returns up to limit messages for a session in
	// ascending timestamp order. limit <= 0 means no limit.
	ListMessages(ctx context.Context, sessionID string, limit int) ([]*domain.Message, error)

	// DeleteSession removes a session and all its messages.
	DeleteSession(ctx context.Context, id string) error

	// CleanupExpiredSessions removes sessions idle longer than ttl,
	// along with their messages. Returns the number of sessions removed.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
