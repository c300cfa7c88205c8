// Package domain holds the core data types shared across the service.
package domain

import (
	"time"
)

// Session is a persistent conversation thread bound to one agent.
// Sessions are created on first connection and never mutated except
// for the last-activity timestamp.
type Session struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Preview is the first user message of the session, truncated
	// for listing. Derived at query time, not persisted.
	Preview string `json:"preview,omitempty"`
}
