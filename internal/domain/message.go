package domain

import (
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a message typed by the human.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the agent.
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single turn in a session. Within a session, messages are
// ordered by CreatedAt; replay must reproduce insertion order.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`

	// Incomplete marks an assistant message whose stream dropped before
	// the agent signalled completion. The partial content is kept.
	Incomplete bool `json:"incomplete,omitempty"`
}
