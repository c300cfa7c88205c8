package domain

import "errors"

var (
	// ErrSessionNotFound is returned when an operation references a
	// session id that does not exist in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAgentNotFound is returned when the gateway does not know the
	// requested agent id.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrInvalidRole is returned when a message carries a role other
	// than user or assistant.
	ErrInvalidRole = errors.New("invalid message role")
)
