// Package relay bridges browser WebSocket connections and the agent gateway.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks the active WebSocket connections per chat session so
// that frames produced by an exchange reach every attached client.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[*websocket.Conn]struct{}
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[*websocket.Conn]struct{}),
	}
}

// Register attaches a connection to a session.
func (reg *Registry) Register(sessionID string, conn *websocket.Conn) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.active[sessionID]; !exists {
		reg.active[sessionID] = make(map[*websocket.Conn]struct{})
	}
	reg.active[sessionID][conn] = struct{}{}
	slog.Debug("Chat connection registered", "session_id", sessionID, "connections", len(reg.active[sessionID]))
}

// Unregister detaches a connection from a session.
func (reg *Registry) Unregister(sessionID string, conn *websocket.Conn) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	conns, ok := reg.active[sessionID]
	if !ok {
		return
	}
	if _, exists := conns[conn]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(reg.active, sessionID)
		}
		slog.Debug("Chat connection unregistered", "session_id", sessionID)
	}
}

// CloseSession terminates every connection attached to a session. Used
// when the session itself is deleted.
func (reg *Registry) CloseSession(sessionID string, reason string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	conns, ok := reg.active[sessionID]
	if !ok {
		return
	}
	for conn := range conns {
		_ = conn.Close(websocket.StatusNormalClosure, reason)
	}
	delete(reg.active, sessionID)
	slog.Info("Chat session connections closed", "session_id", sessionID, "reason", reason)
}

// Broadcast delivers a frame to every connection attached to a session.
// Write failures are logged and skipped; the read loop of the failing
// connection handles teardown.
func (reg *Registry) Broadcast(ctx context.Context, sessionID string, frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to encode frame", "error", err, "type", frame.Type)
		return
	}

	reg.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(reg.active[sessionID]))
	for conn := range reg.active[sessionID] {
		conns = append(conns, conn)
	}
	reg.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("WebSocket write error", "error", err, "session_id", sessionID)
		}
	}
}
