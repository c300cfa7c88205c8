package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/ragwalla/agent-studio/internal/domain"
	"github.com/ragwalla/agent-studio/internal/session"
)

// StatusUnknownSession is the close code sent when the client asks for
// a session that does not exist.
const StatusUnknownSession websocket.StatusCode = 4004

// maxFrameBytes bounds a single inbound WebSocket frame.
const maxFrameBytes = 1 << 20

// WebSocketHandler upgrades browser connections and dispatches chat
// frames to the relay.
type WebSocketHandler struct {
	sessions       *session.Manager
	relay          *Relay
	allowedOrigins []string
	maxMessageLen  int
}

// NewWebSocketHandler creates a new chat WebSocket handler.
func NewWebSocketHandler(sessions *session.Manager, relay *Relay, allowedOrigins []string, maxMessageLen int) *WebSocketHandler {
	return &WebSocketHandler{
		sessions:       sessions,
		relay:          relay,
		allowedOrigins: allowedOrigins,
		maxMessageLen:  maxMessageLen,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("Chat WebSocket connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	ws.SetReadLimit(maxFrameBytes)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A session named in the query string is attached before the first
	// frame; otherwise the first message frame establishes it.
	var sess *domain.Session
	q := r.URL.Query()
	if q.Get("session_id") != "" || q.Get("agent_id") != "" {
		sess, err = h.establish(ctx, ws, q.Get("session_id"), q.Get("agent_id"))
		if err != nil {
			return
		}
	}

	h.readLoop(ctx, ws, sess)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sess *domain.Session) {
	defer func() {
		if sess != nil {
			h.relay.Registry().Unregister(sess.ID, ws)
		}
	}()

	state := newConnState()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client")
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.writeFrame(ctx, ws, errorFrame("malformed frame"))
			continue
		}

		switch frame.Type {
		case "ping":
			h.writeFrame(ctx, ws, pongFrame())
		case "message":
			if sess == nil {
				sess, err = h.establish(ctx, ws, frame.SessionID, frame.AgentID)
				if err != nil {
					if errors.Is(err, domain.ErrSessionNotFound) {
						return
					}
					// Recoverable: the client can retry with an agent id.
					continue
				}
			}
			if reason := h.validateText(frame.Text); reason != "" {
				h.writeFrame(ctx, ws, errorFrame(reason))
				continue
			}
			if err := state.BeginExchange(); err != nil {
				h.writeFrame(ctx, ws, busyFrame())
				continue
			}
			go func(text string, sess *domain.Session) {
				err := h.relay.Exchange(ctx, sess, text)
				if err != nil && ctx.Err() == nil {
					slog.Warn("Exchange failed", "error", err, "session_id", sess.ID)
				}
				state.EndExchange(err != nil)
			}(frame.Text, sess)
		default:
			h.writeFrame(ctx, ws, errorFrame(fmt.Sprintf("unknown frame type %q", frame.Type)))
		}
	}
}

// establish resolves or creates the chat session, registers the
// connection, and replays history. An unknown explicit session ID
// closes the socket with StatusUnknownSession.
func (h *WebSocketHandler) establish(ctx context.Context, ws *websocket.Conn, sessionID, agentID string) (*domain.Session, error) {
	sess, err := h.sessions.Resolve(ctx, sessionID, agentID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			slog.Info("Unknown chat session requested", "session_id", sessionID)
			_ = ws.Close(StatusUnknownSession, "session not found")
		case errors.Is(err, domain.ErrAgentNotFound):
			h.writeFrame(ctx, ws, errorFrame("agentId is required to start a session"))
		default:
			h.writeFrame(ctx, ws, errorFrame("failed to open session"))
		}
		return nil, err
	}

	h.relay.Registry().Register(sess.ID, ws)

	history, err := h.sessions.History(ctx, sess.ID)
	if err != nil {
		slog.Error("Failed to load history", "error", err, "session_id", sess.ID)
		h.relay.Registry().Unregister(sess.ID, ws)
		h.writeFrame(ctx, ws, errorFrame("failed to load history"))
		return nil, err
	}
	h.writeFrame(ctx, ws, historyFrame(sess.ID, history))
	return sess, nil
}

func (h *WebSocketHandler) validateText(text string) string {
	if text == "" {
		return "empty message"
	}
	if h.maxMessageLen > 0 && len(text) > h.maxMessageLen {
		return fmt.Sprintf("message exceeds %d bytes", h.maxMessageLen)
	}
	return ""
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin)
	return false
}

func (h *WebSocketHandler) writeFrame(ctx context.Context, ws *websocket.Conn, frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to encode frame", "error", err, "type", frame.Type)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "error", err)
	}
}
