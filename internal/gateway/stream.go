package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Fragment is one incremental piece of streamed agent output.
type Fragment struct {
	Text string
}

// outbound frames the agent service expects on its streaming socket.
type authFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
	Timestamp string `json:"timestamp"`
}

type messageFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
	Timestamp string `json:"timestamp"`
	TabID     string `json:"tabId"`
}

// agentFrame covers every inbound frame type on the streaming socket.
type agentFrame struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Error    string `json:"error"`
	IsTyping bool   `json:"isTyping"`
	ThreadID string `json:"threadId"`
}

func (c *Client) streamURL(agentID, sessionID, tabID string) string {
	wsBase := strings.Replace(c.baseURL, "https://", "wss://", 1)
	wsBase = strings.Replace(wsBase, "http://", "ws://", 1)

	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("tab_id", tabID)
	q.Set("auth", "true")

	return fmt.Sprintf("%s/agents/%s/ws?%s", wsBase, url.PathEscape(agentID), q.Encode())
}

// SendMessage opens a streaming call to the agent service and produces
// response fragments as they arrive. The sequence is finite: it ends
// when the agent signals completion, or with a wrapped ErrStream if the
// connection drops mid-stream. Cancelling ctx stops fragment production
// and closes the underlying connection.
func (c *Client) SendMessage(ctx context.Context, agentID, sessionID, text string) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		token := c.websocketToken(ctx, agentID)
		tabID := strings.ReplaceAll(uuid.NewString(), "-", "")[:26]
		target := c.streamURL(agentID, sessionID, tabID)

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		header.Set("User-Agent", userAgent)

		conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
			HTTPHeader: header,
		})
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			yield(Fragment{}, fmt.Errorf("%w: dial stream: %v", ErrUnavailable, err))
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusNormalClosure, "exchange complete")
		}()
		conn.SetReadLimit(1 << 20)

		timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

		auth := authFrame{
			Type:      "auth",
			SessionID: sessionID,
			AgentID:   agentID,
			Timestamp: timestamp,
		}
		if err := writeFrame(ctx, conn, auth); err != nil {
			yield(Fragment{}, fmt.Errorf("%w: send auth: %v", ErrStream, err))
			return
		}

		message := messageFrame{
			Type:      "message",
			Content:   text,
			UserID:    "1",
			SessionID: sessionID,
			AgentID:   agentID,
			Timestamp: timestamp,
			TabID:     tabID,
		}
		if err := writeFrame(ctx, conn, message); err != nil {
			yield(Fragment{}, fmt.Errorf("%w: send message: %v", ErrStream, err))
			return
		}

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					return
				}
				yield(Fragment{}, fmt.Errorf("%w: %v", ErrStream, err))
				return
			}

			var frame agentFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				c.logger.Warn("unparseable frame from agent service", "agent_id", agentID)
				continue
			}

			if frame.Error != "" {
				yield(Fragment{}, fmt.Errorf("%w: %s", ErrStream, frame.Error))
				return
			}

			switch frame.Type {
			case "chunk":
				if frame.Content == "" {
					continue
				}
				if !yield(Fragment{Text: frame.Content}, nil) {
					return
				}
			case "complete":
				return
			case "connected", "typing", "thread_info":
				// Upstream status frames; nothing to relay.
			default:
				c.logger.Debug("ignoring unknown frame type from agent service", "type", frame.Type)
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
