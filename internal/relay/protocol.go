package relay

import (
	"github.com/ragwalla/agent-studio/internal/domain"
)

// clientFrame is the message structure the browser sends.
type clientFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	AgentID   string `json:"agentId,omitempty"`
	Text      string `json:"text,omitempty"`
}

// serverFrame is the message structure sent to the browser.
type serverFrame struct {
	Type      string            `json:"type"`
	SessionID string            `json:"sessionId,omitempty"`
	Text      string            `json:"text,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Typing    *bool             `json:"typing,omitempty"`
	Message   *domain.Message   `json:"message,omitempty"`
	Messages  []*domain.Message `json:"messages,omitempty"`
}

func historyFrame(sessionID string, messages []*domain.Message) serverFrame {
	return serverFrame{Type: "history", SessionID: sessionID, Messages: messages}
}

func fragmentFrame(text string) serverFrame {
	return serverFrame{Type: "fragment", Text: text}
}

func doneFrame() serverFrame {
	return serverFrame{Type: "done"}
}

func errorFrame(reason string) serverFrame {
	return serverFrame{Type: "error", Reason: reason}
}

func busyFrame() serverFrame {
	return serverFrame{Type: "busy"}
}

func pongFrame() serverFrame {
	return serverFrame{Type: "pong"}
}

func typingFrame(on bool) serverFrame {
	return serverFrame{Type: "typing", Typing: &on}
}

func userMessageFrame(msg *domain.Message) serverFrame {
	return serverFrame{Type: "user_message", Message: msg}
}
