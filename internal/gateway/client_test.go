package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/ragwalla/agent-studio/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", 5*time.Second, nil)
}

func TestListAgents_BareList(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/agents", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]domain.Agent{{ID: "a1", Name: "Helper"}})
	}))

	agents, err := client.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.Equal(t, "a1", agents[0].ID)
}

func TestListAgents_Envelope(t *testing.T) {
	for _, key := range []string{"agents", "data", "results"} {
		t.Run(key, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{
					key: []domain.Agent{{ID: "a1"}, {ID: "a2"}},
				})
			}))

			agents, err := client.ListAgents(context.Background())
			require.NoError(t, err)
			require.Len(t, agents, 2)
		})
	}
}

func TestListAgents_NonSuccess(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.ListAgents(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestGetAgent_NotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]domain.Agent{{ID: "a1"}})
	}))

	_, err := client.GetAgent(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrAgentNotFound)
}

func TestWebsocketToken_FallsBackOn404(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	token := client.websocketToken(context.Background(), "a1")
	require.Equal(t, "test-key", token)
}

func TestWebsocketToken_UsesIssuedToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/agents/auth/websocket", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "short-lived"})
	}))

	token := client.websocketToken(context.Background(), "a1")
	require.Equal(t, "short-lived", token)
}

// fakeAgentStream upgrades the streaming endpoint and plays back frames.
func fakeAgentStream(t *testing.T, frames []map[string]any, dropAfter bool) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/agents/auth/websocket", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/agents/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept stream: %v", err)
			return
		}
		ctx := r.Context()

		// Consume auth and message frames before responding.
		for i := 0; i < 2; i++ {
			if _, _, err := conn.Read(ctx); err != nil {
				t.Errorf("read inbound frame: %v", err)
				return
			}
		}

		for _, frame := range frames {
			data, _ := json.Marshal(frame)
			// Write errors are expected when the client stops reading early.
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}

		if dropAfter {
			_ = conn.Close(websocket.StatusInternalError, "upstream failure")
			return
		}
		done, _ := json.Marshal(map[string]any{"type": "complete"})
		_ = conn.Write(ctx, websocket.MessageText, done)
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	})
	return mux
}

func collect(seq func(func(Fragment, error) bool)) ([]string, error) {
	var texts []string
	var streamErr error
	seq(func(f Fragment, err error) bool {
		if err != nil {
			streamErr = err
			return false
		}
		texts = append(texts, f.Text)
		return true
	})
	return texts, streamErr
}

func TestSendMessage_StreamsFragments(t *testing.T) {
	client := newTestClient(t, fakeAgentStream(t, []map[string]any{
		{"type": "connected"},
		{"type": "typing", "isTyping": true},
		{"type": "chunk", "content": "Hel"},
		{"type": "chunk", "content": "lo"},
		{"type": "typing", "isTyping": false},
	}, false))

	texts, err := collect(client.SendMessage(context.Background(), "a1", "s1", "hi"))
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo"}, texts)
}

func TestSendMessage_DropMidStream(t *testing.T) {
	client := newTestClient(t, fakeAgentStream(t, []map[string]any{
		{"type": "chunk", "content": "Hel"},
		{"type": "chunk", "content": "lo"},
	}, true))

	texts, err := collect(client.SendMessage(context.Background(), "a1", "s1", "hi"))
	require.ErrorIs(t, err, ErrStream)
	// Fragments delivered before the drop are kept.
	require.Equal(t, []string{"Hel", "lo"}, texts)
}

func TestSendMessage_AgentError(t *testing.T) {
	client := newTestClient(t, fakeAgentStream(t, []map[string]any{
		{"type": "chunk", "content": "par"},
		{"error": "model overloaded"},
	}, false))

	texts, err := collect(client.SendMessage(context.Background(), "a1", "s1", "hi"))
	require.ErrorIs(t, err, ErrStream)
	require.Contains(t, err.Error(), "model overloaded")
	require.Equal(t, []string{"par"}, texts)
}

func TestSendMessage_DialFailure(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "test-key", 500*time.Millisecond, nil)

	_, err := collect(client.SendMessage(context.Background(), "a1", "s1", "hi"))
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestSendMessage_EarlyStop(t *testing.T) {
	client := newTestClient(t, fakeAgentStream(t, []map[string]any{
		{"type": "chunk", "content": "one"},
		{"type": "chunk", "content": "two"},
		{"type": "chunk", "content": "three"},
	}, false))

	var got []string
	client.SendMessage(context.Background(), "a1", "s1", "hi")(func(f Fragment, err error) bool {
		require.NoError(t, err)
		got = append(got, f.Text)
		return len(got) < 2
	})
	require.Equal(t, []string{"one", "two"}, got)
}
