package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ragwalla/agent-studio/internal/domain"
	"github.com/ragwalla/agent-studio/internal/gateway"
	"github.com/ragwalla/agent-studio/internal/relay"
	"github.com/ragwalla/agent-studio/internal/store"
)

// fakeDirectory is an in-memory AgentDirectory.
type fakeDirectory struct {
	agents []domain.Agent
	err    error
}

func (f *fakeDirectory) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.agents, nil
}

func (f *fakeDirectory) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.agents {
		if f.agents[i].ID == id {
			return &f.agents[i], nil
		}
	}
	return nil, domain.ErrAgentNotFound
}

func newTestAPI(t *testing.T, agents AgentDirectory) (*chi.Mux, store.Repository) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	r := chi.NewRouter()
	NewSessionHandler(repo, agents, relay.NewRegistry()).RegisterRoutes(r)
	NewHealthHandler(repo).RegisterHealth(r)
	return r, repo
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateSession(t *testing.T) {
	dir := &fakeDirectory{agents: []domain.Agent{{ID: "agent-1", Name: "Helper"}}}
	router, repo := newTestAPI(t, dir)

	w := doJSON(t, router, http.MethodPost, "/api/sessions", map[string]string{"agentId": "agent-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Session domain.Session `json:"session"`
		Agent   domain.Agent   `json:"agent"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "agent-1", resp.Session.AgentID)
	require.Equal(t, "Helper", resp.Agent.Name)

	_, err := repo.GetSession(context.Background(), resp.Session.ID)
	require.NoError(t, err)
}

func TestCreateSession_UnknownAgent(t *testing.T) {
	router, repo := newTestAPI(t, &fakeDirectory{})

	w := doJSON(t, router, http.MethodPost, "/api/sessions", map[string]string{"agentId": "nope"})
	require.Equal(t, http.StatusNotFound, w.Code)

	sessions, err := repo.ListSessions(context.Background())
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestCreateSession_GatewayDown(t *testing.T) {
	router, _ := newTestAPI(t, &fakeDirectory{err: gateway.ErrUnavailable})

	w := doJSON(t, router, http.MethodPost, "/api/sessions", map[string]string{"agentId": "agent-1"})
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestCreateSession_MissingAgentID(t *testing.T) {
	router, _ := newTestAPI(t, &fakeDirectory{})

	w := doJSON(t, router, http.MethodPost, "/api/sessions", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSessions_IncludesPreview(t *testing.T) {
	router, repo := newTestAPI(t, &fakeDirectory{})
	ctx := context.Background()

	session, err := repo.CreateSession(ctx, "agent-1")
	require.NoError(t, err)
	_, err = repo.AppendMessage(ctx, session.ID, domain.RoleUser, "hello there", false)
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Sessions []*domain.Session `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Sessions, 1)
	require.Equal(t, "hello there", resp.Sessions[0].Preview)
}

func TestGetMessages(t *testing.T) {
	router, repo := newTestAPI(t, &fakeDirectory{})
	ctx := context.Background()

	session, err := repo.CreateSession(ctx, "agent-1")
	require.NoError(t, err)
	for _, text := range []string{"one", "two", "three"} {
		_, err = repo.AppendMessage(ctx, session.ID, domain.RoleUser, text, false)
		require.NoError(t, err)
	}

	w := doJSON(t, router, http.MethodGet, "/api/sessions/"+session.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Messages []*domain.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Messages, 3)
	require.Equal(t, "one", resp.Messages[0].Content)

	w = doJSON(t, router, http.MethodGet, "/api/sessions/"+session.ID+"/messages?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp.Messages = nil
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)

	w = doJSON(t, router, http.MethodGet, "/api/sessions/"+session.ID+"/messages?limit=notanumber", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMessages_UnknownSession(t *testing.T) {
	router, _ := newTestAPI(t, &fakeDirectory{})

	w := doJSON(t, router, http.MethodGet, "/api/sessions/missing/messages", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSession(t *testing.T) {
	router, repo := newTestAPI(t, &fakeDirectory{})
	ctx := context.Background()

	session, err := repo.CreateSession(ctx, "agent-1")
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodDelete, "/api/sessions/"+session.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	_, err = repo.GetSession(ctx, session.ID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	w = doJSON(t, router, http.MethodDelete, "/api/sessions/"+session.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAgents(t *testing.T) {
	dir := &fakeDirectory{agents: []domain.Agent{{ID: "a"}, {ID: "b"}}}
	router, _ := newTestAPI(t, dir)

	w := doJSON(t, router, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Agents []*domain.Agent `json:"agents"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Agents, 2)
}

func TestListAgents_GatewayDown(t *testing.T) {
	router, _ := newTestAPI(t, &fakeDirectory{err: gateway.ErrUnavailable})

	w := doJSON(t, router, http.MethodGet, "/api/agents", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHealth(t *testing.T) {
	router, _ := newTestAPI(t, &fakeDirectory{})

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "healthy", resp.Status)
	require.Equal(t, "ok", resp.Checks["database"])
}
