// Package gateway provides the client for the external agent service.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ragwalla/agent-studio/internal/domain"
)

var (
	// ErrUnavailable indicates the agent service could not be reached
	// or returned a non-success response.
	ErrUnavailable = errors.New("agent service unavailable")

	// ErrStream indicates a streaming exchange dropped before the agent
	// signalled completion. Fragments already delivered are not rolled
	// back; the caller decides what to do with the partial result.
	ErrStream = errors.New("agent stream failed")
)

const userAgent = "Ragwalla-Agent-Studio/2.0"

// Client issues outbound calls to the external agent service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient creates a gateway client for the agent service at baseURL.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     logger,
	}
}

func (c *Client) authHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", userAgent)
	h.Set("Authorization", "Bearer "+c.apiKey)
	return h
}

// agentEnvelope covers the response shapes the agent service has been
// observed to return for agent listings.
type agentEnvelope struct {
	Agents  []domain.Agent `json:"agents"`
	Data    []domain.Agent `json:"data"`
	Results []domain.Agent `json:"results"`
}

// ListAgents queries the agent service for available agents.
func (c *Client) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/agents", nil)
	if err != nil {
		return nil, fmt.Errorf("build agents request: %w", err)
	}
	req.Header = c.authHeaders()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: list agents: %v", ErrUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close agents response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read agents response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list agents returned %d", ErrUnavailable, resp.StatusCode)
	}

	// The service returns either a bare list or an envelope.
	var agents []domain.Agent
	if err := json.Unmarshal(body, &agents); err == nil {
		return agents, nil
	}

	var envelope agentEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: parse agents response: %v", ErrUnavailable, err)
	}
	switch {
	case envelope.Agents != nil:
		return envelope.Agents, nil
	case envelope.Data != nil:
		return envelope.Data, nil
	case envelope.Results != nil:
		return envelope.Results, nil
	}
	return []domain.Agent{}, nil
}

// GetAgent finds an agent by id. Returns domain.ErrAgentNotFound if the
// service does not list it.
func (c *Client) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	agents, err := c.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	for i := range agents {
		if agents[i].ID == id {
			return &agents[i], nil
		}
	}
	return nil, domain.ErrAgentNotFound
}

// Healthy reports whether the agent service is reachable with the
// configured credentials. Used as a startup probe only.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.ListAgents(ctx)
	if err != nil {
		c.logger.Warn("agent service connectivity check failed", "error", err)
		return false
	}
	return true
}

// websocketToken obtains a short-lived token for the streaming endpoint.
// The service may not implement the token endpoint; fall back to the API
// key so streaming keeps working against older deployments.
func (c *Client) websocketToken(ctx context.Context, agentID string) string {
	payload, err := json.Marshal(map[string]any{
		"agentId":   agentID,
		"expiresIn": 3600,
	})
	if err != nil {
		return c.apiKey
	}

	tokenCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(tokenCtx, http.MethodPost, c.baseURL+"/agents/auth/websocket", bytes.NewReader(payload))
	if err != nil {
		return c.apiKey
	}
	req.Header = c.authHeaders()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("websocket token request failed, falling back to API key", "error", err)
		return c.apiKey
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close token response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode != http.StatusNotFound {
			c.logger.Warn("websocket token endpoint returned non-success, falling back to API key", "status", resp.StatusCode)
		}
		return c.apiKey
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Token == "" {
		c.logger.Warn("websocket token response unreadable, falling back to API key", "error", err)
		return c.apiKey
	}
	return body.Token
}
