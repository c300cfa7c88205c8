package relay

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/ragwalla/agent-studio/internal/domain"
	"github.com/ragwalla/agent-studio/internal/gateway"
	"github.com/ragwalla/agent-studio/internal/store"
)

// persistTimeout bounds the write of the assistant message after a
// stream ends, so that a cancelled request context cannot lose the
// partial transcript.
const persistTimeout = 5 * time.Second

// Streamer produces agent response fragments for a user message.
// Implemented by gateway.Client.
type Streamer interface {
	SendMessage(ctx context.Context, agentID, sessionID, text string) iter.Seq2[gateway.Fragment, error]
}

// Relay drives a single user->agent exchange: persist the user message,
// stream the agent reply to every attached connection, persist the
// assistant message.
type Relay struct {
	repo     store.Repository
	agents   Streamer
	registry *Registry
}

// NewRelay creates a relay over the given repository and agent streamer.
func NewRelay(repo store.Repository, agents Streamer, registry *Registry) *Relay {
	return &Relay{
		repo:     repo,
		agents:   agents,
		registry: registry,
	}
}

// Registry exposes the connection registry the relay broadcasts through.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Exchange runs one exchange for a session. It returns once the
// assistant message has been persisted, complete or partial. A stream
// failure after fragments were received still stores the accumulated
// text, flagged as incomplete.
func (r *Relay) Exchange(ctx context.Context, sess *domain.Session, text string) error {
	userMsg, err := r.repo.AppendMessage(ctx, sess.ID, domain.RoleUser, text, false)
	if err != nil {
		r.registry.Broadcast(ctx, sess.ID, errorFrame("failed to save message"))
		return fmt.Errorf("persisting user message: %w", err)
	}
	r.registry.Broadcast(ctx, sess.ID, userMessageFrame(userMsg))
	r.registry.Broadcast(ctx, sess.ID, typingFrame(true))
	defer r.registry.Broadcast(ctx, sess.ID, typingFrame(false))

	var reply strings.Builder
	var streamErr error
	for frag, err := range r.agents.SendMessage(ctx, sess.AgentID, sess.ID, text) {
		if err != nil {
			streamErr = err
			break
		}
		reply.WriteString(frag.Text)
		r.registry.Broadcast(ctx, sess.ID, fragmentFrame(frag.Text))
	}

	if streamErr != nil {
		r.persistReply(sess.ID, reply.String(), true)
		r.registry.Broadcast(ctx, sess.ID, errorFrame(reasonFor(streamErr)))
		return fmt.Errorf("streaming agent response: %w", streamErr)
	}

	if err := r.persistReply(sess.ID, reply.String(), false); err != nil {
		r.registry.Broadcast(ctx, sess.ID, errorFrame("failed to save response"))
		return fmt.Errorf("persisting assistant message: %w", err)
	}
	r.registry.Broadcast(ctx, sess.ID, doneFrame())
	return nil
}

// persistReply stores the assistant message on a detached context so a
// client disconnect mid-stream does not drop what was received.
func (r *Relay) persistReply(sessionID, text string, incomplete bool) error {
	if incomplete && text == "" {
		// Nothing arrived before the failure; no transcript to keep.
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if _, err := r.repo.AppendMessage(ctx, sessionID, domain.RoleAssistant, text, incomplete); err != nil {
		slog.Error("Failed to persist assistant message", "error", err, "session_id", sessionID, "incomplete", incomplete)
		return err
	}
	return nil
}

// reasonFor maps a stream failure to the reason string surfaced to the
// browser, without leaking transport detail.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, gateway.ErrUnavailable):
		return "agent service unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "agent response timed out"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	default:
		return "agent stream interrupted"
	}
}
