// Package dialogue maintains per-session conversation state and turns
// user utterances into assistant replies via an inference provider.
//
// Each session holds an ordered transcript of user/assistant turns.
// Turns within one session are strictly serialized: a session processes
// exactly one Respond call at a time, so the transcript always alternates
// user, assistant, user, assistant. A failed generation leaves the
// transcript exactly as it was before the call.
package dialogue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arguendo/arguendo/pkg/inference"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single entry in a session transcript.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is a single conversation with its own transcript.
// All methods are safe for concurrent use; concurrent Respond calls
// on the same session are processed one at a time.
type Session struct {
	id           string
	systemPrompt string
	provider     inference.Provider
	logger       *slog.Logger

	mu      sync.Mutex
	history []Turn
}

// NewSession creates a session backed by the given inference provider.
func NewSession(id, systemPrompt string, provider inference.Provider, logger *slog.Logger) *Session {
	return &Session{
		id:           id,
		systemPrompt: systemPrompt,
		provider:     provider,
		logger:       logger.With("component", "dialogue.session", "session_id", id),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Respond appends userText as a user turn, generates an assistant reply
// over the full transcript, appends the reply, and returns it.
//
// If generation fails, the user turn is rolled back so the transcript is
// unchanged and the turn can be retried. The session lock is held for the
// whole exchange, including the provider call, so overlapping callers see
// each other's completed turns, never a half-finished one.
func (s *Session) Respond(ctx context.Context, userText string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, Turn{Role: RoleUser, Text: userText, At: time.Now()})

	resp, err := s.provider.Chat(ctx, &inference.ChatRequest{
		Messages: s.promptLocked(),
	})
	if err != nil {
		// Roll back the user turn so a retry starts from the same state.
		s.history = s.history[:len(s.history)-1]
		s.logger.Warn("generation failed, turn rolled back", "error", err)
		return "", err
	}

	reply := resp.Message.Content
	s.history = append(s.history, Turn{Role: RoleAssistant, Text: reply, At: time.Now()})

	s.logger.Debug("turn completed",
		"turns", len(s.history),
		"reply_len", len(reply),
	)
	return reply, nil
}

// History returns a copy of the transcript in order.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of turns in the transcript.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// promptLocked builds the provider message list: the system prompt
// followed by every turn in order. Caller must hold s.mu.
func (s *Session) promptLocked() []inference.Message {
	msgs := make([]inference.Message, 0, len(s.history)+1)
	if s.systemPrompt != "" {
		msgs = append(msgs, inference.NewSystemMessage(s.systemPrompt))
	}
	for _, t := range s.history {
		switch t.Role {
		case RoleUser:
			msgs = append(msgs, inference.NewUserMessage(t.Text))
		case RoleAssistant:
			msgs = append(msgs, inference.NewAssistantMessage(t.Text))
		}
	}
	return msgs
}
