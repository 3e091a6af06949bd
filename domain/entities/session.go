package entities

import (
	"errors"
	"strings"
	"time"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source records how a turn entered the conversation.
type Source string

const (
	SourceVoice Source = "voice"
	SourceTyped Source = "typed"
)

// Utterance is recognized speech or typed text on its way into the
// orchestrator. Immutable once created.
type Utterance struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
	Source     Source  `json:"source"`
}

// Turn is a single message in a session's history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
}

// Session is the conversation record for one widget session. History is
// append-only; retention is enforced by the store's TTL, not here.
type Session struct {
	ID             string    `json:"id"`
	Turns          []Turn    `json:"turns"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Language       string    `json:"language"`
}

// NewSession creates an empty session.
func NewSession(id string, language string) *Session {
	now := time.Now()
	return &Session{
		ID:             id,
		Turns:          make([]Turn, 0),
		CreatedAt:      now,
		LastActivityAt: now,
		Language:       language,
	}
}

// Append adds a turn to the history and refreshes activity.
func (s *Session) Append(role Role, content string, source Source) {
	s.Turns = append(s.Turns, Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Source:    source,
	})
	s.Touch()
}

// Touch refreshes the activity timestamp; the store derives TTL from it.
func (s *Session) Touch() {
	s.LastActivityAt = time.Now()
}

const (
	// maxTurnRunes bounds a single turn's contribution to the prompt
	// context. Roughly 1000 tokens at 4 chars/token.
	maxTurnRunes = 4000

	truncationMarker = "... [message truncated]"
)

// Window returns the most recent turns formatted for the completion
// service: at most max turns, oversized content truncated, empty turns
// dropped, and consecutive same-role turns merged so the provider never
// sees two user or two assistant messages in a row.
func (s *Session) Window(max int) []Turn {
	turns := s.Turns
	if max > 0 && len(turns) > max {
		turns = turns[len(turns)-max:]
	}

	window := make([]Turn, 0, len(turns))
	for _, turn := range turns {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		if len([]rune(content)) > maxTurnRunes {
			content = string([]rune(content)[:maxTurnRunes]) + truncationMarker
		}

		if n := len(window); n > 0 && window[n-1].Role == turn.Role {
			window[n-1].Content += "\n\n" + content
			continue
		}

		turn.Content = content
		window = append(window, turn)
	}

	return window
}

// Validate checks the fixed-shape invariants before persisting.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	for _, turn := range s.Turns {
		if turn.Role != RoleUser && turn.Role != RoleAssistant {
			return errors.New("invalid turn role")
		}
	}
	return nil
}
