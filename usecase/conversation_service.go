package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Fixverse25/KonvoAI/domain/entities"
	"github.com/Fixverse25/KonvoAI/domain/repositories"
)

const (
	defaultHistoryWindow = 20
	defaultRetryBackoff  = 500 * time.Millisecond

	apologyEnglish = "I'm sorry, I'm having trouble answering right now. Please try again in a moment."
	apologySwedish = "Jag ber om ursäkt, jag har problem att svara just nu. Försök igen om en liten stund."

	apologyBusyEnglish = "I'm receiving a lot of questions right now. Please give me a moment and try again."
	apologyBusySwedish = "Jag får många frågor just nu. Vänta en liten stund och försök igen."

	apologyDownEnglish = "I'm having trouble reaching my answering service. Please try again shortly."
	apologyDownSwedish = "Jag har problem att nå min svarstjänst. Försök igen om en stund."
)

// TurnReply is the outcome of one completed conversation turn.
type TurnReply struct {
	SessionID  string
	Reply      string
	Apologized bool
}

// StreamingReply carries an in-progress assistant reply. Chunks
// arrive on Chunks until the reply is complete; the full text is
// persisted to the session before Chunks is closed.
type StreamingReply struct {
	SessionID string
	Chunks    <-chan string
}

// ConversationService orchestrates conversation turns: it resolves
// the session, appends the user turn, asks the completion provider
// for a reply over the windowed history and persists the result.
type ConversationService struct {
	store         repositories.SessionStore
	completion    repositories.Completion
	historyWindow int
	retryBackoff  time.Duration
	logger        *zap.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(
	store repositories.SessionStore,
	completion repositories.Completion,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		store:         store,
		completion:    completion,
		historyWindow: defaultHistoryWindow,
		retryBackoff:  defaultRetryBackoff,
		logger:        logger,
	}
}

// HandleTurn runs one full conversation turn. An empty sessionID (or
// an ID whose record has expired) starts a fresh session in the
// utterance's language. Provider failures never lose the user's turn:
// the turn is persisted together with an apology in the session
// language and the apology is returned as the reply.
func (s *ConversationService) HandleTurn(ctx context.Context, sessionID string, utterance entities.Utterance) (*TurnReply, error) {
	if strings.TrimSpace(utterance.Text) == "" {
		return nil, fmt.Errorf("message text is required")
	}

	session, err := s.resolveSession(ctx, sessionID, utterance.Language)
	if err != nil {
		return nil, err
	}
	session.Append(entities.RoleUser, utterance.Text, utterance.Source)

	reply, err := s.complete(ctx, session.Window(s.historyWindow))
	apologized := false
	if err != nil {
		s.logger.Error("Completion failed, replying with apology",
			zap.String("sessionID", session.ID),
			zap.Error(err))
		reply = apologyFor(session.Language, err)
		apologized = true
	}

	session.Append(entities.RoleAssistant, reply, utterance.Source)
	if err := s.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	s.logger.Info("Conversation turn completed",
		zap.String("sessionID", session.ID),
		zap.Int("turns", len(session.Turns)),
		zap.Bool("apologized", apologized))

	return &TurnReply{SessionID: session.ID, Reply: reply, Apologized: apologized}, nil
}

// StreamTurn is the streaming variant of HandleTurn. The assistant
// reply is forwarded chunk by chunk and persisted in full once the
// stream ends. Streaming does not retry; a mid-stream failure falls
// back to the apology, delivered as a final chunk.
func (s *ConversationService) StreamTurn(ctx context.Context, sessionID string, utterance entities.Utterance) (*StreamingReply, error) {
	if strings.TrimSpace(utterance.Text) == "" {
		return nil, fmt.Errorf("message text is required")
	}

	session, err := s.resolveSession(ctx, sessionID, utterance.Language)
	if err != nil {
		return nil, err
	}
	session.Append(entities.RoleUser, utterance.Text, utterance.Source)

	upstream, err := s.completion.Stream(ctx, session.Window(s.historyWindow))
	if err != nil {
		reply := apologyFor(session.Language, err)
		session.Append(entities.RoleAssistant, reply, utterance.Source)
		if saveErr := s.store.Save(ctx, session); saveErr != nil {
			return nil, fmt.Errorf("failed to persist session: %w", saveErr)
		}
		out := make(chan string, 1)
		out <- reply
		close(out)
		return &StreamingReply{SessionID: session.ID, Chunks: out}, nil
	}

	out := make(chan string)
	go func() {
		defer close(out)
		var full strings.Builder
		for chunk := range upstream {
			full.WriteString(chunk)
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}

		reply := full.String()
		if strings.TrimSpace(reply) == "" {
			reply = apologyFor(session.Language, nil)
			select {
			case out <- reply:
			case <-ctx.Done():
				return
			}
		}

		session.Append(entities.RoleAssistant, reply, utterance.Source)
		if err := s.store.Save(ctx, session); err != nil {
			s.logger.Error("Failed to persist streamed turn",
				zap.String("sessionID", session.ID),
				zap.Error(err))
		}
	}()

	return &StreamingReply{SessionID: session.ID, Chunks: out}, nil
}

// EndSession removes the session record.
func (s *ConversationService) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.store.Delete(ctx, sessionID)
}

// resolveSession loads an existing session or starts a fresh one. An
// unknown or expired ID silently becomes a new session rather than an
// error, so stale widget clients recover on their next message. The
// session language is fixed on first contact and adopted later only if
// it was never known.
func (s *ConversationService) resolveSession(ctx context.Context, sessionID string, language string) (*entities.Session, error) {
	if sessionID != "" {
		session, err := s.store.Get(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		if session != nil {
			if session.Language == "" {
				session.Language = language
			}
			session.Touch()
			return session, nil
		}
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	s.logger.Debug("Starting new session",
		zap.String("sessionID", sessionID),
		zap.String("language", language))
	return entities.NewSession(sessionID, language), nil
}

// complete calls the provider, retrying exactly once after a short
// backoff when the failure is transient.
func (s *ConversationService) complete(ctx context.Context, turns []entities.Turn) (string, error) {
	reply, err := s.completion.Complete(ctx, turns)
	if err == nil {
		return reply, nil
	}

	var cerr *repositories.CompletionError
	if !errors.As(err, &cerr) || !cerr.Transient {
		return "", err
	}

	select {
	case <-time.After(s.retryBackoff):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	s.logger.Warn("Retrying transient completion failure", zap.Error(err))
	return s.completion.Complete(ctx, turns)
}

// apologyFor picks the apology text that matches the failure. Rate
// limits read as "busy", connectivity as "unreachable", everything
// else gets the generic apology.
func apologyFor(language string, err error) string {
	swedish := strings.HasPrefix(strings.ToLower(language), "sv")

	var cerr *repositories.CompletionError
	if errors.As(err, &cerr) {
		switch cerr.Kind {
		case repositories.FailureRateLimited:
			if swedish {
				return apologyBusySwedish
			}
			return apologyBusyEnglish
		case repositories.FailureUnavailable:
			if swedish {
				return apologyDownSwedish
			}
			return apologyDownEnglish
		}
	}

	if swedish {
		return apologySwedish
	}
	return apologyEnglish
}
