package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Fixverse25/KonvoAI/domain/entities"
	"github.com/Fixverse25/KonvoAI/domain/repositories"
)

const defaultSessionTTL = 7 * 24 * time.Hour

// ErrInvalidSession is returned when a nil session or a session
// without an ID is passed to Save.
var ErrInvalidSession = errors.New("invalid session")

// Store is a Redis-backed session store. Sessions are serialized as
// JSON under "conversation:<id>" and expire after the configured TTL
// of inactivity. Every Save refreshes the TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ repositories.SessionStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the inactivity window after which sessions expire.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// NewStore creates a Redis-backed session store.
func NewStore(client *redis.Client, logger *zap.Logger, opts ...Option) *Store {
	store := &Store{
		client: client,
		ttl:    defaultSessionTTL,
		logger: logger,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Get returns the session for the given ID, or (nil, nil) when the
// record is absent or has expired.
func (s *Store) Get(ctx context.Context, id string) (*entities.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}

	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var session entities.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Save persists the session and refreshes its TTL.
func (s *Store) Save(ctx context.Context, session *entities.Session) error {
	if session == nil || session.ID == "" {
		return ErrInvalidSession
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	s.logger.Debug("Session saved",
		zap.String("sessionID", session.ID),
		zap.Int("turns", len(session.Turns)))
	return nil
}

// Delete removes the session record. Deleting an absent session is
// not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return "conversation:" + id
}
