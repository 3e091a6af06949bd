package repositories

import (
	"context"

	"github.com/Fixverse25/KonvoAI/domain/entities"
)

// SessionStore is the external session cache. Retention is the store's
// concern: records expire after a fixed inactivity window and a miss is
// not an error; callers start a fresh session.
type SessionStore interface {
	// Get returns the session or (nil, nil) when absent or expired.
	Get(ctx context.Context, id string) (*entities.Session, error)
	// Save persists the session and refreshes its TTL.
	Save(ctx context.Context, session *entities.Session) error
	// Delete removes the session record.
	Delete(ctx context.Context, id string) error
}
