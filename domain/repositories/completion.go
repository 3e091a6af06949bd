package repositories

import (
	"context"
	"fmt"

	"github.com/Fixverse25/KonvoAI/domain/entities"
)

// Completion abstracts the conversational text-completion service.
type Completion interface {
	// Complete sends the windowed history and returns the reply text.
	Complete(ctx context.Context, turns []entities.Turn) (string, error)
	// Stream sends the windowed history and returns reply text as
	// incremental chunks. The channel is closed after the final chunk;
	// a streaming failure after the first chunk closes the channel early.
	Stream(ctx context.Context, turns []entities.Turn) (<-chan string, error)
}

// FailureKind groups completion failures for user-facing messaging.
type FailureKind string

const (
	FailureRateLimited  FailureKind = "rate_limited"
	FailureUnavailable  FailureKind = "unavailable"
	FailureUnauthorized FailureKind = "unauthorized"
	FailureInternal     FailureKind = "internal"
)

// CompletionError classifies completion-service failures. Transient
// failures (rate limits, timeouts, connectivity) are worth one retry;
// fatal ones (auth, malformed request) are surfaced immediately.
type CompletionError struct {
	Transient bool
	Kind      FailureKind
	Err       error
}

func (e *CompletionError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("completion %s error: %v", kind, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }
