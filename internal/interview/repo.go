package interview

import (
	"context"
	"time"
)

// Repo defines persistence for quiz attempts and results. Implementations
// must enforce the (user_id, request_id) uniqueness of live attempts at the
// storage layer, not by check-then-act.
type Repo interface {
	// FindByRequestID returns the live (pending or success) attempt for the
	// pair, ignoring failed ones. ErrNotFound when no live attempt exists.
	FindByRequestID(ctx context.Context, userID, requestID string) (Attempt, error)
	// CreatePending inserts a new pending attempt. ErrDuplicateRequest when a
	// live attempt for the same pair already exists.
	CreatePending(ctx context.Context, attempt Attempt) error
	MarkSuccess(ctx context.Context, attemptID, resultID string, completedAt time.Time) error
	MarkFailed(ctx context.Context, attemptID, cause string, refunded bool, failedAt time.Time) error
	// SaveResult upserts by request ID so a retried run after a partial
	// failure overwrites the orphan instead of erroring.
	SaveResult(ctx context.Context, result Result) error
	GetResult(ctx context.Context, userID, requestID string) (Result, error)
	ListResults(ctx context.Context, userID string, limit, offset int) ([]Result, error)
	// ListStalePending returns pending attempts started before the cutoff,
	// for the reconciliation sweep.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]Attempt, error)

	// CreateMockResult inserts a new mock interview session record.
	CreateMockResult(ctx context.Context, result MockResult) error
	GetMockResult(ctx context.Context, userID, resultID string) (MockResult, error)
	// GetMockBySessionID resolves the record behind a client-held session ID.
	GetMockBySessionID(ctx context.Context, userID, sessionID string) (MockResult, error)
	// UpdateMockResult overwrites the mutable state of a session record
	// (turns, counters, status, lifecycle timestamps).
	UpdateMockResult(ctx context.Context, result MockResult) error
}
