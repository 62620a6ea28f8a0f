package interview

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrWorkInProgress is returned when a pending attempt already exists for
	// the (user, request) pair. The caller should wait and retry later.
	ErrWorkInProgress = errors.New("request already in progress")
	// ErrInconsistentState signals an attempt marked success whose result is
	// missing. It indicates a corrupted prior write and is never repaired
	// silently.
	ErrInconsistentState = errors.New("attempt succeeded but result is missing")
	// ErrDuplicateRequest is returned by the repo when a live attempt with
	// the same (user, request) pair already exists.
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrMockNotActive is returned when a mock interview operation needs a
	// state the session is not in, e.g. answering a paused interview or
	// pausing a completed one.
	ErrMockNotActive = errors.New("mock interview is not in the required state")
)

const (
	ErrorCodeValidation = "VALIDATION_ERROR"
	ErrorCodeModel      = "MODEL_INVOCATION_ERROR"
	ErrorCodeTimeout    = "MODEL_TIMEOUT"
	ErrorCodeStorage    = "STORAGE_ERROR"
	ErrorCodeInternal   = "INTERNAL_ERROR"
)
