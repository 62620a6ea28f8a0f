package interview

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores attempts and results in memory and is safe for
// concurrent use.
type MemoryRepo struct {
	mu        sync.Mutex
	attempts  map[string]Attempt    // by attempt ID
	live      map[string]string     // userID+"/"+requestID -> live attempt ID
	results   map[string]Result     // userID+"/"+requestID -> result
	mocks     map[string]MockResult // by result ID
	mockByKey map[string]string     // userID+"/"+sessionID -> result ID
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		attempts:  make(map[string]Attempt),
		live:      make(map[string]string),
		results:   make(map[string]Result),
		mocks:     make(map[string]MockResult),
		mockByKey: make(map[string]string),
	}
}

func pairKey(userID, requestID string) string {
	return userID + "/" + requestID
}

// FindByRequestID returns the live attempt for the pair, if any.
func (r *MemoryRepo) FindByRequestID(ctx context.Context, userID, requestID string) (Attempt, error) {
	if err := ctx.Err(); err != nil {
		return Attempt{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.live[pairKey(userID, requestID)]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return r.attempts[id], nil
}

// CreatePending inserts a pending attempt. The uniqueness check and the
// insert happen under one lock acquisition, mirroring the storage-level
// constraint of the Postgres repo.
func (r *MemoryRepo) CreatePending(ctx context.Context, attempt Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey(attempt.UserID, attempt.RequestID)
	if _, exists := r.live[key]; exists {
		return ErrDuplicateRequest
	}
	attempt.Status = StatusPending
	r.attempts[attempt.ID] = attempt
	r.live[key] = attempt.ID
	return nil
}

// MarkSuccess transitions a pending attempt to success.
func (r *MemoryRepo) MarkSuccess(ctx context.Context, attemptID, resultID string, completedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[attemptID]
	if !ok {
		return ErrNotFound
	}
	attempt.Status = StatusSuccess
	attempt.ResultID = resultID
	attempt.CompletedAt = &completedAt
	r.attempts[attemptID] = attempt
	return nil
}

// MarkFailed transitions a pending attempt to failed, freeing the request ID.
func (r *MemoryRepo) MarkFailed(ctx context.Context, attemptID, cause string, refunded bool, failedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[attemptID]
	if !ok {
		return ErrNotFound
	}
	attempt.Status = StatusFailed
	attempt.ErrorMessage = &cause
	attempt.Refunded = refunded
	attempt.CompletedAt = &failedAt
	r.attempts[attemptID] = attempt
	delete(r.live, pairKey(attempt.UserID, attempt.RequestID))
	return nil
}

// SaveResult upserts the result for its request ID.
func (r *MemoryRepo) SaveResult(ctx context.Context, result Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.results[pairKey(result.UserID, result.RequestID)] = result
	r.mu.Unlock()
	return nil
}

// GetResult returns the stored result for the pair.
func (r *MemoryRepo) GetResult(ctx context.Context, userID, requestID string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.results[pairKey(userID, requestID)]
	if !ok {
		return Result{}, ErrNotFound
	}
	return result, nil
}

// ListResults returns a user's results, newest first, with limit/offset.
func (r *MemoryRepo) ListResults(ctx context.Context, userID string, limit, offset int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.Lock()
	var results []Result
	for _, result := range r.results {
		if result.UserID == userID {
			results = append(results, result)
		}
	}
	r.mu.Unlock()

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if offset >= len(results) {
		return []Result{}, nil
	}
	end := len(results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return results[offset:end], nil
}

// CreateMockResult inserts a mock interview record.
func (r *MemoryRepo) CreateMockResult(ctx context.Context, result MockResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.mocks[result.ID]; exists {
		return ErrDuplicateRequest
	}
	r.mocks[result.ID] = result
	r.mockByKey[pairKey(result.UserID, result.SessionID)] = result.ID
	return nil
}

// GetMockResult returns a user's mock interview record.
func (r *MemoryRepo) GetMockResult(ctx context.Context, userID, resultID string) (MockResult, error) {
	if err := ctx.Err(); err != nil {
		return MockResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.mocks[resultID]
	if !ok || result.UserID != userID {
		return MockResult{}, ErrNotFound
	}
	return result, nil
}

// GetMockBySessionID resolves the record behind a session ID.
func (r *MemoryRepo) GetMockBySessionID(ctx context.Context, userID, sessionID string) (MockResult, error) {
	if err := ctx.Err(); err != nil {
		return MockResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.mockByKey[pairKey(userID, sessionID)]
	if !ok {
		return MockResult{}, ErrNotFound
	}
	return r.mocks[id], nil
}

// UpdateMockResult overwrites an existing mock interview record.
func (r *MemoryRepo) UpdateMockResult(ctx context.Context, result MockResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.mocks[result.ID]
	if !ok || existing.UserID != result.UserID {
		return ErrNotFound
	}
	r.mocks[result.ID] = result
	return nil
}

// ListStalePending returns pending attempts started before the cutoff.
func (r *MemoryRepo) ListStalePending(ctx context.Context, cutoff time.Time) ([]Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []Attempt
	for _, attempt := range r.attempts {
		if attempt.Status == StatusPending && attempt.StartedAt.Before(cutoff) {
			stale = append(stale, attempt)
		}
	}
	return stale, nil
}
