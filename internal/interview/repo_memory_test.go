package interview

import (
	"context"
	"errors"
	"testing"
	"time"
)

func pendingAttempt(id, userID, requestID string) Attempt {
	return Attempt{
		ID:        id,
		RequestID: requestID,
		UserID:    userID,
		Status:    StatusPending,
		StartedAt: time.Now().UTC(),
	}
}

func TestMemoryRepoDuplicateLiveAttempt(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	if err := repo.CreatePending(ctx, pendingAttempt("a1", "u1", "r1")); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	err := repo.CreatePending(ctx, pendingAttempt("a2", "u1", "r1"))
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	// Same request ID under another user is independent.
	if err := repo.CreatePending(ctx, pendingAttempt("a3", "u2", "r1")); err != nil {
		t.Fatalf("CreatePending other user: %v", err)
	}
}

func TestMemoryRepoFailedAttemptFreesRequestID(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	if err := repo.CreatePending(ctx, pendingAttempt("a1", "u1", "r1")); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if err := repo.MarkFailed(ctx, "a1", "MODEL_INVOCATION_ERROR: boom", true, time.Now().UTC()); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	if _, err := repo.FindByRequestID(ctx, "u1", "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected failed attempt invisible to lookup, got %v", err)
	}
	if err := repo.CreatePending(ctx, pendingAttempt("a2", "u1", "r1")); err != nil {
		t.Fatalf("retry after failure should succeed: %v", err)
	}
}

func TestMemoryRepoMarkSuccessVisibleToLookup(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	if err := repo.CreatePending(ctx, pendingAttempt("a1", "u1", "r1")); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if err := repo.MarkSuccess(ctx, "a1", "res1", time.Now().UTC()); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}

	attempt, err := repo.FindByRequestID(ctx, "u1", "r1")
	if err != nil {
		t.Fatalf("FindByRequestID: %v", err)
	}
	if attempt.Status != StatusSuccess || attempt.ResultID != "res1" {
		t.Fatalf("unexpected attempt: %+v", attempt)
	}
	if attempt.CompletedAt == nil {
		t.Fatalf("expected completedAt set")
	}
}

func TestMemoryRepoSaveResultUpserts(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	first := Result{ID: "res1", RequestID: "r1", UserID: "u1", Summary: "first", CreatedAt: time.Now().UTC()}
	second := Result{ID: "res2", RequestID: "r1", UserID: "u1", Summary: "second", CreatedAt: time.Now().UTC()}
	if err := repo.SaveResult(ctx, first); err != nil {
		t.Fatalf("SaveResult first: %v", err)
	}
	if err := repo.SaveResult(ctx, second); err != nil {
		t.Fatalf("SaveResult second: %v", err)
	}

	got, err := repo.GetResult(ctx, "u1", "r1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.ID != "res2" || got.Summary != "second" {
		t.Fatalf("expected upsert to overwrite, got %+v", got)
	}
}

func TestMemoryRepoListResultsNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"r1", "r2", "r3"} {
		result := Result{ID: id, RequestID: id, UserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.SaveResult(ctx, result); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
	}
	if err := repo.SaveResult(ctx, Result{ID: "x", RequestID: "x", UserID: "u2", CreatedAt: base}); err != nil {
		t.Fatalf("SaveResult other user: %v", err)
	}

	results, err := repo.ListResults(ctx, "u1", 2, 0)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].RequestID != "r3" || results[1].RequestID != "r2" {
		t.Fatalf("expected newest first, got %s then %s", results[0].RequestID, results[1].RequestID)
	}

	rest, err := repo.ListResults(ctx, "u1", 2, 2)
	if err != nil {
		t.Fatalf("ListResults offset: %v", err)
	}
	if len(rest) != 1 || rest[0].RequestID != "r1" {
		t.Fatalf("unexpected offset page: %+v", rest)
	}
}

func TestMemoryRepoMockResultLifecycle(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	result := MockResult{
		ID:        "m1",
		UserID:    "u1",
		SessionID: "s1",
		Type:      MockTypeSpecial,
		Status:    MockStatusInProgress,
		Turns:     []MockTurn{{Question: "q1", ReferenceAnswer: "r1"}},
		StartedAt: time.Now().UTC(),
	}
	if err := repo.CreateMockResult(ctx, result); err != nil {
		t.Fatalf("CreateMockResult: %v", err)
	}
	if err := repo.CreateMockResult(ctx, result); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	bySession, err := repo.GetMockBySessionID(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("GetMockBySessionID: %v", err)
	}
	if bySession.ID != "m1" {
		t.Fatalf("unexpected record: %+v", bySession)
	}
	if _, err := repo.GetMockBySessionID(ctx, "u2", "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected foreign user invisible, got %v", err)
	}
	if _, err := repo.GetMockResult(ctx, "u2", "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected foreign user invisible by ID, got %v", err)
	}

	result.Status = MockStatusCompleted
	result.AnsweredQuestions = 1
	if err := repo.UpdateMockResult(ctx, result); err != nil {
		t.Fatalf("UpdateMockResult: %v", err)
	}
	updated, err := repo.GetMockResult(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("GetMockResult: %v", err)
	}
	if updated.Status != MockStatusCompleted || updated.AnsweredQuestions != 1 {
		t.Fatalf("expected update persisted, got %+v", updated)
	}

	missing := result
	missing.ID = "m2"
	if err := repo.UpdateMockResult(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown record, got %v", err)
	}
}

func TestMemoryRepoListStalePending(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	old := pendingAttempt("a1", "u1", "r1")
	old.StartedAt = time.Now().UTC().Add(-time.Hour)
	if err := repo.CreatePending(ctx, old); err != nil {
		t.Fatalf("CreatePending old: %v", err)
	}
	fresh := pendingAttempt("a2", "u1", "r2")
	if err := repo.CreatePending(ctx, fresh); err != nil {
		t.Fatalf("CreatePending fresh: %v", err)
	}

	stale, err := repo.ListStalePending(ctx, time.Now().UTC().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("ListStalePending: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "a1" {
		t.Fatalf("expected only the old attempt, got %+v", stale)
	}
}
