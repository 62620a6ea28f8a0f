package interview

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"interview-backend/internal/llm"
	"interview-backend/internal/quota"
	"interview-backend/internal/session"
)

const testRequestID = "11111111-1111-1111-1111-111111111111"

var questionsJSON = json.RawMessage(`{
	"questions": [
		{"prompt": "Explain goroutine scheduling", "referenceAnswer": "GMP model", "category": "fundamentals", "difficulty": "medium"},
		{"prompt": "Describe a project you led", "referenceAnswer": "STAR format", "category": "project", "difficulty": "easy"}
	],
	"summary": "solid backend candidate"
}`)

var matchJSON = json.RawMessage(`{
	"matchScore": 82,
	"matchedSkills": ["go", "postgres"],
	"missingSkills": ["kubernetes"],
	"radarData": {"technical": 80, "experience": 75, "education": 70, "communication": 85, "potential": 90},
	"strengths": ["backend depth"],
	"weaknesses": ["no infra experience"],
	"tips": ["review container basics"]
}`)

type fakeLLM struct {
	mu    sync.Mutex
	calls int
	fn    func(req llm.CompletionRequest) (json.RawMessage, error)
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(req)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func happyLLM() *fakeLLM {
	return &fakeLLM{fn: func(req llm.CompletionRequest) (json.RawMessage, error) {
		if strings.Contains(req.Prompt, "interview questions") {
			return questionsJSON, nil
		}
		if strings.Contains(req.Prompt, "Score how well") {
			return matchJSON, nil
		}
		return json.RawMessage(`{"reply": "tell me more"}`), nil
	}}
}

func quizRequest(requestID string) QuizRequest {
	return QuizRequest{
		RequestID:     requestID,
		Company:       "Acme",
		Position:      "Backend Engineer",
		MinSalary:     "20k",
		MaxSalary:     "30k",
		JD:            "Build Go services",
		ResumeURL:     "https://cdn.example.com/resume.pdf",
		ResumeContent: "Five years of Go, Postgres and Redis experience.",
	}
}

func newTestService(client llm.Client) (*Service, *MemoryRepo, *quota.Service) {
	repo := NewMemoryRepo()
	quotaSvc := quota.NewService()
	svc := &Service{
		Repo:     repo,
		Quota:    quotaSvc,
		LLM:      client,
		Sessions: session.NewMemoryStore(),
	}
	return svc, repo, quotaSvc
}

func remaining(t *testing.T, quotaSvc *quota.Service, userID string) int {
	t.Helper()
	n, err := quotaSvc.Remaining(context.Background(), userID, quota.CategoryResume)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	return n
}

func TestSubmitResumeQuizSuccess(t *testing.T) {
	svc, repo, quotaSvc := newTestService(happyLLM())
	ctx := context.Background()

	before := remaining(t, quotaSvc, "u1")
	em, err := svc.SubmitResumeQuiz(ctx, "u1", quizRequest(testRequestID))
	if err != nil {
		t.Fatalf("SubmitResumeQuiz: %v", err)
	}
	events := collectEvents(em)

	last := events[len(events)-1]
	if last.Type != EventProgress || last.Progress != 1 || last.Stage != StageDone {
		t.Fatalf("unexpected terminal event: %+v", last)
	}
	prev := -1.0
	terminals := 0
	for _, ev := range events {
		if ev.Progress < prev {
			t.Fatalf("progress decreased: %+v", events)
		}
		prev = ev.Progress
		if ev.Progress == 1 || ev.Type == EventError {
			terminals++
		}
	}
	if terminals != 1 {
		t.Fatalf("expected exactly one terminal event, got %d", terminals)
	}

	if got := remaining(t, quotaSvc, "u1"); got != before-1 {
		t.Fatalf("expected one debit, balance %d -> %d", before, got)
	}
	attempt, err := repo.FindByRequestID(ctx, "u1", testRequestID)
	if err != nil {
		t.Fatalf("FindByRequestID: %v", err)
	}
	if attempt.Status != StatusSuccess {
		t.Fatalf("expected success attempt, got %s", attempt.Status)
	}
	result, err := repo.GetResult(ctx, "u1", testRequestID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if len(result.Questions) != 2 || result.Match.MatchScore != 82 {
		t.Fatalf("unexpected result: %+v", result)
	}

	data, ok := last.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected data payload on terminal event")
	}
	if cached, _ := data["isFormCache"].(bool); cached {
		t.Fatalf("fresh run must not be marked as cache hit")
	}
}

func TestSubmitResumeQuizCacheHit(t *testing.T) {
	svc, _, quotaSvc := newTestService(happyLLM())
	ctx := context.Background()

	em, err := svc.SubmitResumeQuiz(ctx, "u1", quizRequest(testRequestID))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	collectEvents(em)
	afterFirst := remaining(t, quotaSvc, "u1")

	em2, err := svc.SubmitResumeQuiz(ctx, "u1", quizRequest(testRequestID))
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	events := collectEvents(em2)
	if len(events) != 1 {
		t.Fatalf("expected single cached terminal event, got %d", len(events))
	}
	if events[0].Progress != 1 || events[0].Stage != StageDone {
		t.Fatalf("unexpected cached event: %+v", events[0])
	}
	data, ok := events[0].Data.(map[string]any)
	if !ok {
		t.Fatalf("expected cached data payload")
	}
	if cached, _ := data["isFormCache"].(bool); !cached {
		t.Fatalf("expected isFormCache=true on replay")
	}
	if got := remaining(t, quotaSvc, "u1"); got != afterFirst {
		t.Fatalf("cache hit must not debit: %d -> %d", afterFirst, got)
	}
}

func TestSubmitResumeQuizPendingConflict(t *testing.T) {
	release := make(chan struct{})
	slow := &fakeLLM{fn: func(req llm.CompletionRequest) (json.RawMessage, error) {
		<-release
		if strings.Contains(req.Prompt, "interview questions") {
			return questionsJSON, nil
		}
		return matchJSON, nil
	}}
	svc, _, quotaSvc := newTestService(slow)
	ctx := context.Background()

	before := remaining(t, quotaSvc, "u1")
	em, err := svc.SubmitResumeQuiz(ctx, "u1", quizRequest(testRequestID))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	if _, err := svc.SubmitResumeQuiz(ctx, "u1", quizRequest(testRequestID)); !errors.Is(err, ErrWorkInProgress) {
		t.Fatalf("expected ErrWorkInProgress, got %v", err)
	}

	close(release)
	collectEvents(em)
	if got := remaining(t, quotaSvc, "u1"); got != before-1 {
		t.Fatalf("expected exactly one debit, balance %d -> %d", before, got)
	}
}

func TestSubmitResumeQuizInsufficientBalance(t *testing.T) {
	svc, repo, quotaSvc := newTestService(happyLLM())
	ctx := context.Background()

	for remaining(t, quotaSvc, "u1") > 0 {
		if _, err := quotaSvc.Debit(ctx, "u1", quota.CategoryResume); err != nil {
			t.Fatalf("drain: %v", err)
		}
	}

	_, err := svc.SubmitResumeQuiz(ctx, "u1", quizRequest(testRequestID))
	if !errors.Is(err, quota.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := repo.FindByRequestID(ctx, "u1", testRequestID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no attempt record may exist, got %v", err)
	}
}

func TestSubmitResumeQuizStageFailureRefunds(t *testing.T) {
	broken := &fakeLLM{fn: func(req llm.CompletionRequest) (json.RawMessage, error) {
		return nil, errors.New("upstream exploded")
	}}
	svc, repo, quotaSvc := newTestService(broken)
	ctx := context.Background()

	before := remaining(t, quotaSvc, "u1")
	em, err := svc.SubmitResumeQuiz(ctx, "u1", quizRequest(testRequestID))
	if err != nil {
		t.Fatalf("SubmitResumeQuiz: %v", err)
	}
	events := collectEvents(em)

	last := events[len(events)-1]
	if last.Type != EventError {
		t.Fatalf("expected terminal error event, got %+v", last)
	}
	errorEvents := 0
	for _, ev := range events {
		if ev.Type == EventError {
			errorEvents++
		}
	}
	if errorEvents != 1 {
		t.Fatalf("expected exactly one error event, got %d", errorEvents)
	}

	if got := remaining(t, quotaSvc, "u1"); got != before {
		t.Fatalf("debit must be credited back on failure: %d -> %d", before, got)
	}
	if _, err := repo.FindByRequestID(ctx, "u1", testRequestID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed attempt must free the request id, got %v", err)
	}
	if err := repo.CreatePending(ctx, pendingAttempt("retry", "u1", testRequestID)); err != nil {
		t.Fatalf("retry after failure should be possible: %v", err)
	}
}

func TestSubmitResumeQuizInvalidModelOutput(t *testing.T) {
	garbage := &fakeLLM{fn: func(req llm.CompletionRequest) (json.RawMessage, error) {
		return json.RawMessage(`{"questions": []}`), nil
	}}
	svc, _, quotaSvc := newTestService(garbage)
	ctx := context.Background()

	before := remaining(t, quotaSvc, "u1")
	em, err := svc.SubmitResumeQuiz(ctx, "u1", quizRequest(testRequestID))
	if err != nil {
		t.Fatalf("SubmitResumeQuiz: %v", err)
	}
	events := collectEvents(em)
	last := events[len(events)-1]
	if last.Type != EventError {
		t.Fatalf("expected error event, got %+v", last)
	}
	if !strings.Contains(last.Message, ErrorCodeModel) {
		t.Fatalf("expected %s in message, got %q", ErrorCodeModel, last.Message)
	}
	if got := remaining(t, quotaSvc, "u1"); got != before {
		t.Fatalf("expected refund, balance %d -> %d", before, got)
	}
}

func TestSubmitResumeQuizSuccessWithoutResultIsInconsistent(t *testing.T) {
	svc, repo, _ := newTestService(happyLLM())
	ctx := context.Background()

	if err := repo.CreatePending(ctx, pendingAttempt("a1", "u1", testRequestID)); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if err := repo.MarkSuccess(ctx, "a1", "missing-result", time.Now().UTC()); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}

	_, err := svc.SubmitResumeQuiz(ctx, "u1", quizRequest(testRequestID))
	if !errors.Is(err, ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState, got %v", err)
	}
}

func TestSubmitResumeQuizGeneratesRequestID(t *testing.T) {
	svc, _, _ := newTestService(happyLLM())

	req := quizRequest("")
	em, err := svc.SubmitResumeQuiz(context.Background(), "u1", req)
	if err != nil {
		t.Fatalf("SubmitResumeQuiz: %v", err)
	}
	events := collectEvents(em)
	if events[len(events)-1].Progress != 1 {
		t.Fatalf("expected successful run")
	}
}

func TestSubmitResumeQuizRejectsMalformedRequestID(t *testing.T) {
	svc, _, _ := newTestService(happyLLM())

	if _, err := svc.SubmitResumeQuiz(context.Background(), "u1", quizRequest("not-a-uuid")); err == nil {
		t.Fatalf("expected validation error for malformed request id")
	}
}

func TestReapStalePendingRefunds(t *testing.T) {
	svc, repo, quotaSvc := newTestService(happyLLM())
	ctx := context.Background()

	before := remaining(t, quotaSvc, "u1")
	if _, err := quotaSvc.Debit(ctx, "u1", quota.CategoryResume); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	stuck := pendingAttempt("a1", "u1", testRequestID)
	stuck.StartedAt = time.Now().UTC().Add(-time.Hour)
	if err := repo.CreatePending(ctx, stuck); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}

	reaped, err := svc.ReapStalePending(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("ReapStalePending: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("expected 1 reaped, got %d", reaped)
	}
	if got := remaining(t, quotaSvc, "u1"); got != before {
		t.Fatalf("expected refund, balance %d -> %d", before, got)
	}
	if _, err := repo.FindByRequestID(ctx, "u1", testRequestID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("reaped attempt must be failed, got %v", err)
	}
}

func TestAnalyzeResumeRefundsOnFailure(t *testing.T) {
	broken := &fakeLLM{fn: func(req llm.CompletionRequest) (json.RawMessage, error) {
		return nil, errors.New("boom")
	}}
	svc, _, quotaSvc := newTestService(broken)
	ctx := context.Background()

	before := remaining(t, quotaSvc, "u1")
	if _, err := svc.AnalyzeResume(ctx, "u1", "resume text", "Backend Engineer"); err == nil {
		t.Fatalf("expected failure")
	}
	if got := remaining(t, quotaSvc, "u1"); got != before {
		t.Fatalf("expected refund, balance %d -> %d", before, got)
	}
}

func TestAnalyzeResumeSuccess(t *testing.T) {
	report := &fakeLLM{fn: func(req llm.CompletionRequest) (json.RawMessage, error) {
		return json.RawMessage(`{"overallScore": 120, "highlights": ["go"], "summary": "fine"}`), nil
	}}
	svc, _, quotaSvc := newTestService(report)
	ctx := context.Background()

	before := remaining(t, quotaSvc, "u1")
	got, err := svc.AnalyzeResume(ctx, "u1", "resume text", "Backend Engineer")
	if err != nil {
		t.Fatalf("AnalyzeResume: %v", err)
	}
	if got.OverallScore != 100 {
		t.Fatalf("expected score clamped to 100, got %f", got.OverallScore)
	}
	if after := remaining(t, quotaSvc, "u1"); after != before-1 {
		t.Fatalf("expected one debit, balance %d -> %d", before, after)
	}
}

func TestConversationRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(happyLLM())
	ctx := context.Background()

	sessionID, err := svc.StartConversation(ctx, "u1", "Backend Engineer", "Explain goroutine scheduling")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	reply, err := svc.ContinueConversation(ctx, "u1", sessionID, "Goroutines are multiplexed onto OS threads.")
	if err != nil {
		t.Fatalf("ContinueConversation: %v", err)
	}
	if reply != "tell me more" {
		t.Fatalf("unexpected reply: %q", reply)
	}

	if _, err := svc.ContinueConversation(ctx, "u2", sessionID, "hi"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected foreign user to be rejected, got %v", err)
	}
}
