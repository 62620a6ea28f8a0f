package interview

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/llm"
	"interview-backend/internal/quota"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", "u1")
		c.Set("isGuest", false)
		c.Next()
	})
	api := r.Group("/api/v1")
	NewHandler(svc).RegisterRoutes(api)
	return r
}

func postQuiz(t *testing.T, r *gin.Engine, req QuizRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/interview/resume/quiz/stream", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httpReq)
	return resp
}

func sseEvents(t *testing.T, body string) []ProgressEvent {
	t.Helper()
	var events []ProgressEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev ProgressEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode SSE frame %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestQuizStreamEndpointSuccess(t *testing.T) {
	svc, _, _ := newTestService(happyLLM())
	r := newTestRouter(svc)

	resp := postQuiz(t, r, quizRequest(testRequestID))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type: %q", ct)
	}

	events := sseEvents(t, resp.Body.String())
	if len(events) == 0 {
		t.Fatalf("expected SSE frames")
	}
	last := events[len(events)-1]
	if last.Progress != 1 || last.Stage != StageDone {
		t.Fatalf("expected terminal done frame, got %+v", last)
	}
}

func TestQuizStreamEndpointValidation(t *testing.T) {
	svc, _, _ := newTestService(happyLLM())
	r := newTestRouter(svc)

	req := quizRequest(testRequestID)
	req.Position = ""
	resp := postQuiz(t, r, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestQuizStreamEndpointInsufficientBalance(t *testing.T) {
	svc, _, quotaSvc := newTestService(happyLLM())
	r := newTestRouter(svc)
	ctx := context.Background()

	for remaining(t, quotaSvc, "u1") > 0 {
		if _, err := quotaSvc.Debit(ctx, "u1", quota.CategoryResume); err != nil {
			t.Fatalf("drain: %v", err)
		}
	}

	resp := postQuiz(t, r, quizRequest(testRequestID))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
}

func TestQuizStreamEndpointConflictWhilePending(t *testing.T) {
	release := make(chan struct{})
	slow := &fakeLLM{fn: func(req llm.CompletionRequest) (json.RawMessage, error) {
		<-release
		if strings.Contains(req.Prompt, "interview questions") {
			return questionsJSON, nil
		}
		return matchJSON, nil
	}}
	svc, _, _ := newTestService(slow)
	r := newTestRouter(svc)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- postQuiz(t, r, quizRequest(testRequestID))
	}()

	// Wait for the pending attempt to be visible, then resubmit.
	for {
		if _, err := svc.Repo.FindByRequestID(context.Background(), "u1", testRequestID); err == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	resp := postQuiz(t, r, quizRequest(testRequestID))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}

	close(release)
	<-first
}

func TestGetQuizResultNotFound(t *testing.T) {
	svc, _, _ := newTestService(happyLLM())
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/interview/resume/quiz/"+testRequestID, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestListQuizResultsRejectsGuests(t *testing.T) {
	svc, _, _ := newTestService(happyLLM())
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", "guest:abc")
		c.Set("isGuest", true)
		c.Next()
	})
	api := r.Group("/api/v1")
	NewHandler(svc).RegisterRoutes(api)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/interview/resume/quiz", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMockInterviewEndpointStreams(t *testing.T) {
	svc, _, _ := newTestService(mockLLM())
	r := newTestRouter(svc)

	body, _ := json.Marshal(mockRequest(MockTypeSpecial))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interview/mockInterview", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type: %q", ct)
	}
	if !strings.HasPrefix(resp.Body.String(), "data: connected\n\n") {
		t.Fatalf("expected connected frame first, got %q", resp.Body.String())
	}

	events := mockSSEEvents(t, resp.Body.String())
	if len(events) == 0 || events[0].Type != MockEventStart {
		t.Fatalf("expected start event, got %+v", events)
	}
	if events[len(events)-1].Type != MockEventWaiting {
		t.Fatalf("expected waiting event last, got %+v", events)
	}
	if events[0].SessionID == "" || events[0].ResultID == "" {
		t.Fatalf("expected session and result IDs on start event, got %+v", events[0])
	}
}

func TestMockInterviewLifecycleEndpoints(t *testing.T) {
	svc, _, _ := newTestService(mockLLM())
	r := newTestRouter(svc)

	_, resultID := startMock(t, svc, MockTypeSpecial)

	resp := postMockAction(t, r, "/api/v1/interview/pauseInterview/"+resultID)
	if resp.Code != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = postMockAction(t, r, "/api/v1/interview/resumeInterview/"+resultID)
	if resp.Code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = postMockAction(t, r, "/api/v1/interview/endInterview/"+resultID)
	if resp.Code != http.StatusOK {
		t.Fatalf("end: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	// Ending twice conflicts with the completed state.
	resp = postMockAction(t, r, "/api/v1/interview/endInterview/"+resultID)
	if resp.Code != http.StatusConflict {
		t.Fatalf("double end: expected 409, got %d", resp.Code)
	}
	resp = postMockAction(t, r, "/api/v1/interview/endInterview/unknown")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unknown result: expected 404, got %d", resp.Code)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/interview/mockInterview/"+resultID, nil)
	getResp := httptest.NewRecorder()
	r.ServeHTTP(getResp, getReq)
	if getResp.Code != http.StatusOK {
		t.Fatalf("get result: expected 200, got %d", getResp.Code)
	}
	var record MockResult
	if err := json.Unmarshal(getResp.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if record.Status != MockStatusCompleted {
		t.Fatalf("expected completed record, got %+v", record)
	}
}

func postMockAction(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func mockSSEEvents(t *testing.T, body string) []MockEvent {
	t.Helper()
	var events []MockEvent
	for _, line := range strings.Split(body, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || data == "connected" {
			continue
		}
		var ev MockEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("decode SSE frame %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestContinueEndpointRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(happyLLM())
	r := newTestRouter(svc)

	sessionID, err := svc.StartConversation(context.Background(), "u1", "Backend Engineer", "Explain channels")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	body, _ := json.Marshal(continueRequest{SessionID: sessionID, Message: "Channels synchronize goroutines."})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interview/continue", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["reply"] != "tell me more" {
		t.Fatalf("unexpected reply: %q", payload["reply"])
	}
}
