package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"interview-backend/internal/llm"
	"interview-backend/internal/quota"
	"interview-backend/internal/shared/telemetry"
)

const (
	mockQuestionCount   = 5
	mockInterviewerName = "AI 面试官"
)

// mockCategory maps an interview type onto the quota category it debits.
func mockCategory(interviewType string) (string, error) {
	switch interviewType {
	case MockTypeSpecial:
		return quota.CategorySpecial, nil
	case MockTypeBehavior:
		return quota.CategoryBehavior, nil
	default:
		return "", fmt.Errorf("unknown interview type %q", interviewType)
	}
}

// StartMockInterview debits one unit of the type's quota category, plans the
// question list, persists the session record, and streams the opening events
// (start, first question, waiting). A failure after the debit credits it
// back before the error event.
func (s *Service) StartMockInterview(ctx context.Context, userID string, req MockInterviewRequest) (*MockStream, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	category, err := mockCategory(req.Type)
	if err != nil {
		return nil, err
	}
	if _, err := s.Quota.Debit(ctx, userID, category); err != nil {
		return nil, err
	}

	stream := newMockStream()
	go s.runMockStart(backgroundWithRequestID(ctx), userID, category, req, stream)
	return stream, nil
}

func (s *Service) runMockStart(ctx context.Context, userID, category string, req MockInterviewRequest, stream *MockStream) {
	defer func() {
		if r := recover(); r != nil {
			s.failMockStart(ctx, userID, category, stream, fmt.Errorf("panic: %v", r))
		}
	}()

	resumeText := req.ResumeContent
	if strings.TrimSpace(resumeText) == "" {
		var err error
		resumeText, err = s.Parser.Parse(ctx, req.ResumeURL)
		if err != nil {
			s.failMockStart(ctx, userID, category, stream, fmt.Errorf("resume parse: %w", err))
			return
		}
	}

	result := MockResult{
		ID:          uuid.NewString(),
		UserID:      userID,
		SessionID:   uuid.NewString(),
		Type:        req.Type,
		Company:     req.CompanyName,
		Position:    req.PositionName,
		SalaryRange: strconv.Itoa(req.MinSalary) + "-" + strconv.Itoa(req.MaxSalary),
		JD:          req.JD,
		Status:      MockStatusInProgress,
		StartedAt:   time.Now().UTC(),
	}

	stream.Emit(MockEvent{
		Type:            MockEventStart,
		SessionID:       result.SessionID,
		ResultID:        result.ID,
		InterviewerName: mockInterviewerName,
		Content:         "面试开始",
		TotalQuestions:  mockQuestionCount,
	})
	stream.Emit(MockEvent{
		Type:            MockEventThinking,
		SessionID:       result.SessionID,
		ResultID:        result.ID,
		InterviewerName: mockInterviewerName,
		TotalQuestions:  mockQuestionCount,
	})

	client := newRetryingLLM(s.LLM, result.ID, requestIDFromContext(ctx))
	turns, err := planMockQuestions(ctx, client, llm.MockInput{
		Type:           req.Type,
		CandidateName:  req.CandidateName,
		Company:        req.CompanyName,
		Position:       req.PositionName,
		SalaryRange:    result.SalaryRange,
		JobDescription: req.JD,
		ResumeText:     resumeText,
	})
	if err != nil {
		s.failMockStart(ctx, userID, category, stream, err)
		return
	}

	askedAt := time.Now().UTC()
	turns[0].AskedAt = &askedAt
	result.Turns = turns
	result.TotalQuestions = len(turns)

	if err := s.Repo.CreateMockResult(ctx, result); err != nil {
		s.failMockStart(ctx, userID, category, stream, fmt.Errorf("save mock result: %w", err))
		return
	}

	telemetry.Info("mock.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           userID,
		"result_id":         result.ID,
		"session_id":        result.SessionID,
		"interview_type":    result.Type,
		"status":            result.Status,
		"status_transition": "created->in_progress",
	})

	stream.Emit(mockTurnEvent(result, MockEventQuestion, 0, turns[0].Question))
	stream.Emit(mockTurnEvent(result, MockEventWaiting, 0, ""))
	stream.Close()
}

// failMockStart compensates the start-time debit and ends the stream with an
// error event. It mirrors the quiz failure path: credit first, on a context
// that cannot be cancelled by the consumer.
func (s *Service) failMockStart(ctx context.Context, userID, category string, stream *MockStream, cause error) {
	if _, err := s.Quota.Credit(context.Background(), userID, category); err != nil {
		telemetry.Error("mock.credit_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"user_id":    userID,
			"category":   category,
			"error":      sanitizeError(err),
		})
	}
	code := classifyFailure(cause)
	telemetry.Error("mock.start_failed", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"user_id":    userID,
		"error_code": code,
		"error":      sanitizeError(cause),
	})
	stream.Fail("", code+": "+sanitizeError(cause))
}

type mockQuestionsPayload struct {
	Questions []struct {
		Question        string `json:"question"`
		ReferenceAnswer string `json:"referenceAnswer"`
	} `json:"questions"`
}

func planMockQuestions(ctx context.Context, client llm.Client, in llm.MockInput) ([]MockTurn, error) {
	if client == nil {
		return nil, errors.New("missing llm client")
	}
	raw, err := client.Complete(ctx, llm.CompletionRequest{
		System:      llm.System(),
		Prompt:      llm.MockQuestionsPrompt(in, mockQuestionCount),
		Temperature: questionsTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("llm questions: %w", err)
	}
	var payload mockQuestionsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("llm output invalid: %w", err)
	}
	if len(payload.Questions) == 0 {
		return nil, errors.New("llm output invalid: no questions")
	}
	turns := make([]MockTurn, 0, len(payload.Questions))
	for i, q := range payload.Questions {
		if strings.TrimSpace(q.Question) == "" {
			return nil, fmt.Errorf("llm output invalid: question %d has no text", i)
		}
		turns = append(turns, MockTurn{Question: q.Question, ReferenceAnswer: q.ReferenceAnswer})
	}
	if len(turns) > mockQuestionCount {
		turns = turns[:mockQuestionCount]
	}
	return turns, nil
}

type mockScorePayload struct {
	Score        float64    `json:"score"`
	Feedback     string     `json:"feedback"`
	Highlights   []string   `json:"highlights"`
	Improvements []string   `json:"improvements"`
	StarScore    *STARScore `json:"starScore"`
}

// AnswerMockQuestion records the candidate's answer to the current question,
// grades it, and streams the reference answer followed by the next question
// (or the end event after the last one). The quota was debited at start; an
// answer that fails to grade can simply be retried.
func (s *Service) AnswerMockQuestion(ctx context.Context, userID, sessionID, answer string) (*MockStream, error) {
	if userID == "" || sessionID == "" {
		return nil, errors.New("userID and sessionID are required")
	}
	if strings.TrimSpace(answer) == "" {
		return nil, errors.New("answer is required")
	}
	result, err := s.Repo.GetMockBySessionID(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if result.Status != MockStatusInProgress {
		return nil, ErrMockNotActive
	}
	if result.AnsweredQuestions >= len(result.Turns) {
		return nil, ErrMockNotActive
	}

	stream := newMockStream()
	go s.runMockAnswer(backgroundWithRequestID(ctx), result, answer, stream)
	return stream, nil
}

func (s *Service) runMockAnswer(ctx context.Context, result MockResult, answer string, stream *MockStream) {
	defer func() {
		if r := recover(); r != nil {
			stream.Fail(result.SessionID, ErrorCodeInternal+": "+sanitizeError(fmt.Errorf("panic: %v", r)))
		}
	}()

	idx := result.AnsweredQuestions
	stream.Emit(mockTurnEvent(result, MockEventThinking, idx, ""))

	client := newRetryingLLM(s.LLM, result.ID, requestIDFromContext(ctx))
	if client == nil {
		stream.Fail(result.SessionID, ErrorCodeInternal+": missing llm client")
		return
	}
	raw, err := client.Complete(ctx, llm.CompletionRequest{
		System:      llm.System(),
		Prompt:      llm.MockScoringPrompt(result.Type, result.Turns[idx].Question, result.Turns[idx].ReferenceAnswer, answer),
		Temperature: matchTemperature,
	})
	if err != nil {
		stream.Fail(result.SessionID, classifyFailure(err)+": "+sanitizeError(fmt.Errorf("llm match: %w", err)))
		return
	}
	var grade mockScorePayload
	if err := json.Unmarshal(raw, &grade); err != nil {
		stream.Fail(result.SessionID, ErrorCodeModel+": "+sanitizeError(fmt.Errorf("llm output invalid: %w", err)))
		return
	}

	answeredAt := time.Now().UTC()
	turn := &result.Turns[idx]
	turn.Answer = answer
	turn.Score = clampScore(grade.Score)
	turn.Feedback = grade.Feedback
	turn.Highlights = grade.Highlights
	turn.Improvements = grade.Improvements
	turn.AnsweredAt = &answeredAt
	if result.Type == MockTypeBehavior && grade.StarScore != nil {
		star := *grade.StarScore
		star.Situation = clampScore(star.Situation)
		star.Task = clampScore(star.Task)
		star.Action = clampScore(star.Action)
		star.Result = clampScore(star.Result)
		star.Overall = clampScore(star.Overall)
		turn.StarScore = &star
	}
	result.AnsweredQuestions = idx + 1
	if result.AnsweredQuestions < len(result.Turns) {
		result.Turns[result.AnsweredQuestions].AskedAt = &answeredAt
	}

	if err := s.Repo.UpdateMockResult(ctx, result); err != nil {
		stream.Fail(result.SessionID, ErrorCodeStorage+": "+sanitizeError(fmt.Errorf("save mock result: %w", err)))
		return
	}

	stream.Emit(mockTurnEvent(result, MockEventReference, idx, result.Turns[idx].ReferenceAnswer))
	if result.AnsweredQuestions < len(result.Turns) {
		next := result.AnsweredQuestions
		stream.Emit(mockTurnEvent(result, MockEventQuestion, next, result.Turns[next].Question))
		stream.Emit(mockTurnEvent(result, MockEventWaiting, next, ""))
	} else {
		stream.Emit(mockTurnEvent(result, MockEventEnd, idx, "面试问题已全部回答完毕"))
	}
	stream.Close()
}

func mockTurnEvent(result MockResult, eventType string, index int, content string) MockEvent {
	return MockEvent{
		Type:            eventType,
		SessionID:       result.SessionID,
		ResultID:        result.ID,
		InterviewerName: mockInterviewerName,
		Content:         content,
		QuestionIndex:   index,
		TotalQuestions:  result.TotalQuestions,
		UsedTime:        int64(time.Since(result.StartedAt).Seconds()),
	}
}

// EndMockInterview finalizes a session: the overall score becomes the mean
// of the graded answers and the record flips to completed. Works from both
// in_progress and paused.
func (s *Service) EndMockInterview(ctx context.Context, userID, resultID string) (MockResult, error) {
	result, err := s.getOwnedMockResult(ctx, userID, resultID)
	if err != nil {
		return MockResult{}, err
	}
	if result.Status != MockStatusInProgress && result.Status != MockStatusPaused {
		return MockResult{}, ErrMockNotActive
	}
	priorStatus := result.Status

	var total float64
	var graded int
	for _, turn := range result.Turns {
		if turn.AnsweredAt != nil {
			total += turn.Score
			graded++
		}
	}
	if graded > 0 {
		result.OverallScore = clampScore(total / float64(graded))
	}
	completedAt := time.Now().UTC()
	result.Status = MockStatusCompleted
	result.CompletedAt = &completedAt

	if err := s.Repo.UpdateMockResult(ctx, result); err != nil {
		return MockResult{}, err
	}
	telemetry.Info("mock.status", map[string]any{
		"user_id":           userID,
		"result_id":         result.ID,
		"status":            result.Status,
		"status_transition": priorStatus + "->completed",
		"answered":          result.AnsweredQuestions,
		"overall_score":     result.OverallScore,
	})
	return result, nil
}

// PauseMockInterview suspends an in-progress session.
func (s *Service) PauseMockInterview(ctx context.Context, userID, resultID string) (MockResult, error) {
	result, err := s.getOwnedMockResult(ctx, userID, resultID)
	if err != nil {
		return MockResult{}, err
	}
	if result.Status != MockStatusInProgress {
		return MockResult{}, ErrMockNotActive
	}
	pausedAt := time.Now().UTC()
	result.Status = MockStatusPaused
	result.PausedAt = &pausedAt
	if err := s.Repo.UpdateMockResult(ctx, result); err != nil {
		return MockResult{}, err
	}
	return result, nil
}

// ResumeMockInterview reopens a paused session.
func (s *Service) ResumeMockInterview(ctx context.Context, userID, resultID string) (MockResult, error) {
	result, err := s.getOwnedMockResult(ctx, userID, resultID)
	if err != nil {
		return MockResult{}, err
	}
	if result.Status != MockStatusPaused {
		return MockResult{}, ErrMockNotActive
	}
	resumedAt := time.Now().UTC()
	result.Status = MockStatusInProgress
	result.ResumedAt = &resumedAt
	if err := s.Repo.UpdateMockResult(ctx, result); err != nil {
		return MockResult{}, err
	}
	return result, nil
}

// GetMockResult returns a user's mock interview record.
func (s *Service) GetMockResult(ctx context.Context, userID, resultID string) (MockResult, error) {
	return s.getOwnedMockResult(ctx, userID, resultID)
}

func (s *Service) getOwnedMockResult(ctx context.Context, userID, resultID string) (MockResult, error) {
	if userID == "" || resultID == "" {
		return MockResult{}, errors.New("userID and resultID are required")
	}
	return s.Repo.GetMockResult(ctx, userID, resultID)
}
