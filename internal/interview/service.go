package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"interview-backend/internal/docparse"
	"interview-backend/internal/llm"
	"interview-backend/internal/quota"
	"interview-backend/internal/session"
	"interview-backend/internal/shared/metrics"
	"interview-backend/internal/shared/telemetry"
)

// Service contains business logic for the interview-preparation pipeline.
type Service struct {
	Repo     Repo
	Quota    *quota.Service
	Parser   *docparse.Parser
	LLM      llm.Client
	Sessions session.Store

	// Category is the quota bucket debited per quiz run.
	Category string
}

func (s *Service) category() string {
	if s.Category == "" {
		return quota.CategoryResume
	}
	return s.Category
}

// SubmitResumeQuiz starts a quiz run and returns its progress stream. For a
// request ID already seen it replays the stored result without charging
// again; for one still running it returns ErrWorkInProgress. A debit that
// cannot be paired with a new pending attempt is credited back before the
// call returns.
func (s *Service) SubmitResumeQuiz(ctx context.Context, userID string, req QuizRequest) (*Emitter, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	} else if err := uuid.Validate(req.RequestID); err != nil {
		return nil, fmt.Errorf("requestId must be a UUID: %w", err)
	}

	prior, err := s.Repo.FindByRequestID(ctx, userID, req.RequestID)
	if err == nil {
		switch prior.Status {
		case StatusPending:
			return nil, ErrWorkInProgress
		case StatusSuccess:
			result, err := s.Repo.GetResult(ctx, userID, req.RequestID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil, ErrInconsistentState
				}
				return nil, err
			}
			em := newEmitter()
			em.Done("从缓存返回", cacheHitData(result))
			return em, nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if _, err := s.Quota.Debit(ctx, userID, s.category()); err != nil {
		return nil, err
	}

	attempt := Attempt{
		ID:        uuid.NewString(),
		RequestID: req.RequestID,
		UserID:    userID,
		Status:    StatusPending,
		Input:     req,
		StartedAt: time.Now().UTC(),
	}
	if err := s.Repo.CreatePending(ctx, attempt); err != nil {
		if _, creditErr := s.Quota.Credit(ctx, userID, s.category()); creditErr != nil {
			telemetry.Error("quiz.credit_failed", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"user_id":    userID,
				"quiz_id":    req.RequestID,
				"error":      sanitizeError(creditErr),
			})
		}
		if errors.Is(err, ErrDuplicateRequest) {
			return nil, ErrWorkInProgress
		}
		return nil, err
	}

	em := newEmitter()
	go s.run(backgroundWithRequestID(ctx), attempt, em)
	return em, nil
}

func cacheHitData(result Result) map[string]any {
	return map[string]any{
		"result":      result,
		"isFormCache": true,
	}
}

func (s *Service) run(ctx context.Context, attempt Attempt, em *Emitter) {
	startedAt := time.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, attempt, em, fmt.Errorf("panic: %v", r), &startedAt)
		}
	}()

	metrics.IncQuizStarted()
	telemetry.Info("quiz.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           attempt.UserID,
		"quiz_id":           attempt.RequestID,
		"attempt_id":        attempt.ID,
		"status":            StatusPending,
		"status_transition": "created->pending",
	})

	em.Progress(0.1, "正在解析简历", StagePrepare)
	resumeText := attempt.Input.ResumeContent
	if strings.TrimSpace(resumeText) == "" {
		var err error
		resumeText, err = s.Parser.Parse(ctx, attempt.Input.ResumeURL)
		if err != nil {
			s.fail(ctx, attempt, em, fmt.Errorf("resume parse: %w", err), &startedAt)
			return
		}
	}
	em.Progress(0.3, "简历解析完成", StagePrepare)

	if s.LLM == nil {
		s.fail(ctx, attempt, em, errors.New("missing llm client"), &startedAt)
		return
	}
	client := newRetryingLLM(s.LLM, attempt.ID, requestIDFromContext(ctx))
	input := llm.QuizInput{
		Company:        attempt.Input.Company,
		Position:       attempt.Input.Position,
		SalaryRange:    attempt.Input.MinSalary + "-" + attempt.Input.MaxSalary,
		JobDescription: attempt.Input.JD,
		ResumeText:     resumeText,
	}

	em.Progress(0.4, "正在生成面试问题", StageGenerating)
	questions, err := generateQuestions(ctx, client, input)
	if err != nil {
		s.fail(ctx, attempt, em, err, &startedAt)
		return
	}
	em.Progress(0.7, "问题生成完成", StageGenerating)

	em.Progress(0.8, "正在分析岗位匹配度", StageGenerating)
	match, err := analyzeMatch(ctx, client, input)
	if err != nil {
		s.fail(ctx, attempt, em, err, &startedAt)
		return
	}

	em.Progress(0.9, "正在保存结果", StageSaving)
	result := Result{
		ID:        uuid.NewString(),
		RequestID: attempt.RequestID,
		UserID:    attempt.UserID,
		Questions: questions.Questions,
		Summary:   questions.Summary,
		Match:     match,
		CreatedAt: time.Now().UTC(),
	}
	// The result lands before the status flips: a crash between the two
	// writes leaves a retryable pending attempt and an orphan result the
	// upsert overwrites, never a success pointing at nothing.
	if err := s.Repo.SaveResult(ctx, result); err != nil {
		s.fail(ctx, attempt, em, fmt.Errorf("save result: %w", err), &startedAt)
		return
	}
	completedAt := time.Now().UTC()
	if err := s.Repo.MarkSuccess(ctx, attempt.ID, result.ID, completedAt); err != nil {
		s.fail(ctx, attempt, em, fmt.Errorf("mark success: %w", err), &startedAt)
		return
	}

	metrics.IncQuizCompleted()
	metrics.ObserveQuizDurationMs(durationMs(&startedAt, &completedAt))
	telemetry.Info("quiz.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           attempt.UserID,
		"quiz_id":           attempt.RequestID,
		"attempt_id":        attempt.ID,
		"status":            StatusSuccess,
		"status_transition": "pending->success",
		"duration_ms":       durationMs(&startedAt, &completedAt),
	})
	em.Done("面试题生成完成", map[string]any{
		"result":      result,
		"isFormCache": false,
	})
}

// fail is the single failure path for a debited run. The compensating
// credit comes first and is never skipped; a credit error is logged and the
// attempt is recorded as not refunded so the sweep can account for it.
func (s *Service) fail(ctx context.Context, attempt Attempt, em *Emitter, cause error, startedAt *time.Time) {
	refunded := true
	if _, err := s.Quota.Credit(context.Background(), attempt.UserID, s.category()); err != nil {
		refunded = false
		telemetry.Error("quiz.credit_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"user_id":    attempt.UserID,
			"quiz_id":    attempt.RequestID,
			"attempt_id": attempt.ID,
			"error":      sanitizeError(err),
		})
	} else {
		metrics.IncQuizRefunded()
	}

	code := classifyFailure(cause)
	msg := sanitizeError(cause)
	completedAt := time.Now().UTC()
	if err := s.Repo.MarkFailed(context.Background(), attempt.ID, code+": "+msg, refunded, completedAt); err != nil {
		telemetry.Error("quiz.mark_failed_error", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"attempt_id": attempt.ID,
			"error":      sanitizeError(err),
			"cause":      msg,
		})
	}

	metrics.IncQuizFailed()
	if startedAt != nil {
		metrics.ObserveQuizDurationMs(durationMs(startedAt, &completedAt))
	}
	telemetry.Info("quiz.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           attempt.UserID,
		"quiz_id":           attempt.RequestID,
		"attempt_id":        attempt.ID,
		"status":            StatusFailed,
		"status_transition": "pending->failed",
		"error_code":        code,
		"refunded":          refunded,
		"duration_ms":       durationMs(startedAt, &completedAt),
	})
	em.Fail(code + ": " + msg)
}

// GetResult returns the stored quiz result for a request ID.
func (s *Service) GetResult(ctx context.Context, userID, requestID string) (Result, error) {
	if userID == "" || requestID == "" {
		return Result{}, errors.New("userID and requestID are required")
	}
	return s.Repo.GetResult(ctx, userID, requestID)
}

// ListResults returns a user's quiz results newest-first.
func (s *Service) ListResults(ctx context.Context, userID string, limit, offset int) ([]Result, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	return s.Repo.ListResults(ctx, userID, limit, offset)
}

// StalePendingAge is how long a pending attempt may sit before the sweep
// treats its worker as dead.
const StalePendingAge = 15 * time.Minute

// ReapStalePending fails pending attempts whose worker died without
// reaching a terminal status, crediting the quota they hold. It returns the
// number of attempts reaped.
func (s *Service) ReapStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = StalePendingAge
	}
	stale, err := s.Repo.ListStalePending(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, attempt := range stale {
		refunded := true
		if _, err := s.Quota.Credit(ctx, attempt.UserID, s.category()); err != nil {
			refunded = false
			telemetry.Error("quiz.credit_failed", map[string]any{
				"user_id":    attempt.UserID,
				"quiz_id":    attempt.RequestID,
				"attempt_id": attempt.ID,
				"error":      sanitizeError(err),
			})
		}
		cause := ErrorCodeInternal + ": pipeline abandoned before completion"
		if err := s.Repo.MarkFailed(ctx, attempt.ID, cause, refunded, time.Now().UTC()); err != nil {
			telemetry.Error("quiz.mark_failed_error", map[string]any{
				"attempt_id": attempt.ID,
				"error":      sanitizeError(err),
			})
			continue
		}
		metrics.IncQuizFailed()
		if refunded {
			metrics.IncQuizRefunded()
		}
		reaped++
	}
	if reaped > 0 {
		telemetry.Info("quiz.reaped_stale", map[string]any{"count": reaped})
	}
	return reaped, nil
}

// ResumeReport is the standalone resume-analysis payload.
type ResumeReport struct {
	OverallScore float64  `json:"overallScore"`
	Highlights   []string `json:"highlights"`
	Gaps         []string `json:"gaps"`
	Suggestions  []string `json:"suggestions"`
	Summary      string   `json:"summary"`
}

// AnalyzeResume runs a one-shot resume report against the model, debiting
// one quota unit and crediting it back on failure.
func (s *Service) AnalyzeResume(ctx context.Context, userID, resumeContent, position string) (ResumeReport, error) {
	if userID == "" {
		return ResumeReport{}, errors.New("userID is required")
	}
	if strings.TrimSpace(resumeContent) == "" {
		return ResumeReport{}, errors.New("resumeContent is required")
	}
	if _, err := s.Quota.Debit(ctx, userID, s.category()); err != nil {
		return ResumeReport{}, err
	}

	report, err := s.analyzeResume(ctx, resumeContent, position)
	if err != nil {
		if _, creditErr := s.Quota.Credit(context.Background(), userID, s.category()); creditErr != nil {
			telemetry.Error("quiz.credit_failed", map[string]any{
				"user_id": userID,
				"error":   sanitizeError(creditErr),
			})
		}
		return ResumeReport{}, err
	}
	return report, nil
}

func (s *Service) analyzeResume(ctx context.Context, resumeContent, position string) (ResumeReport, error) {
	raw, err := s.LLM.Complete(ctx, llm.CompletionRequest{
		System:      llm.System(),
		Prompt:      llm.ResumeReportPrompt(resumeContent, position),
		Temperature: matchTemperature,
	})
	if err != nil {
		return ResumeReport{}, fmt.Errorf("llm analyze: %w", err)
	}
	var report ResumeReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return ResumeReport{}, fmt.Errorf("llm output invalid: %w", err)
	}
	report.OverallScore = clampScore(report.OverallScore)
	return report, nil
}

// StartConversation opens a follow-up interview conversation seeded with a
// question from a quiz result.
func (s *Service) StartConversation(ctx context.Context, userID, position, firstQuestion string) (string, error) {
	if userID == "" {
		return "", errors.New("userID is required")
	}
	if s.Sessions == nil {
		return "", errors.New("sessions are not configured")
	}
	sessionID, err := s.Sessions.Create(ctx, userID, position, llm.System())
	if err != nil {
		return "", err
	}
	if firstQuestion != "" {
		if err := s.Sessions.Append(ctx, sessionID, "assistant", firstQuestion); err != nil {
			return "", err
		}
	}
	return sessionID, nil
}

// ContinueConversation appends the candidate's answer, asks the model for
// the interviewer's reply, and records it in the session.
func (s *Service) ContinueConversation(ctx context.Context, userID, sessionID, content string) (string, error) {
	if userID == "" || sessionID == "" {
		return "", errors.New("userID and sessionID are required")
	}
	if strings.TrimSpace(content) == "" {
		return "", errors.New("content is required")
	}
	if s.Sessions == nil {
		return "", errors.New("sessions are not configured")
	}

	data, err := s.Sessions.Read(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if data.UserID != userID {
		return "", session.ErrNotFound
	}
	if err := s.Sessions.Append(ctx, sessionID, "user", content); err != nil {
		return "", err
	}

	history := make([]string, 0, len(data.Messages)+1)
	for _, msg := range data.Messages {
		history = append(history, msg.Role+": "+msg.Content)
	}
	history = append(history, "user: "+content)

	raw, err := s.LLM.Complete(ctx, llm.CompletionRequest{
		System:      llm.System(),
		Prompt:      llm.ContinuationPrompt(history),
		Temperature: questionsTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm continue: %w", err)
	}
	var reply struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("llm output invalid: %w", err)
	}
	if err := s.Sessions.Append(ctx, sessionID, "assistant", reply.Reply); err != nil {
		return "", err
	}
	return reply.Reply, nil
}
