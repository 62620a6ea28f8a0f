package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"interview-backend/internal/docparse"
	"interview-backend/internal/llm"
)

const (
	questionsTemperature = 0.7
	matchTemperature     = 0.3
)

type questionsPayload struct {
	Questions []Question `json:"questions"`
	Summary   string     `json:"summary"`
}

// generateQuestions runs the question-generation stage and validates the
// model output shape.
func generateQuestions(ctx context.Context, client llm.Client, in llm.QuizInput) (questionsPayload, error) {
	raw, err := client.Complete(ctx, llm.CompletionRequest{
		System:      llm.System(),
		Prompt:      llm.QuestionsPrompt(in),
		Temperature: questionsTemperature,
	})
	if err != nil {
		return questionsPayload{}, fmt.Errorf("llm questions: %w", err)
	}
	var payload questionsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return questionsPayload{}, fmt.Errorf("llm output invalid: %w", err)
	}
	if len(payload.Questions) == 0 {
		return questionsPayload{}, errors.New("llm output invalid: no questions")
	}
	for i, q := range payload.Questions {
		if strings.TrimSpace(q.Prompt) == "" {
			return questionsPayload{}, fmt.Errorf("llm output invalid: question %d has no prompt", i)
		}
	}
	return payload, nil
}

// analyzeMatch runs the match-scoring stage and clamps scores into range.
func analyzeMatch(ctx context.Context, client llm.Client, in llm.QuizInput) (MatchAnalysis, error) {
	raw, err := client.Complete(ctx, llm.CompletionRequest{
		System:      llm.System(),
		Prompt:      llm.MatchAnalysisPrompt(in),
		Temperature: matchTemperature,
	})
	if err != nil {
		return MatchAnalysis{}, fmt.Errorf("llm match: %w", err)
	}
	var match MatchAnalysis
	if err := json.Unmarshal(raw, &match); err != nil {
		return MatchAnalysis{}, fmt.Errorf("llm output invalid: %w", err)
	}
	match.MatchScore = clampScore(match.MatchScore)
	for axis, score := range match.RadarData {
		match.RadarData[axis] = clampScore(score)
	}
	return match, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func classifyFailure(err error) string {
	if err == nil {
		return ErrorCodeInternal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeTimeout
	}
	if errors.Is(err, docparse.ErrValidation) {
		return ErrorCodeValidation
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "deepseek request timeout") {
		return ErrorCodeTimeout
	}
	if strings.Contains(msg, "timeout") && strings.Contains(msg, "llm") {
		return ErrorCodeTimeout
	}
	if strings.Contains(msg, "llm output invalid") || strings.Contains(msg, "llm questions") || strings.Contains(msg, "llm match") || strings.Contains(msg, "llm analyze") {
		return ErrorCodeModel
	}
	if strings.Contains(msg, "save result") || strings.Contains(msg, "mark success") || strings.Contains(msg, "storage") {
		return ErrorCodeStorage
	}
	return ErrorCodeInternal
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}
