package interview

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGRepo implements Repo using Postgres. Idempotency rests on a partial
// unique index over (user_id, request_id) that excludes failed attempts, so
// concurrent inserts race at the database and exactly one wins.
type PGRepo struct {
	DB *sql.DB
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// FindByRequestID returns the live attempt for the pair.
func (r *PGRepo) FindByRequestID(ctx context.Context, userID, requestID string) (Attempt, error) {
	const query = `
SELECT id, request_id, user_id, status, result_id, input, error_message, refunded, started_at, completed_at
FROM quiz_attempts
WHERE user_id = $1 AND request_id = $2 AND status != 'failed'
ORDER BY started_at DESC
LIMIT 1`
	return scanAttempt(r.DB.QueryRowContext(ctx, query, userID, requestID))
}

// CreatePending inserts a pending attempt, translating the unique-index
// violation into ErrDuplicateRequest.
func (r *PGRepo) CreatePending(ctx context.Context, attempt Attempt) error {
	const query = `
INSERT INTO quiz_attempts (id, request_id, user_id, status, input, refunded, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	input, err := json.Marshal(attempt.Input)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		attempt.ID,
		attempt.RequestID,
		attempt.UserID,
		StatusPending,
		input,
		false,
		attempt.StartedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateRequest
	}
	return err
}

// MarkSuccess transitions a pending attempt to success.
func (r *PGRepo) MarkSuccess(ctx context.Context, attemptID, resultID string, completedAt time.Time) error {
	const query = `
UPDATE quiz_attempts
SET status = 'success', result_id = $2, completed_at = $3
WHERE id = $1 AND status = 'pending'`
	res, err := r.DB.ExecContext(ctx, query, attemptID, resultID, completedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed transitions a pending attempt to failed, freeing the request ID
// for a later retry.
func (r *PGRepo) MarkFailed(ctx context.Context, attemptID, cause string, refunded bool, failedAt time.Time) error {
	const query = `
UPDATE quiz_attempts
SET status = 'failed', error_message = $2, refunded = $3, completed_at = $4
WHERE id = $1 AND status = 'pending'`
	res, err := r.DB.ExecContext(ctx, query, attemptID, cause, refunded, failedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveResult upserts the result by request ID.
func (r *PGRepo) SaveResult(ctx context.Context, result Result) error {
	const query = `
INSERT INTO quiz_results (id, request_id, user_id, questions, summary, match_analysis, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, request_id) DO UPDATE
SET id = EXCLUDED.id,
    questions = EXCLUDED.questions,
    summary = EXCLUDED.summary,
    match_analysis = EXCLUDED.match_analysis,
    created_at = EXCLUDED.created_at`
	questions, err := json.Marshal(result.Questions)
	if err != nil {
		return err
	}
	match, err := json.Marshal(result.Match)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		result.ID,
		result.RequestID,
		result.UserID,
		questions,
		result.Summary,
		match,
		result.CreatedAt,
	)
	return err
}

// GetResult returns the result for the pair.
func (r *PGRepo) GetResult(ctx context.Context, userID, requestID string) (Result, error) {
	const query = `
SELECT id, request_id, user_id, questions, summary, match_analysis, created_at
FROM quiz_results
WHERE user_id = $1 AND request_id = $2
LIMIT 1`
	return scanResult(r.DB.QueryRowContext(ctx, query, userID, requestID))
}

// ListResults lists a user's results newest-first.
func (r *PGRepo) ListResults(ctx context.Context, userID string, limit, offset int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
SELECT id, request_id, user_id, questions, summary, match_analysis, created_at
FROM quiz_results
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

// ListStalePending returns pending attempts started before the cutoff.
func (r *PGRepo) ListStalePending(ctx context.Context, cutoff time.Time) ([]Attempt, error) {
	const query = `
SELECT id, request_id, user_id, status, result_id, input, error_message, refunded, started_at, completed_at
FROM quiz_attempts
WHERE status = 'pending' AND started_at < $1
ORDER BY started_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, attempt)
	}
	return out, rows.Err()
}

// CreateMockResult inserts a mock interview record.
func (r *PGRepo) CreateMockResult(ctx context.Context, result MockResult) error {
	const query = `
INSERT INTO mock_interview_results
	(id, user_id, session_id, interview_type, company, position, salary_range, jd,
	 turns, total_questions, answered_questions, overall_score, status, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	turns, err := json.Marshal(result.Turns)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		result.ID,
		result.UserID,
		result.SessionID,
		result.Type,
		result.Company,
		result.Position,
		result.SalaryRange,
		result.JD,
		turns,
		result.TotalQuestions,
		result.AnsweredQuestions,
		result.OverallScore,
		result.Status,
		result.StartedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateRequest
	}
	return err
}

// GetMockResult returns a user's mock interview record.
func (r *PGRepo) GetMockResult(ctx context.Context, userID, resultID string) (MockResult, error) {
	const query = mockResultColumns + `
WHERE user_id = $1 AND id = $2
LIMIT 1`
	return scanMockResult(r.DB.QueryRowContext(ctx, query, userID, resultID))
}

// GetMockBySessionID resolves the record behind a session ID.
func (r *PGRepo) GetMockBySessionID(ctx context.Context, userID, sessionID string) (MockResult, error) {
	const query = mockResultColumns + `
WHERE user_id = $1 AND session_id = $2
LIMIT 1`
	return scanMockResult(r.DB.QueryRowContext(ctx, query, userID, sessionID))
}

// UpdateMockResult overwrites the mutable state of a mock interview record.
func (r *PGRepo) UpdateMockResult(ctx context.Context, result MockResult) error {
	const query = `
UPDATE mock_interview_results
SET turns = $3,
    answered_questions = $4,
    overall_score = $5,
    status = $6,
    paused_at = $7,
    resumed_at = $8,
    completed_at = $9
WHERE user_id = $1 AND id = $2`
	turns, err := json.Marshal(result.Turns)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query,
		result.UserID,
		result.ID,
		turns,
		result.AnsweredQuestions,
		result.OverallScore,
		result.Status,
		result.PausedAt,
		result.ResumedAt,
		result.CompletedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const mockResultColumns = `
SELECT id, user_id, session_id, interview_type, company, position, salary_range, jd,
       turns, total_questions, answered_questions, overall_score, status,
       started_at, paused_at, resumed_at, completed_at
FROM mock_interview_results`

func scanMockResult(row rowScanner) (MockResult, error) {
	var m MockResult
	var turns []byte
	var pausedAt, resumedAt, completedAt sql.NullTime
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.SessionID,
		&m.Type,
		&m.Company,
		&m.Position,
		&m.SalaryRange,
		&m.JD,
		&turns,
		&m.TotalQuestions,
		&m.AnsweredQuestions,
		&m.OverallScore,
		&m.Status,
		&m.StartedAt,
		&pausedAt,
		&resumedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MockResult{}, ErrNotFound
		}
		return MockResult{}, err
	}
	if len(turns) > 0 {
		if err := json.Unmarshal(turns, &m.Turns); err != nil {
			return MockResult{}, err
		}
	}
	if pausedAt.Valid {
		m.PausedAt = &pausedAt.Time
	}
	if resumedAt.Valid {
		m.ResumedAt = &resumedAt.Time
	}
	if completedAt.Valid {
		m.CompletedAt = &completedAt.Time
	}
	return m, nil
}

var _ Repo = (*PGRepo)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var resultID sql.NullString
	var input []byte
	var errorMessage sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&a.ID,
		&a.RequestID,
		&a.UserID,
		&a.Status,
		&resultID,
		&input,
		&errorMessage,
		&a.Refunded,
		&a.StartedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrNotFound
		}
		return Attempt{}, err
	}
	if resultID.Valid {
		a.ResultID = resultID.String
	}
	if len(input) > 0 {
		_ = json.Unmarshal(input, &a.Input)
	}
	if errorMessage.Valid {
		a.ErrorMessage = &errorMessage.String
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	return a, nil
}

func scanResult(row rowScanner) (Result, error) {
	var res Result
	var questions []byte
	var match []byte
	err := row.Scan(
		&res.ID,
		&res.RequestID,
		&res.UserID,
		&questions,
		&res.Summary,
		&match,
		&res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &res.Questions); err != nil {
			return Result{}, err
		}
	}
	if len(match) > 0 {
		if err := json.Unmarshal(match, &res.Match); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}
