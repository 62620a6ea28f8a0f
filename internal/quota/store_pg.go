package quota

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type pgStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed quota store.
func NewPGStore(db *sql.DB) *pgStore {
	return &pgStore{DB: db}
}

func (s *pgStore) Get(ctx context.Context, userID, category string) (Quota, error) {
	if err := s.provision(ctx, userID); err != nil {
		return Quota{}, err
	}
	var q Quota
	row := s.DB.QueryRowContext(ctx, `
SELECT user_id, category, remaining, updated_at FROM user_quotas WHERE user_id = $1 AND category = $2`, userID, category)
	if err := row.Scan(&q.UserID, &q.Category, &q.Remaining, &q.UpdatedAt); err != nil {
		return Quota{}, err
	}
	return q, nil
}

func (s *pgStore) GetAll(ctx context.Context, userID string) ([]Quota, error) {
	if err := s.provision(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT user_id, category, remaining, updated_at FROM user_quotas WHERE user_id = $1 ORDER BY category`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Quota
	for rows.Next() {
		var q Quota
		if err := rows.Scan(&q.UserID, &q.Category, &q.Remaining, &q.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Debit is a single conditional UPDATE. The remaining > 0 predicate and the
// decrement execute as one statement, so concurrent debits serialize on the
// row and at most `remaining` of them can succeed.
func (s *pgStore) Debit(ctx context.Context, userID, category string) (Quota, error) {
	if err := s.provision(ctx, userID); err != nil {
		return Quota{}, err
	}
	var q Quota
	row := s.DB.QueryRowContext(ctx, `
UPDATE user_quotas SET remaining = remaining - 1, updated_at = $3
WHERE user_id = $1 AND category = $2 AND remaining > 0
RETURNING user_id, category, remaining, updated_at`, userID, category, time.Now().UTC())
	if err := row.Scan(&q.UserID, &q.Category, &q.Remaining, &q.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quota{}, ErrInsufficientBalance
		}
		return Quota{}, err
	}
	return q, nil
}

func (s *pgStore) Credit(ctx context.Context, userID, category string) (Quota, error) {
	if err := s.provision(ctx, userID); err != nil {
		return Quota{}, err
	}
	var q Quota
	row := s.DB.QueryRowContext(ctx, `
UPDATE user_quotas SET remaining = remaining + 1, updated_at = $3
WHERE user_id = $1 AND category = $2
RETURNING user_id, category, remaining, updated_at`, userID, category, time.Now().UTC())
	if err := row.Scan(&q.UserID, &q.Category, &q.Remaining, &q.UpdatedAt); err != nil {
		return Quota{}, err
	}
	return q, nil
}

func (s *pgStore) Reset(ctx context.Context, userID string) ([]Quota, error) {
	now := time.Now().UTC()
	grants := defaultGrants()
	for _, category := range Categories() {
		if _, err := s.DB.ExecContext(ctx, `
INSERT INTO user_quotas (user_id, category, remaining, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, category) DO UPDATE SET remaining = EXCLUDED.remaining, updated_at = EXCLUDED.updated_at`,
			userID, category, grants[category], now); err != nil {
			return nil, err
		}
	}
	return s.GetAll(ctx, userID)
}

func (s *pgStore) provision(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	grants := defaultGrants()
	for _, category := range Categories() {
		if _, err := s.DB.ExecContext(ctx, `
INSERT INTO user_quotas (user_id, category, remaining, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, category) DO NOTHING`,
			userID, category, grants[category], now); err != nil {
			return err
		}
	}
	return nil
}
