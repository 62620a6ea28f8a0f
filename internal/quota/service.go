package quota

import "context"

type store interface {
	Get(ctx context.Context, userID, category string) (Quota, error)
	GetAll(ctx context.Context, userID string) ([]Quota, error)
	Debit(ctx context.Context, userID, category string) (Quota, error)
	Credit(ctx context.Context, userID, category string) (Quota, error)
	Reset(ctx context.Context, userID string) ([]Quota, error)
}

// Service manages per-user usage balances via an underlying store.
type Service struct {
	store store
}

// NewService constructs a Service with an in-memory store.
func NewService() *Service {
	return &Service{store: newMemoryStore()}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store) *Service {
	return &Service{store: pgStore}
}

// Remaining returns the current balance for one category, provisioning
// defaults if the user has never been seen.
func (s *Service) Remaining(ctx context.Context, userID, category string) (int, error) {
	if !ValidCategory(category) {
		return 0, ErrUnknownCategory
	}
	q, err := s.store.Get(ctx, userID, category)
	if err != nil {
		return 0, err
	}
	return q.Remaining, nil
}

// Snapshot returns the balances for every category.
func (s *Service) Snapshot(ctx context.Context, userID string) ([]Quota, error) {
	return s.store.GetAll(ctx, userID)
}

// Debit atomically decrements the balance by one. The check and the
// decrement happen in a single store operation; two concurrent debits
// racing on a balance of one can never both succeed.
func (s *Service) Debit(ctx context.Context, userID, category string) (Quota, error) {
	if !ValidCategory(category) {
		return Quota{}, ErrUnknownCategory
	}
	return s.store.Debit(ctx, userID, category)
}

// Credit increments the balance by one. It is the compensating action for
// a debit whose associated work failed and must never be skipped on any
// failure path after a successful debit.
func (s *Service) Credit(ctx context.Context, userID, category string) (Quota, error) {
	if !ValidCategory(category) {
		return Quota{}, ErrUnknownCategory
	}
	return s.store.Credit(ctx, userID, category)
}

// Reset restores every category to its default grant.
func (s *Service) Reset(ctx context.Context, userID string) ([]Quota, error) {
	return s.store.Reset(ctx, userID)
}
