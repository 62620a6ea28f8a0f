package quota

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]map[string]int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]map[string]int)}
}

func (s *memoryStore) ensureLocked(userID string) map[string]int {
	balances, ok := s.data[userID]
	if !ok {
		balances = defaultGrants()
		s.data[userID] = balances
	}
	return balances
}

func (s *memoryStore) Get(ctx context.Context, userID, category string) (Quota, error) {
	if err := ctx.Err(); err != nil {
		return Quota{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balances := s.ensureLocked(userID)
	return Quota{UserID: userID, Category: category, Remaining: balances[category], UpdatedAt: time.Now().UTC()}, nil
}

func (s *memoryStore) GetAll(ctx context.Context, userID string) ([]Quota, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balances := s.ensureLocked(userID)
	now := time.Now().UTC()
	out := make([]Quota, 0, len(balances))
	for _, category := range Categories() {
		out = append(out, Quota{UserID: userID, Category: category, Remaining: balances[category], UpdatedAt: now})
	}
	return out, nil
}

// Debit performs the check and decrement under one lock acquisition so the
// balance can never go negative under concurrent callers.
func (s *memoryStore) Debit(ctx context.Context, userID, category string) (Quota, error) {
	if err := ctx.Err(); err != nil {
		return Quota{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balances := s.ensureLocked(userID)
	if balances[category] <= 0 {
		return Quota{}, ErrInsufficientBalance
	}
	balances[category]--
	return Quota{UserID: userID, Category: category, Remaining: balances[category], UpdatedAt: time.Now().UTC()}, nil
}

func (s *memoryStore) Credit(ctx context.Context, userID, category string) (Quota, error) {
	if err := ctx.Err(); err != nil {
		return Quota{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balances := s.ensureLocked(userID)
	balances[category]++
	return Quota{UserID: userID, Category: category, Remaining: balances[category], UpdatedAt: time.Now().UTC()}, nil
}

func (s *memoryStore) Reset(ctx context.Context, userID string) ([]Quota, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.data[userID] = defaultGrants()
	s.mu.Unlock()
	return s.GetAll(ctx, userID)
}
