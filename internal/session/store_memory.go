package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in process memory. It is the dev/test fallback;
// production deployments use the Redis store so sessions survive restarts
// and are shared across instances.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]Data
}

// NewMemoryStore constructs a MemoryStore with the default TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ttl:      DefaultTTL,
		sessions: make(map[string]Data),
	}
}

func (s *MemoryStore) Create(ctx context.Context, userID, position, systemMessage string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	data := Data{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		Position:     position,
		Messages:     []Message{{Role: "system", Content: systemMessage}},
		CreatedAt:    now,
		LastActiveAt: now,
	}
	s.mu.Lock()
	s.sweepLocked(now)
	s.sessions[data.SessionID] = data
	s.mu.Unlock()
	return data.SessionID, nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID, role, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	data, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	data.Messages = append(data.Messages, Message{Role: role, Content: content})
	data.LastActiveAt = now
	s.sessions[sessionID] = data
	return nil
}

func (s *MemoryStore) Read(ctx context.Context, sessionID string) (Data, error) {
	if err := ctx.Err(); err != nil {
		return Data{}, err
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	data, ok := s.sessions[sessionID]
	if !ok {
		return Data{}, ErrNotFound
	}
	return data, nil
}

func (s *MemoryStore) Expire(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for id, data := range s.sessions {
		if now.Sub(data.LastActiveAt) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
