package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis with a sliding TTL, so they survive
// process restarts and are shared across server instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore with the default TTL.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: DefaultTTL}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func (s *RedisStore) Create(ctx context.Context, userID, position, systemMessage string) (string, error) {
	now := time.Now().UTC()
	data := Data{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		Position:     position,
		Messages:     []Message{{Role: "system", Content: systemMessage}},
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := s.write(ctx, data); err != nil {
		return "", err
	}
	return data.SessionID, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID, role, content string) error {
	data, err := s.Read(ctx, sessionID)
	if err != nil {
		return err
	}
	data.Messages = append(data.Messages, Message{Role: role, Content: content})
	data.LastActiveAt = time.Now().UTC()
	return s.write(ctx, data)
}

func (s *RedisStore) Read(ctx context.Context, sessionID string) (Data, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Data{}, ErrNotFound
		}
		return Data{}, fmt.Errorf("session read: %w", err)
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("session decode: %w", err)
	}
	return data, nil
}

func (s *RedisStore) Expire(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("session expire: %w", err)
	}
	return nil
}

func (s *RedisStore) write(ctx context.Context, data Data) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKey(data.SessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session write: %w", err)
	}
	return nil
}
