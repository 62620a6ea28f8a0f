package session

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is the sliding inactivity window after which a session expires.
const DefaultTTL = time.Hour

// ErrNotFound indicates the session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Message is one entry in a session's append-only conversation log.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Data is the stored state of one conversation session.
type Data struct {
	SessionID    string    `json:"sessionId"`
	UserID       string    `json:"userId"`
	Position     string    `json:"position"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// Store is the session capability the interview service depends on. Every
// write refreshes the inactivity TTL.
type Store interface {
	Create(ctx context.Context, userID, position, systemMessage string) (string, error)
	Append(ctx context.Context, sessionID, role, content string) error
	Read(ctx context.Context, sessionID string) (Data, error)
	Expire(ctx context.Context, sessionID string) error
}
