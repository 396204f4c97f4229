package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionLiveness marks running sessions in Redis so other instances (and
// operators) can see which quizzes are live on this process. Best effort: the
// authoritative status lives in the quiz repository.
type SessionLiveness struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionLiveness(client *redis.Client, ttl time.Duration) *SessionLiveness {
	return &SessionLiveness{client: client, ttl: ttl}
}

func (l *SessionLiveness) Mark(ctx context.Context, quizID string) error {
	return l.client.Set(ctx, l.key(quizID), "1", l.ttl).Err()
}

func (l *SessionLiveness) Clear(ctx context.Context, quizID string) error {
	return l.client.Del(ctx, l.key(quizID)).Err()
}

func (l *SessionLiveness) key(quizID string) string {
	return "quiz:session:" + quizID
}
