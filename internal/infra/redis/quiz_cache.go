package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

// QuizCache fronts a QuizRepository with a Redis cache for quiz definitions.
// Definitions are stored as: SET quiz:{quizID}:def {json} with TTL jitter.
// Status transitions and score writes pass straight through; a transition
// invalidates the cached definition since it embeds the status.
type QuizCache struct {
	client *redis.Client
	next   app.QuizRepository
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizCache(client *redis.Client, next app.QuizRepository, ttl time.Duration) *QuizCache {
	return &QuizCache{
		client: client,
		next:   next,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) Get(ctx context.Context, quizID string) (domain.Quiz, error) {
	key := c.defKey(quizID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err == nil {
			return quiz, nil
		}
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var quiz domain.Quiz
			if err := json.Unmarshal(raw, &quiz); err == nil {
				return quiz, nil
			}
		}

		quiz, err := c.next.Get(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if raw, err := json.Marshal(quiz); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *QuizCache) FindDue(ctx context.Context, now time.Time) ([]domain.Quiz, error) {
	return c.next.FindDue(ctx, now)
}

func (c *QuizCache) TransitionStatus(ctx context.Context, quizID string, from, to domain.Status) (bool, error) {
	won, err := c.next.TransitionStatus(ctx, quizID, from, to)
	if won {
		_ = c.client.Del(ctx, c.defKey(quizID)).Err()
	}
	return won, err
}

func (c *QuizCache) AddScore(ctx context.Context, quizID, userID, displayName string, delta int) error {
	return c.next.AddScore(ctx, quizID, userID, displayName, delta)
}

func (c *QuizCache) Scores(ctx context.Context, quizID string) ([]domain.ScoreEntry, error) {
	return c.next.Scores(ctx, quizID)
}

func (c *QuizCache) defKey(quizID string) string {
	return "quiz:" + quizID + ":def"
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
