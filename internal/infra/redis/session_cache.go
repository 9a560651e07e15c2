package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"exam-session-engine/internal/app"
)

// SessionCache is the Redis-backed durable session cache. Each
// (examName, candidateID) pair owns two namespaced hashes, one for the
// answer map and one for the skip set:
//
//	HSET exam:{exam}:candidate:{candidate}:answers {questionID} {optionIndex}
//	HSET exam:{exam}:candidate:{candidate}:skips   {questionID} 1
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionCache(client *redis.Client, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

func (c *SessionCache) Load(ctx context.Context, examName, candidateID string) (app.CachedAnswers, bool, error) {
	rawAnswers, err := c.client.HGetAll(ctx, c.answersKey(examName, candidateID)).Result()
	if err != nil {
		return app.CachedAnswers{}, false, fmt.Errorf("load answers: %w", err)
	}
	rawSkips, err := c.client.HGetAll(ctx, c.skipsKey(examName, candidateID)).Result()
	if err != nil {
		return app.CachedAnswers{}, false, fmt.Errorf("load skips: %w", err)
	}
	if len(rawAnswers) == 0 && len(rawSkips) == 0 {
		return app.CachedAnswers{}, false, nil
	}

	cached := app.CachedAnswers{
		Answers: make(map[string]int, len(rawAnswers)),
		Skipped: make(map[string]bool, len(rawSkips)),
	}
	for questionID, raw := range rawAnswers {
		option, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		cached.Answers[questionID] = option
	}
	for questionID := range rawSkips {
		cached.Skipped[questionID] = true
	}
	return cached, true, nil
}

func (c *SessionCache) Save(ctx context.Context, examName, candidateID string, answers map[string]int, skipped map[string]bool) error {
	answersKey := c.answersKey(examName, candidateID)
	skipsKey := c.skipsKey(examName, candidateID)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, answersKey, skipsKey)
	for questionID, option := range answers {
		pipe.HSet(ctx, answersKey, questionID, strconv.Itoa(option))
	}
	for questionID, isSkipped := range skipped {
		if isSkipped {
			pipe.HSet(ctx, skipsKey, questionID, "1")
		}
	}
	if c.ttl > 0 {
		pipe.Expire(ctx, answersKey, c.ttl)
		pipe.Expire(ctx, skipsKey, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (c *SessionCache) Clear(ctx context.Context, examName, candidateID string) error {
	if err := c.client.Del(ctx, c.answersKey(examName, candidateID), c.skipsKey(examName, candidateID)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (c *SessionCache) answersKey(examName, candidateID string) string {
	return "exam:" + examName + ":candidate:" + candidateID + ":answers"
}

func (c *SessionCache) skipsKey(examName, candidateID string) string {
	return "exam:" + examName + ":candidate:" + candidateID + ":skips"
}
