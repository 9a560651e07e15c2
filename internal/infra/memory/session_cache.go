package memory

import (
	"context"
	"sync"

	"exam-session-engine/internal/app"
)

// SessionCache is an in-memory implementation of app.SessionCache. It only
// survives within one process, so it suits tests and demo runs; production
// deployments use the Redis cache.
type SessionCache struct {
	mu      sync.RWMutex
	entries map[string]app.CachedAnswers
}

func NewSessionCache() *SessionCache {
	return &SessionCache{entries: make(map[string]app.CachedAnswers)}
}

func (c *SessionCache) Load(_ context.Context, examName, candidateID string) (app.CachedAnswers, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[c.key(examName, candidateID)]
	if !ok {
		return app.CachedAnswers{}, false, nil
	}
	return app.CachedAnswers{
		Answers: copyAnswers(entry.Answers),
		Skipped: copySkips(entry.Skipped),
	}, true, nil
}

func (c *SessionCache) Save(_ context.Context, examName, candidateID string, answers map[string]int, skipped map[string]bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(examName, candidateID)] = app.CachedAnswers{
		Answers: copyAnswers(answers),
		Skipped: copySkips(skipped),
	}
	return nil
}

func (c *SessionCache) Clear(_ context.Context, examName, candidateID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, c.key(examName, candidateID))
	return nil
}

func (c *SessionCache) key(examName, candidateID string) string {
	return examName + "|" + candidateID
}

func copyAnswers(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copySkips(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		if v {
			out[k] = true
		}
	}
	return out
}
