package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"exam-session-engine/internal/app"
	"exam-session-engine/internal/domain"
)

// QuestionRepository caches fetched question lists with a TTL so a session
// screen that remounts does not refetch the same exam day. Concurrent cache
// misses collapse into a single upstream fetch.
type QuestionRepository struct {
	source app.QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(source app.QuestionSource, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestions),
	}
}

func (r *QuestionRepository) FetchQuestions(ctx context.Context, examName, date string) ([]domain.Question, error) {
	key := examName + "|" + date
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.questions, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.questions, nil
		}
		r.mu.RUnlock()

		questions, err := r.source.FetchQuestions(ctx, examName, date)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[key] = cachedQuestions{
			questions: questions,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// TodaysDeadline passes through uncached; the window lookup is cheap and
// time-sensitive.
func (r *QuestionRepository) TodaysDeadline(ctx context.Context, examName string) (domain.Schedule, error) {
	return r.source.TodaysDeadline(ctx, examName)
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
