package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"exam-session-engine/internal/domain"
)

// SessionCache persists in-progress answers across process restarts
// (in-memory, Redis, etc). Only answers and skips are durable; the cursor
// is deliberately not, so a resumed session restarts at the first question
// with prior answers intact.
type SessionCache interface {
	Load(ctx context.Context, examName, candidateID string) (CachedAnswers, bool, error)
	Save(ctx context.Context, examName, candidateID string, answers map[string]int, skipped map[string]bool) error
	Clear(ctx context.Context, examName, candidateID string) error
}

// CachedAnswers is the durable slice of a session: the answer map and the
// skip set.
type CachedAnswers struct {
	Answers map[string]int
	Skipped map[string]bool
}

// QuestionSource serves exam content (from the hosted backend, Postgres, or
// a static fixture).
type QuestionSource interface {
	FetchQuestions(ctx context.Context, examName, date string) ([]domain.Question, error)
	TodaysDeadline(ctx context.Context, examName string) (domain.Schedule, error)
}

// AnswerUplink pushes answer state to the exam backend.
type AnswerUplink interface {
	SaveAnswer(ctx context.Context, upload domain.AnswerUpload) error
	SubmitTimeoutAnswers(ctx context.Context, uploads []domain.AnswerUpload) error
	CompleteExam(ctx context.Context, candidateID, examName string, uploads []domain.AnswerUpload) error
}

// DocumentSink receives the rendered answer sheet. Export is allowed to
// fail independently of the submission outcome.
type DocumentSink interface {
	Export(ctx context.Context, sheet domain.AnswerSheet) error
}

// SessionService starts and tracks exam sessions. The UI flow guarantees at
// most one active session per (examName, candidateID) pair.
type SessionService struct {
	questions QuestionSource
	cache     SessionCache
	uplink    AnswerUplink
	docs      DocumentSink
	clock     Clock
	log       zerolog.Logger

	tickInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionService(questions QuestionSource, cache SessionCache, uplink AnswerUplink, docs DocumentSink, clock Clock, log zerolog.Logger) *SessionService {
	return &SessionService{
		questions: questions,
		cache:     cache,
		uplink:    uplink,
		docs:      docs,
		clock:     clock,
		log:       log,

		tickInterval: time.Second,
		sessions:     make(map[string]*Session),
	}
}

// WithTickInterval overrides the deadline monitor granularity; tests use
// this to avoid real-time waits.
func (svc *SessionService) WithTickInterval(interval time.Duration) *SessionService {
	svc.tickInterval = interval
	return svc
}

// Start loads today's exam window and questions, seeds the ledger from the
// durable cache, and begins deadline monitoring. Load failures are fatal to
// starting: the candidate cannot proceed without content or a deadline.
func (svc *SessionService) Start(ctx context.Context, examName, candidateID string) (*Session, error) {
	svc.mu.Lock()
	if existing, ok := svc.sessions[sessionKey(examName, candidateID)]; ok && !existing.Finalized() {
		svc.mu.Unlock()
		return existing, nil
	}
	svc.mu.Unlock()

	schedule, err := svc.questions.TodaysDeadline(ctx, examName)
	if err != nil {
		return nil, fmt.Errorf("fetch deadline: %w", err)
	}
	deadline, err := svc.clock.DeadlineFrom(schedule.Date, schedule.EndTimeLabel)
	if err != nil {
		return nil, fmt.Errorf("resolve deadline: %w", err)
	}
	questions, err := svc.questions.FetchQuestions(ctx, examName, schedule.Date)
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrNoExamScheduled
	}
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })

	session := &Session{
		attemptID:   uuid.NewString(),
		candidateID: candidateID,
		examName:    examName,
		questions:   questions,
		deadline:    deadline,
		clock:       svc.clock,
		cache:       svc.cache,
		uplink:      svc.uplink,
		docs:        svc.docs,
		log: svc.log.With().
			Str("component", "session").
			Str("exam", examName).
			Str("candidate", candidateID).
			Logger(),
		ledger:      NewLedger(questions),
		subscribers: make(map[chan Event]struct{}),
	}
	session.out = NewOutbound(session.log)

	cached, ok, err := svc.cache.Load(ctx, examName, candidateID)
	if err != nil {
		session.log.Warn().Err(err).Msg("session cache load failed, starting fresh")
	} else if ok {
		session.ledger.Seed(cached.Answers, cached.Skipped)
		session.log.Info().
			Int("answers", len(cached.Answers)).
			Int("skips", len(cached.Skipped)).
			Msg("resumed session from cache")
	}

	session.monitor = NewDeadlineMonitor(svc.clock, deadline, session.handleTick, session.FinishOnTimeout, session.log).
		WithInterval(svc.tickInterval)
	session.monitor.Start()

	svc.mu.Lock()
	svc.sessions[sessionKey(examName, candidateID)] = session
	svc.mu.Unlock()

	session.log.Info().
		Str("attempt_id", session.attemptID).
		Time("deadline", deadline).
		Int("questions", len(questions)).
		Msg("session started")
	return session, nil
}

// Get returns a previously started session.
func (svc *SessionService) Get(examName, candidateID string) (*Session, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	session, ok := svc.sessions[sessionKey(examName, candidateID)]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Drop forgets a finalized session. The durable cache was already cleared
// by the completion path.
func (svc *SessionService) Drop(examName, candidateID string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	key := sessionKey(examName, candidateID)
	if session, ok := svc.sessions[key]; ok && session.Finalized() {
		delete(svc.sessions, key)
	}
}

func sessionKey(examName, candidateID string) string {
	return examName + "|" + candidateID
}
