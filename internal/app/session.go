package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"exam-session-engine/internal/domain"
)

const persistTimeout = 5 * time.Second

// FinalizeReason records which path closed a session.
type FinalizeReason string

const (
	FinalizedBySubmission FinalizeReason = "submitted"
	FinalizedByTimeout    FinalizeReason = "timeout"
)

// EventType tags session events pushed to subscribers.
type EventType string

const (
	EventTick      EventType = "tick"
	EventFinalized EventType = "finalized"
)

// Event is pushed to subscribers for display: the once-per-second remaining
// duration while the session runs, then a single finalized event.
type Event struct {
	Type      EventType
	Remaining time.Duration
	Reason    FinalizeReason
}

// Session runs one candidate through one timed exam. All state transitions
// are named methods; the zero UI surface above it only relays actions and
// renders events.
//
// The mutex serializes the two trigger sources (user actions and the
// deadline monitor); the finalizing/finalized pair is the single-flight
// guard both finalize paths converge on.
type Session struct {
	attemptID   string
	candidateID string
	examName    string
	questions   []domain.Question
	deadline    time.Time

	clock  Clock
	cache  SessionCache
	uplink AnswerUplink
	docs   DocumentSink
	out    *Outbound
	log    zerolog.Logger

	monitor *DeadlineMonitor

	mu          sync.Mutex
	ledger      *Ledger
	cursor      int
	finalizing  bool
	finalized   bool
	subscribers map[chan Event]struct{}

	// persistWG counts in-flight write-through saves. Entries are added
	// under the mutex, before the finalize guard can flip, so draining it
	// in completeFinalize guarantees no pre-finalize save lands after the
	// cache is cleared.
	persistWG sync.WaitGroup
}

// AttemptID identifies this session instance on sheets and logs.
func (s *Session) AttemptID() string { return s.attemptID }

// CandidateID returns the candidate sitting this session.
func (s *Session) CandidateID() string { return s.candidateID }

// ExamName returns the exam this session belongs to.
func (s *Session) ExamName() string { return s.examName }

// Deadline returns the absolute instant the session force-finalizes at.
func (s *Session) Deadline() time.Time { return s.deadline }

// QuestionCount reports the size of the question snapshot.
func (s *Session) QuestionCount() int { return len(s.questions) }

// Current returns the question under the cursor, its index, and its record.
func (s *Session) Current() (domain.Question, int, domain.AnswerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.questions[s.cursor]
	return q, s.cursor, s.ledger.Record(q.ID)
}

// Remaining reports the clamped duration until the deadline.
func (s *Session) Remaining() time.Duration {
	return Remaining(s.clock.Now(), s.deadline)
}

// Finalized reports whether the session has closed.
func (s *Session) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// Counts tallies the ledger; the three states always sum to the question count.
func (s *Session) Counts() domain.SheetCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Counts()
}

// Snapshot returns the full session-order answer snapshot.
func (s *Session) Snapshot() []domain.AnswerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Snapshot()
}

// RecordAnswer sets the current question to Answered(option), clearing any
// prior skip. The cache is written through before the remote save-answer
// call is dispatched best-effort.
func (s *Session) RecordAnswer(option int) error {
	s.mu.Lock()
	if s.finalized || s.finalizing {
		s.mu.Unlock()
		return domain.ErrSessionFinalized
	}
	q := s.questions[s.cursor]
	if err := s.ledger.RecordAnswer(q.ID, option); err != nil {
		s.mu.Unlock()
		return err
	}
	answers, skipped := s.ledger.Answers(), s.ledger.SkippedSet()
	s.persistWG.Add(1)
	s.mu.Unlock()

	s.writeThrough(answers, skipped)
	upload := s.upload(q, &option, false)
	s.out.Go("save-answer", func(ctx context.Context) error {
		return s.uplink.SaveAnswer(ctx, upload)
	})
	return nil
}

// RecordSkip marks the current question Skipped, discarding any recorded
// option, and unconditionally advances; at the last question it finishes
// the session instead. It reports whether the session finished.
func (s *Session) RecordSkip(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.finalized || s.finalizing {
		s.mu.Unlock()
		return false, domain.ErrSessionFinalized
	}
	q := s.questions[s.cursor]
	if err := s.ledger.RecordSkip(q.ID); err != nil {
		s.mu.Unlock()
		return false, err
	}
	answers, skipped := s.ledger.Answers(), s.ledger.SkippedSet()
	last := s.cursor == len(s.questions)-1
	if !last {
		s.cursor++
	}
	s.persistWG.Add(1)
	s.mu.Unlock()

	s.writeThrough(answers, skipped)
	upload := s.upload(q, nil, true)
	s.out.Go("save-answer", func(ctx context.Context) error {
		return s.uplink.SaveAnswer(ctx, upload)
	})

	if last {
		return true, s.FinishExplicit(ctx)
	}
	return false, nil
}

// Next advances the cursor. The current question must be Answered or
// Skipped; at the last question it invokes the explicit finish path instead
// of incrementing. It reports whether the session finished.
func (s *Session) Next(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.finalized || s.finalizing {
		s.mu.Unlock()
		return false, domain.ErrSessionFinalized
	}
	q := s.questions[s.cursor]
	if s.ledger.Record(q.ID).State == domain.Unanswered {
		s.mu.Unlock()
		return false, domain.ErrAnswerRequired
	}
	if s.cursor == len(s.questions)-1 {
		s.mu.Unlock()
		return true, s.FinishExplicit(ctx)
	}
	s.cursor++
	s.mu.Unlock()
	return false, nil
}

// Previous moves the cursor back one question; no answer-state precondition.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized || s.finalizing {
		return domain.ErrSessionFinalized
	}
	if s.cursor == 0 {
		return domain.ErrAtFirstQuestion
	}
	s.cursor--
	return nil
}

// FinishExplicit submits the full answer set with the submitted marker. On
// remote failure the session stays open and resumable: the cache is kept,
// finalized stays false, and the error is surfaced so the candidate can
// retry.
func (s *Session) FinishExplicit(ctx context.Context) error {
	if !s.beginFinalize() {
		return domain.ErrSessionFinalized
	}
	s.mu.Lock()
	uploads := s.uploadsLocked()
	s.mu.Unlock()

	if err := s.uplink.CompleteExam(ctx, s.candidateID, s.examName, uploads); err != nil {
		s.abortFinalize()
		return fmt.Errorf("complete exam: %w", err)
	}
	s.completeFinalize(FinalizedBySubmission)
	return nil
}

// FinishOnTimeout pushes the timeout snapshot and finalizes regardless of
// the outcome: past the deadline the candidate is never left in an open
// session, so a failed submission is logged for operational follow-up only.
func (s *Session) FinishOnTimeout() {
	if !s.beginFinalize() {
		return
	}
	s.mu.Lock()
	uploads := s.uploadsLocked()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), outboundTimeout)
	defer cancel()
	if err := s.uplink.SubmitTimeoutAnswers(ctx, uploads); err != nil {
		s.log.Error().Err(err).Msg("timeout submission failed, finalizing anyway")
	}
	s.completeFinalize(FinalizedByTimeout)
}

// RequestExit is the exit guard: while the session is active a
// back-navigation attempt passes only with explicit confirmation. Once
// finalized the guard is disengaged and exits always pass. Exiting never
// touches the ledger or the cache; answers stay cached for resume.
func (s *Session) RequestExit(confirmed bool) bool {
	if s.Finalized() {
		return true
	}
	return confirmed
}

// Subscribe returns a channel of display events. The caller must invoke the
// cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Flush waits for in-flight best-effort syncs; used on shutdown.
func (s *Session) Flush() {
	s.out.Wait()
}

func (s *Session) beginFinalize() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized || s.finalizing {
		return false
	}
	s.finalizing = true
	return true
}

func (s *Session) abortFinalize() {
	s.mu.Lock()
	s.finalizing = false
	s.mu.Unlock()
}

// completeFinalize is the shared tail of both finalize paths: flip the flag,
// stop the monitor, export the answer sheet best-effort, clear the cache,
// and notify subscribers. The guard ensures it runs at most once.
func (s *Session) completeFinalize(reason FinalizeReason) {
	s.mu.Lock()
	s.finalizing = false
	s.finalized = true
	snapshot := s.ledger.Snapshot()
	s.mu.Unlock()

	s.monitor.Stop()

	// A save that began before the guard flipped may still be in flight;
	// drain it so clearing the cache below is the last durable write.
	s.persistWG.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	meta := SheetMeta{AttemptID: s.attemptID, CandidateID: s.candidateID, ExamName: s.examName}
	sheet := GenerateAnswerSheet(meta, snapshot, s.clock.Now())
	if err := s.docs.Export(ctx, sheet); err != nil {
		s.log.Warn().Err(err).Msg("answer sheet export failed")
	}
	if err := s.cache.Clear(ctx, s.examName, s.candidateID); err != nil {
		s.log.Warn().Err(err).Msg("session cache clear failed")
	}
	s.log.Info().Str("reason", string(reason)).Str("attempt_id", s.attemptID).Msg("session finalized")
	s.broadcast(Event{Type: EventFinalized, Reason: reason})
}

// writeThrough persists the ledger to the durable cache. Failures are
// logged only; the in-memory ledger stays authoritative. The caller must
// have registered this save on persistWG while holding the mutex.
func (s *Session) writeThrough(answers map[string]int, skipped map[string]bool) {
	defer s.persistWG.Done()
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.cache.Save(ctx, s.examName, s.candidateID, answers, skipped); err != nil {
		s.log.Warn().Err(err).Msg("session cache write failed")
	}
}

func (s *Session) upload(q domain.Question, answer *int, skipped bool) domain.AnswerUpload {
	return domain.AnswerUpload{
		CandidateID: s.candidateID,
		ExamName:    s.examName,
		QuestionID:  q.ID,
		Order:       q.Order,
		Answer:      answer,
		Skipped:     skipped,
	}
}

func (s *Session) uploadsLocked() []domain.AnswerUpload {
	snapshot := s.ledger.Snapshot()
	uploads := make([]domain.AnswerUpload, 0, len(snapshot))
	for _, entry := range snapshot {
		uploads = append(uploads, domain.AnswerUpload{
			CandidateID: s.candidateID,
			ExamName:    s.examName,
			QuestionID:  entry.QuestionID,
			Order:       entry.Order,
			Answer:      entry.Answer,
			Skipped:     entry.Skipped,
		})
	}
	return uploads
}

func (s *Session) handleTick(remaining time.Duration) {
	s.broadcast(Event{Type: EventTick, Remaining: remaining})
}

func (s *Session) broadcast(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Drop the oldest pending event rather than block the tick loop.
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}
