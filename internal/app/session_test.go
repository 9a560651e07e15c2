package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"exam-session-engine/internal/app"
	"exam-session-engine/internal/domain"
	"exam-session-engine/internal/infra/memory"
)

const (
	testExam      = "algebra-mock"
	testCandidate = "cand-7"
)

// testClock pins "now" while delegating label parsing to a real region clock.
type testClock struct {
	mu     sync.Mutex
	now    time.Time
	region *app.RegionClock
}

func newTestClock(t *testing.T, now time.Time) *testClock {
	t.Helper()
	region, err := app.NewRegionClock("+00:00")
	if err != nil {
		t.Fatalf("region clock: %v", err)
	}
	return &testClock{now: now, region: region}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *testClock) DeadlineFrom(date, label string) (time.Time, error) {
	return c.region.DeadlineFrom(date, label)
}

type captureSink struct {
	mu     sync.Mutex
	sheets []domain.AnswerSheet
	fail   error
}

func (s *captureSink) Export(_ context.Context, sheet domain.AnswerSheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sheets = append(s.sheets, sheet)
	return nil
}

func (s *captureSink) Sheets() []domain.AnswerSheet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AnswerSheet(nil), s.sheets...)
}

type fixture struct {
	svc    *app.SessionService
	cache  *memory.SessionCache
	uplink *memory.RecordingUplink
	sink   *captureSink
	clock  *testClock
}

func fiveQuestionExam() map[string]domain.Exam {
	return map[string]domain.Exam{
		testExam: {
			Name:     testExam,
			Schedule: domain.Schedule{Date: "2026-03-14", EndTimeLabel: "02:45 PM"},
			Questions: []domain.Question{
				{ID: "q1", Order: 1, Prompt: "one", Options: []string{"a", "b", "c", "d"}},
				{ID: "q2", Order: 2, Prompt: "two", Options: []string{"a", "b", "c", "d"}},
				{ID: "q3", Order: 3, Prompt: "three", Options: []string{"a", "b", "c", "d"}},
				{ID: "q4", Order: 4, Prompt: "four", Options: []string{"a", "b", "c", "d"}},
				{ID: "q5", Order: 5, Prompt: "five", Options: []string{"a", "b", "c", "d"}},
			},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newTestClock(t, time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	f := &fixture{
		cache:  memory.NewSessionCache(),
		uplink: memory.NewRecordingUplink(),
		sink:   &captureSink{},
		clock:  clock,
	}
	f.svc = f.newService()
	return f
}

func (f *fixture) newService() *app.SessionService {
	source := memory.NewStaticQuestionSource(fiveQuestionExam())
	return app.NewSessionService(source, f.cache, f.uplink, f.sink, f.clock, zerolog.Nop()).
		WithTickInterval(5 * time.Millisecond)
}

func (f *fixture) start(t *testing.T) *app.Session {
	t.Helper()
	session, err := f.svc.Start(context.Background(), testExam, testCandidate)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return session
}

func assertLedgerInvariant(t *testing.T, session *app.Session) {
	t.Helper()
	counts := session.Counts()
	if counts.Answered+counts.Skipped+counts.Unanswered != counts.Total {
		t.Fatalf("state counts do not sum to total: %+v", counts)
	}
}

func waitFinalized(t *testing.T, session *app.Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if session.Finalized() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session did not finalize in time")
}

func TestNavigationGates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.start(t)

	if err := session.Previous(); err != domain.ErrAtFirstQuestion {
		t.Fatalf("expected first-question error, got %v", err)
	}
	if _, err := session.Next(ctx); err != domain.ErrAnswerRequired {
		t.Fatalf("expected required error on unanswered next, got %v", err)
	}
	if _, index, _ := session.Current(); index != 0 {
		t.Fatalf("failed next must not move, index=%d", index)
	}

	if err := session.RecordAnswer(2); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if finished, err := session.Next(ctx); err != nil || finished {
		t.Fatalf("next after answer: finished=%v err=%v", finished, err)
	}
	if _, index, _ := session.Current(); index != 1 {
		t.Fatalf("expected index 1, got %d", index)
	}

	// Skip always advances, with or without a prior answer.
	if finished, err := session.RecordSkip(ctx); err != nil || finished {
		t.Fatalf("skip: finished=%v err=%v", finished, err)
	}
	if _, index, _ := session.Current(); index != 2 {
		t.Fatalf("expected index 2 after skip, got %d", index)
	}

	if err := session.Previous(); err != nil {
		t.Fatalf("previous: %v", err)
	}
	q, index, record := session.Current()
	if index != 1 || q.ID != "q2" || record.State != domain.Skipped {
		t.Fatalf("expected skipped q2 at index 1, got %s/%d/%v", q.ID, index, record.State)
	}
	assertLedgerInvariant(t, session)
}

func TestAnswerThenSkipTogglesState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.start(t)

	if err := session.RecordAnswer(1); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := session.RecordSkip(ctx); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if err := session.Previous(); err != nil {
		t.Fatalf("previous: %v", err)
	}
	if _, _, record := session.Current(); record.State != domain.Skipped {
		t.Fatalf("answer then skip should end Skipped, got %v", record.State)
	}

	if err := session.RecordAnswer(3); err != nil {
		t.Fatalf("re-answer: %v", err)
	}
	if _, _, record := session.Current(); record.State != domain.Answered || record.Option != 3 {
		t.Fatalf("skip then answer should end Answered(3), got %+v", record)
	}
	assertLedgerInvariant(t, session)
}

func TestWriteThroughAndResume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.start(t)

	if err := session.RecordAnswer(2); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := session.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := session.RecordSkip(ctx); err != nil {
		t.Fatalf("skip: %v", err)
	}
	session.Flush()

	if got := f.uplink.SavedCount(); got != 2 {
		t.Fatalf("expected 2 save-answer syncs, got %d", got)
	}

	before := session.Snapshot()

	// A fresh service instance simulates an app restart sharing the cache.
	resumed, err := f.newService().Start(ctx, testExam, testCandidate)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, index, _ := resumed.Current(); index != 0 {
		t.Fatalf("resumed cursor must restart at 0, got %d", index)
	}
	after := resumed.Snapshot()
	if len(before) != len(after) {
		t.Fatalf("snapshot length mismatch")
	}
	for i := range before {
		a, b := before[i], after[i]
		if a.QuestionID != b.QuestionID || a.Skipped != b.Skipped ||
			(a.Answer == nil) != (b.Answer == nil) ||
			(a.Answer != nil && *a.Answer != *b.Answer) {
			t.Fatalf("resume mismatch at %d: %+v vs %+v", i, a, b)
		}
	}
}

func TestExplicitFinishOnLastQuestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.start(t)

	for i := 0; i < session.QuestionCount(); i++ {
		if err := session.RecordAnswer(i % 4); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		finished, err := session.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		last := i == session.QuestionCount()-1
		if finished != last {
			t.Fatalf("question %d: finished=%v", i, finished)
		}
	}

	if !session.Finalized() {
		t.Fatal("expected finalized session")
	}
	if got := f.uplink.CompletedCount(); got != 1 {
		t.Fatalf("expected one complete-exam call, got %d", got)
	}
	call := f.uplink.Completed[0]
	if call.CandidateID != testCandidate || call.ExamName != testExam || len(call.Uploads) != 5 {
		t.Fatalf("unexpected completion payload %+v", call)
	}
	if _, ok, _ := f.cache.Load(ctx, testExam, testCandidate); ok {
		t.Fatal("cache must be cleared after explicit finish")
	}
	if sheets := f.sink.Sheets(); len(sheets) != 1 || sheets[0].Counts.Answered != 5 {
		t.Fatalf("expected one fully-answered sheet, got %+v", sheets)
	}

	// Further finishes and mutations are no-ops.
	if err := session.FinishExplicit(ctx); err != domain.ErrSessionFinalized {
		t.Fatalf("expected finalized error, got %v", err)
	}
	if err := session.RecordAnswer(0); err != domain.ErrSessionFinalized {
		t.Fatalf("expected finalized error on answer, got %v", err)
	}
	if got := f.uplink.CompletedCount(); got != 1 {
		t.Fatalf("finalize must happen once, got %d completions", got)
	}
}

func TestExplicitFinishFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.start(t)

	if err := session.RecordAnswer(1); err != nil {
		t.Fatalf("answer: %v", err)
	}

	f.uplink.SetFailComplete(errors.New("backend unreachable"))
	if err := session.FinishExplicit(ctx); err == nil {
		t.Fatal("expected finish failure")
	}
	if session.Finalized() {
		t.Fatal("failed explicit finish must not finalize")
	}
	if _, ok, _ := f.cache.Load(ctx, testExam, testCandidate); !ok {
		t.Fatal("failed explicit finish must keep the cache")
	}
	if len(f.sink.Sheets()) != 0 {
		t.Fatal("no sheet may be produced before submission succeeds")
	}

	// The session stays fully usable while retryable.
	if _, err := session.Next(ctx); err != nil {
		t.Fatalf("next after failed finish: %v", err)
	}

	f.uplink.SetFailComplete(nil)
	if err := session.FinishExplicit(ctx); err != nil {
		t.Fatalf("retry finish: %v", err)
	}
	if !session.Finalized() {
		t.Fatal("retry must finalize")
	}
	if _, ok, _ := f.cache.Load(ctx, testExam, testCandidate); ok {
		t.Fatal("cache must be cleared after successful retry")
	}
}

func TestTimeoutFinalizesDespiteSyncFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.start(t)

	if err := session.RecordAnswer(2); err != nil {
		t.Fatalf("answer: %v", err)
	}
	f.uplink.SetFailTimeout(errors.New("backend unreachable"))

	session.FinishOnTimeout()

	if !session.Finalized() {
		t.Fatal("timeout must finalize even when submission fails")
	}
	if _, ok, _ := f.cache.Load(ctx, testExam, testCandidate); ok {
		t.Fatal("timeout must clear the cache even when submission fails")
	}
	if sheets := f.sink.Sheets(); len(sheets) != 1 {
		t.Fatalf("expected answer sheet despite sync failure, got %d", len(sheets))
	}
}

func TestTimeoutSheetScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.start(t)

	// Q1 answered C, Q2 skipped, Q3 answered A, Q4 and Q5 untouched.
	if err := session.RecordAnswer(2); err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	if _, err := session.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := session.RecordSkip(ctx); err != nil {
		t.Fatalf("skip q2: %v", err)
	}
	if err := session.RecordAnswer(0); err != nil {
		t.Fatalf("answer q3: %v", err)
	}

	session.FinishOnTimeout()

	if got := f.uplink.TimeoutCount(); got != 1 {
		t.Fatalf("expected one timeout batch, got %d", got)
	}
	batch := f.uplink.TimeoutBatches[0]
	if len(batch) != 5 {
		t.Fatalf("timeout batch must cover all questions, got %d", len(batch))
	}
	if batch[3].Answer != nil || batch[3].Skipped || batch[4].Answer != nil || batch[4].Skipped {
		t.Fatalf("untouched questions must upload nil/false, got %+v %+v", batch[3], batch[4])
	}

	sheets := f.sink.Sheets()
	if len(sheets) != 1 {
		t.Fatalf("expected one sheet, got %d", len(sheets))
	}
	wantResults := []string{"Answered: C", "Skipped", "Answered: A", "No answer recorded", "No answer recorded"}
	for i, want := range wantResults {
		if sheets[0].Lines[i].Result != want {
			t.Fatalf("line %d = %q, want %q", i, sheets[0].Lines[i].Result, want)
		}
	}
	counts := sheets[0].Counts
	if counts.Total != 5 || counts.Answered != 2 || counts.Skipped != 1 || counts.Unanswered != 2 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestFinalizeGuardIsSingleFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.start(t)

	if err := session.RecordAnswer(0); err != nil {
		t.Fatalf("answer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(explicit bool) {
			defer wg.Done()
			if explicit {
				_ = session.FinishExplicit(ctx)
			} else {
				session.FinishOnTimeout()
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if !session.Finalized() {
		t.Fatal("expected finalized session")
	}
	if total := f.uplink.CompletedCount() + f.uplink.TimeoutCount(); total != 1 {
		t.Fatalf("exactly one finalize submission may happen, got %d", total)
	}
	if sheets := f.sink.Sheets(); len(sheets) != 1 {
		t.Fatalf("exactly one sheet may be produced, got %d", len(sheets))
	}
}

// gatedCache parks the first Save until the gate opens, standing in for a
// slow durable-cache write racing a timeout finalize.
type gatedCache struct {
	inner   *memory.SessionCache
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGatedCache() *gatedCache {
	return &gatedCache{
		inner:   memory.NewSessionCache(),
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
}

func (c *gatedCache) Load(ctx context.Context, examName, candidateID string) (app.CachedAnswers, bool, error) {
	return c.inner.Load(ctx, examName, candidateID)
}

func (c *gatedCache) Save(ctx context.Context, examName, candidateID string, answers map[string]int, skipped map[string]bool) error {
	c.once.Do(func() {
		close(c.entered)
		<-c.gate
	})
	return c.inner.Save(ctx, examName, candidateID, answers, skipped)
}

func (c *gatedCache) Clear(ctx context.Context, examName, candidateID string) error {
	return c.inner.Clear(ctx, examName, candidateID)
}

func TestTimeoutDrainsInFlightCacheWrites(t *testing.T) {
	f := newFixture(t)
	cache := newGatedCache()
	svc := app.NewSessionService(
		memory.NewStaticQuestionSource(fiveQuestionExam()),
		cache, f.uplink, f.sink, f.clock, zerolog.Nop(),
	).WithTickInterval(time.Hour)
	session, err := svc.Start(context.Background(), testExam, testCandidate)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	answered := make(chan struct{})
	go func() {
		defer close(answered)
		if err := session.RecordAnswer(1); err != nil {
			t.Errorf("record answer: %v", err)
		}
	}()
	<-cache.entered

	finalized := make(chan struct{})
	go func() {
		defer close(finalized)
		session.FinishOnTimeout()
	}()

	// The finalize tail must wait for the parked save instead of clearing
	// the cache underneath it.
	select {
	case <-finalized:
		t.Fatal("finalize completed while a cache write was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(cache.gate)
	<-answered
	<-finalized

	if !session.Finalized() {
		t.Fatal("expected finalized session")
	}
	if _, ok, _ := cache.Load(context.Background(), testExam, testCandidate); ok {
		t.Fatal("finalized session left a repopulated durable cache")
	}
}

func TestDeadlineMonitorDrivesTimeout(t *testing.T) {
	f := newFixture(t)
	session := f.start(t)

	if err := session.RecordAnswer(1); err != nil {
		t.Fatalf("answer: %v", err)
	}
	// Jump past the 02:45 PM deadline.
	f.clock.Set(time.Date(2026, 3, 14, 14, 45, 0, 0, time.UTC))

	waitFinalized(t, session)

	if got := f.uplink.TimeoutCount(); got != 1 {
		t.Fatalf("expected one timeout submission, got %d", got)
	}
	if f.uplink.CompletedCount() != 0 {
		t.Fatal("monitor-driven finalize must use the timeout path")
	}
}

func TestDocumentFailureDoesNotBlockFinalize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sink.fail = errors.New("printer offline")
	session := f.start(t)

	if err := session.RecordAnswer(0); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := session.FinishExplicit(ctx); err != nil {
		t.Fatalf("finish must succeed despite export failure: %v", err)
	}
	if !session.Finalized() {
		t.Fatal("expected finalized session")
	}
	if _, ok, _ := f.cache.Load(ctx, testExam, testCandidate); ok {
		t.Fatal("cache must still be cleared")
	}
}

func TestExitGuard(t *testing.T) {
	f := newFixture(t)
	session := f.start(t)

	if session.RequestExit(false) {
		t.Fatal("active session must require confirmation to exit")
	}
	if !session.RequestExit(true) {
		t.Fatal("confirmed exit must pass")
	}
	// Leaving does not disturb cached answers.
	if err := session.RecordAnswer(1); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, ok, _ := f.cache.Load(context.Background(), testExam, testCandidate); !ok {
		t.Fatal("answers must stay cached across an exit")
	}

	session.FinishOnTimeout()
	if !session.RequestExit(false) {
		t.Fatal("guard must disengage after finalize")
	}
}

func TestStartFailsWithoutSchedule(t *testing.T) {
	f := newFixture(t)
	svc := app.NewSessionService(
		memory.NewStaticQuestionSource(nil),
		f.cache, f.uplink, f.sink, f.clock, zerolog.Nop(),
	)
	_, err := svc.Start(context.Background(), "unknown-exam", testCandidate)
	if !errors.Is(err, domain.ErrNoExamScheduled) {
		t.Fatalf("expected no-exam error, got %v", err)
	}
}

func TestGetAndDropTrackSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Get(testExam, testCandidate); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not-found before start, got %v", err)
	}

	session := f.start(t)
	got, err := f.svc.Get(testExam, testCandidate)
	if err != nil || got != session {
		t.Fatalf("expected the started session back, got %v err=%v", got, err)
	}

	// Drop refuses to forget an active session.
	f.svc.Drop(testExam, testCandidate)
	if _, err := f.svc.Get(testExam, testCandidate); err != nil {
		t.Fatalf("active session must survive drop: %v", err)
	}

	session.FinishOnTimeout()
	f.svc.Drop(testExam, testCandidate)
	if _, err := f.svc.Get(testExam, testCandidate); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not-found after drop, got %v", err)
	}
}

func TestSubscribeReceivesTicksAndFinalized(t *testing.T) {
	f := newFixture(t)
	session := f.start(t)

	events, cancel := session.Subscribe()
	defer cancel()

	deadline := time.After(2 * time.Second)
	sawTick := false
	for !sawTick {
		select {
		case event := <-events:
			if event.Type == app.EventTick && event.Remaining > 0 {
				sawTick = true
			}
		case <-deadline:
			t.Fatal("no tick received")
		}
	}

	f.clock.Set(time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC))
	for {
		select {
		case event := <-events:
			if event.Type == app.EventFinalized {
				if event.Reason != app.FinalizedByTimeout {
					t.Fatalf("expected timeout reason, got %q", event.Reason)
				}
				return
			}
		case <-deadline:
			t.Fatal("no finalized event received")
		}
	}
}
