package app

import "exam-session-engine/internal/domain"

// Ledger is the in-memory authoritative record of per-question answer state
// for one session. It is not safe for concurrent use on its own; the owning
// Session serializes access.
//
// A question never reverts to Unanswered once touched: the only transitions
// out of Answered and Skipped are into each other, last writer wins.
type Ledger struct {
	questions []domain.Question
	records   map[string]domain.AnswerRecord
}

func NewLedger(questions []domain.Question) *Ledger {
	return &Ledger{
		questions: questions,
		records:   make(map[string]domain.AnswerRecord, len(questions)),
	}
}

// Seed restores previously cached answers and skips. Entries for question
// IDs outside the current snapshot are dropped.
func (l *Ledger) Seed(answers map[string]int, skipped map[string]bool) {
	for _, q := range l.questions {
		if option, ok := answers[q.ID]; ok {
			l.records[q.ID] = domain.AnswerRecord{State: domain.Answered, Option: option}
		}
		// A skip recorded after an answer wins, matching write order.
		if skipped[q.ID] {
			l.records[q.ID] = domain.AnswerRecord{State: domain.Skipped}
		}
	}
}

// RecordAnswer marks the question answered with the given option, clearing
// any prior skip.
func (l *Ledger) RecordAnswer(questionID string, option int) error {
	q, ok := l.question(questionID)
	if !ok {
		return domain.ErrQuestionNotFound
	}
	if option < 0 || option >= len(q.Options) {
		return domain.ErrOptionOutOfRange
	}
	l.records[questionID] = domain.AnswerRecord{State: domain.Answered, Option: option}
	return nil
}

// RecordSkip marks the question skipped, discarding any recorded option.
func (l *Ledger) RecordSkip(questionID string) error {
	if _, ok := l.question(questionID); !ok {
		return domain.ErrQuestionNotFound
	}
	l.records[questionID] = domain.AnswerRecord{State: domain.Skipped}
	return nil
}

// Record returns the current state for a question; untouched questions
// report Unanswered.
func (l *Ledger) Record(questionID string) domain.AnswerRecord {
	return l.records[questionID]
}

// Snapshot renders every question in session order. Unanswered questions
// appear with a nil answer and skipped=false.
func (l *Ledger) Snapshot() []domain.AnswerSnapshot {
	out := make([]domain.AnswerSnapshot, 0, len(l.questions))
	for _, q := range l.questions {
		entry := domain.AnswerSnapshot{QuestionID: q.ID, Order: q.Order}
		switch record := l.records[q.ID]; record.State {
		case domain.Answered:
			option := record.Option
			entry.Answer = &option
		case domain.Skipped:
			entry.Skipped = true
		}
		out = append(out, entry)
	}
	return out
}

// Counts tallies the three states; the sum always equals the question count.
func (l *Ledger) Counts() domain.SheetCounts {
	counts := domain.SheetCounts{Total: len(l.questions)}
	for _, q := range l.questions {
		switch l.records[q.ID].State {
		case domain.Answered:
			counts.Answered++
		case domain.Skipped:
			counts.Skipped++
		default:
			counts.Unanswered++
		}
	}
	return counts
}

// Answers exports the answered map for cache write-through.
func (l *Ledger) Answers() map[string]int {
	out := make(map[string]int)
	for id, record := range l.records {
		if record.State == domain.Answered {
			out[id] = record.Option
		}
	}
	return out
}

// SkippedSet exports the skip set for cache write-through.
func (l *Ledger) SkippedSet() map[string]bool {
	out := make(map[string]bool)
	for id, record := range l.records {
		if record.State == domain.Skipped {
			out[id] = true
		}
	}
	return out
}

func (l *Ledger) question(questionID string) (domain.Question, bool) {
	for _, q := range l.questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return domain.Question{}, false
}
