package memory

import (
	"context"
	"sync"

	"exam-session-engine/internal/domain"
)

// CompletedCall captures one CompleteExam invocation.
type CompletedCall struct {
	CandidateID string
	ExamName    string
	Uploads     []domain.AnswerUpload
}

// RecordingUplink implements app.AnswerUplink in memory. It backs tests and
// offline demo runs where no exam backend is reachable; the Fail* fields
// let tests simulate network failures per operation.
type RecordingUplink struct {
	mu             sync.Mutex
	Saved          []domain.AnswerUpload
	TimeoutBatches [][]domain.AnswerUpload
	Completed      []CompletedCall

	FailSave     error
	FailTimeout  error
	FailComplete error
}

func NewRecordingUplink() *RecordingUplink {
	return &RecordingUplink{}
}

func (u *RecordingUplink) SaveAnswer(_ context.Context, upload domain.AnswerUpload) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.FailSave != nil {
		return u.FailSave
	}
	u.Saved = append(u.Saved, upload)
	return nil
}

func (u *RecordingUplink) SubmitTimeoutAnswers(_ context.Context, uploads []domain.AnswerUpload) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.FailTimeout != nil {
		return u.FailTimeout
	}
	u.TimeoutBatches = append(u.TimeoutBatches, uploads)
	return nil
}

func (u *RecordingUplink) CompleteExam(_ context.Context, candidateID, examName string, uploads []domain.AnswerUpload) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.FailComplete != nil {
		return u.FailComplete
	}
	u.Completed = append(u.Completed, CompletedCall{CandidateID: candidateID, ExamName: examName, Uploads: uploads})
	return nil
}

// SetFailComplete toggles the simulated CompleteExam failure.
func (u *RecordingUplink) SetFailComplete(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.FailComplete = err
}

// SetFailTimeout toggles the simulated SubmitTimeoutAnswers failure.
func (u *RecordingUplink) SetFailTimeout(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.FailTimeout = err
}

// SavedCount returns the number of per-answer saves delivered so far.
func (u *RecordingUplink) SavedCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.Saved)
}

// CompletedCount returns the number of CompleteExam calls delivered.
func (u *RecordingUplink) CompletedCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.Completed)
}

// TimeoutCount returns the number of timeout batches delivered.
func (u *RecordingUplink) TimeoutCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.TimeoutBatches)
}
