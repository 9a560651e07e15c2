package domain

import "time"

// AnswerState is the exclusive per-question state tracked by the ledger.
type AnswerState int

const (
	Unanswered AnswerState = iota
	Answered
	Skipped
)

func (s AnswerState) String() string {
	switch s {
	case Answered:
		return "answered"
	case Skipped:
		return "skipped"
	default:
		return "unanswered"
	}
}

// Question is server-supplied exam content; never mutated client-side.
type Question struct {
	ID       string   `json:"id"`
	Order    int      `json:"order"`
	Prompt   string   `json:"prompt"`
	Options  []string `json:"options"`
	ImageRef string   `json:"imageRef,omitempty"`
}

// AnswerRecord holds the current state for one question. Option is only
// meaningful when State is Answered.
type AnswerRecord struct {
	State  AnswerState
	Option int
}

// Schedule is the exam window as declared by the backend: a calendar date
// plus a 12-hour end-time label in the platform's regional offset.
type Schedule struct {
	Date         string `json:"date"`
	EndTimeLabel string `json:"endTime"`
}

// AnswerSnapshot is one row of the session-order snapshot handed to the
// completion and document paths. Answer is nil for skipped and unanswered
// questions.
type AnswerSnapshot struct {
	QuestionID string `json:"questionId"`
	Order      int    `json:"order"`
	Answer     *int   `json:"answer"`
	Skipped    bool   `json:"skipped"`
}

// AnswerUpload is the per-question payload pushed to the exam backend.
type AnswerUpload struct {
	CandidateID string `json:"candidateId"`
	ExamName    string `json:"examName"`
	QuestionID  string `json:"questionId"`
	Order       int    `json:"order"`
	Answer      *int   `json:"answer"`
	Skipped     bool   `json:"skipped"`
}

// Exam bundles the content a question source serves for one exam day.
type Exam struct {
	Name      string     `json:"name"`
	Schedule  Schedule   `json:"schedule"`
	Questions []Question `json:"questions"`
}

// SheetCounts are the aggregate totals printed on an answer sheet. The three
// state counts always sum to Total.
type SheetCounts struct {
	Total      int `json:"total"`
	Answered   int `json:"answered"`
	Skipped    int `json:"skipped"`
	Unanswered int `json:"unanswered"`
}

// SheetLine is one per-question row of an answer sheet, in exam order.
type SheetLine struct {
	Order      int    `json:"order"`
	QuestionID string `json:"questionId"`
	Result     string `json:"result"`
}

// AnswerSheet is the exportable document produced when a session finalizes.
type AnswerSheet struct {
	AttemptID   string      `json:"attemptId"`
	CandidateID string      `json:"candidateId"`
	ExamName    string      `json:"examName"`
	GeneratedAt time.Time   `json:"generatedAt"`
	Lines       []SheetLine `json:"lines"`
	Counts      SheetCounts `json:"counts"`
}
