package domain

import "errors"

var (
	// ErrNoExamScheduled is returned when no exam window exists for today.
	ErrNoExamScheduled = errors.New("no exam scheduled")
	// ErrQuestionNotFound indicates a question ID outside the session snapshot.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionOutOfRange indicates an option index outside the question's options.
	ErrOptionOutOfRange = errors.New("option index out of range")
	// ErrAnswerRequired is reported when Next is attempted on an unanswered question.
	ErrAnswerRequired = errors.New("answer or skip required before advancing")
	// ErrAtFirstQuestion is reported when Previous is attempted at index 0.
	ErrAtFirstQuestion = errors.New("already at the first question")
	// ErrSessionFinalized indicates the session already finalized (or a
	// finalize attempt is in flight); the action becomes a no-op.
	ErrSessionFinalized = errors.New("session already finalized")
	// ErrSessionNotFound is returned when acting on an unknown session.
	ErrSessionNotFound = errors.New("exam session not found")
)
