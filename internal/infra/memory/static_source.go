package memory

import (
	"context"

	"exam-session-engine/internal/domain"
)

// StaticQuestionSource serves exams from an in-memory map (useful for
// tests and demo runs).
type StaticQuestionSource struct {
	exams map[string]domain.Exam
}

func NewStaticQuestionSource(exams map[string]domain.Exam) *StaticQuestionSource {
	return &StaticQuestionSource{exams: exams}
}

func (s *StaticQuestionSource) FetchQuestions(_ context.Context, examName, _ string) ([]domain.Question, error) {
	exam, ok := s.exams[examName]
	if !ok {
		return nil, domain.ErrNoExamScheduled
	}
	return exam.Questions, nil
}

func (s *StaticQuestionSource) TodaysDeadline(_ context.Context, examName string) (domain.Schedule, error) {
	exam, ok := s.exams[examName]
	if !ok {
		return domain.Schedule{}, domain.ErrNoExamScheduled
	}
	return exam.Schedule, nil
}
