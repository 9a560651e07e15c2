package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"exam-session-engine/internal/domain"
)

// QuestionSource serves exam content from Postgres. Self-hosted test
// centers use this instead of the hosted backend API; questions are stored
// as JSONB alongside the exam window.
type QuestionSource struct {
	pool *pgxpool.Pool
}

func NewQuestionSource(pool *pgxpool.Pool) *QuestionSource {
	return &QuestionSource{pool: pool}
}

func (s *QuestionSource) FetchQuestions(ctx context.Context, examName, date string) ([]domain.Question, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT questions FROM exams WHERE name=$1 AND exam_date=$2::date`,
		examName, date,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoExamScheduled
	}
	if err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return questions, nil
}

func (s *QuestionSource) TodaysDeadline(ctx context.Context, examName string) (domain.Schedule, error) {
	var (
		examDate time.Time
		endTime  string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT exam_date, end_time FROM exams WHERE name=$1 AND exam_date=CURRENT_DATE`,
		examName,
	).Scan(&examDate, &endTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Schedule{}, domain.ErrNoExamScheduled
	}
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("fetch deadline: %w", err)
	}
	return domain.Schedule{
		Date:         examDate.Format("2006-01-02"),
		EndTimeLabel: endTime,
	}, nil
}
