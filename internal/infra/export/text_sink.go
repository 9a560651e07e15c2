package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"exam-session-engine/internal/domain"
)

// TextSink writes the answer sheet as a printable plain-text file named
// after the exam and attempt.
type TextSink struct {
	dir string
}

func NewTextSink(dir string) *TextSink {
	return &TextSink{dir: dir}
}

func (s *TextSink) Export(_ context.Context, sheet domain.AnswerSheet) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("export dir: %w", err)
	}
	path := filepath.Join(s.dir, fileName(sheet, "txt"))
	if err := os.WriteFile(path, []byte(Render(sheet)), 0o644); err != nil {
		return fmt.Errorf("write answer sheet: %w", err)
	}
	return nil
}

// Render produces the human-readable answer sheet text.
func Render(sheet domain.AnswerSheet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Answer Sheet: %s\n", sheet.ExamName)
	fmt.Fprintf(&b, "Candidate: %s\n", sheet.CandidateID)
	fmt.Fprintf(&b, "Attempt:   %s\n", sheet.AttemptID)
	fmt.Fprintf(&b, "Generated: %s\n\n", sheet.GeneratedAt.Format("2006-01-02 03:04 PM"))
	for _, line := range sheet.Lines {
		fmt.Fprintf(&b, "Q%d. %s\n", line.Order, line.Result)
	}
	fmt.Fprintf(&b, "\nTotal: %d  Answered: %d  Skipped: %d  Unanswered: %d\n",
		sheet.Counts.Total, sheet.Counts.Answered, sheet.Counts.Skipped, sheet.Counts.Unanswered)
	return b.String()
}

func fileName(sheet domain.AnswerSheet, ext string) string {
	return fmt.Sprintf("%s-%s-answer-sheet.%s", safe(sheet.ExamName), sheet.AttemptID, ext)
}

func safe(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
