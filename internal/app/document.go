package app

import (
	"time"

	"exam-session-engine/internal/domain"
)

// SheetMeta identifies the attempt an answer sheet belongs to.
type SheetMeta struct {
	AttemptID   string
	CandidateID string
	ExamName    string
}

// GenerateAnswerSheet renders a final ledger snapshot into an exportable
// answer sheet. It is a pure function of its inputs.
func GenerateAnswerSheet(meta SheetMeta, snapshot []domain.AnswerSnapshot, generatedAt time.Time) domain.AnswerSheet {
	sheet := domain.AnswerSheet{
		AttemptID:   meta.AttemptID,
		CandidateID: meta.CandidateID,
		ExamName:    meta.ExamName,
		GeneratedAt: generatedAt,
		Lines:       make([]domain.SheetLine, 0, len(snapshot)),
		Counts:      domain.SheetCounts{Total: len(snapshot)},
	}
	for _, entry := range snapshot {
		line := domain.SheetLine{Order: entry.Order, QuestionID: entry.QuestionID}
		switch {
		case entry.Answer != nil:
			line.Result = "Answered: " + OptionLetter(*entry.Answer)
			sheet.Counts.Answered++
		case entry.Skipped:
			line.Result = "Skipped"
			sheet.Counts.Skipped++
		default:
			line.Result = "No answer recorded"
			sheet.Counts.Unanswered++
		}
		sheet.Lines = append(sheet.Lines, line)
	}
	return sheet
}

// OptionLetter labels option indices the way printed sheets do: 0 is "A".
func OptionLetter(index int) string {
	if index < 0 {
		return "?"
	}
	return string(rune('A' + index))
}
