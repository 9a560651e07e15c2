package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"exam-session-engine/internal/domain"
)

const sheetName = "Answer Sheet"

// XLSXSink writes the answer sheet as a spreadsheet for centers that print
// from office tooling.
type XLSXSink struct {
	dir string
}

func NewXLSXSink(dir string) *XLSXSink {
	return &XLSXSink{dir: dir}
}

func (s *XLSXSink) Export(_ context.Context, sheet domain.AnswerSheet) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("export dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	header := [][]interface{}{
		{"Exam", sheet.ExamName},
		{"Candidate", sheet.CandidateID},
		{"Attempt", sheet.AttemptID},
		{"Generated", sheet.GeneratedAt.Format("2006-01-02 03:04 PM")},
		{},
		{"Question", "Result"},
	}
	row := 1
	for _, cells := range header {
		for col, value := range cells {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
		row++
	}
	for _, line := range sheet.Lines {
		if err := f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("Q%d", line.Order)); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), line.Result); err != nil {
			return err
		}
		row++
	}
	row++
	summary := fmt.Sprintf("Total: %d  Answered: %d  Skipped: %d  Unanswered: %d",
		sheet.Counts.Total, sheet.Counts.Answered, sheet.Counts.Skipped, sheet.Counts.Unanswered)
	if err := f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), summary); err != nil {
		return err
	}

	path := filepath.Join(s.dir, fileName(sheet, "xlsx"))
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("write answer sheet: %w", err)
	}
	return nil
}
