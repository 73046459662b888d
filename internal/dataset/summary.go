package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"audiotox-go/internal/aggregator"
	"audiotox-go/internal/textnorm"
	"audiotox-go/internal/types"
)

const (
	predictionsSheet = "Predictions"
	summarySheet     = "Summary"
)

// WriteReport saves per-row verdicts and the aggregate metrics as an xlsx
// workbook.
func WriteReport(path string, records []types.ScoredComment, m aggregator.Metrics) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", predictionsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	rows := [][]interface{}{{"row", "comment", "toxic", "label", "confidence", "correct", "error"}}
	for _, r := range records {
		correct := ""
		if r.Error == "" {
			correct = boolCell((r.Verdict.Label == types.LabelToxic) == r.Toxic)
		}
		rows = append(rows, []interface{}{
			r.Row, r.Comment, toxicCell(r.Toxic), string(r.Verdict.Label), r.Verdict.Confidence, correct, r.Error,
		})
	}
	if err := writeRows(f, predictionsSheet, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	summary := [][]interface{}{
		{"metric", "value"},
		{"total", m.Total},
		{"scored", m.Scored},
		{"failed", m.Failed},
		{"accuracy", m.Accuracy},
		{"precision", m.Precision},
		{"recall", m.Recall},
		{"f1", m.F1},
		{"true_positive", m.TruePositive},
		{"false_positive", m.FalsePositive},
		{"true_negative", m.TrueNegative},
		{"false_negative", m.FalseNegative},
		{"mean_confidence", m.MeanConfidence},
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// WriteNormalized exports comments with their normalized text for the
// offline trainer, as csv or xlsx depending on the extension of path.
func WriteNormalized(path string, comments []types.LabeledComment) error {
	rows := [][]string{{"comment_text", "cleaned_text", "toxic"}}
	for _, c := range comments {
		rows = append(rows, []string{c.Comment, textnorm.Normalize(c.Comment), toxicCell(c.Toxic)})
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		fh, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create file: %w", err)
		}
		w := csv.NewWriter(fh)
		if err := w.WriteAll(rows); err != nil {
			fh.Close()
			return fmt.Errorf("write rows: %w", err)
		}
		return fh.Close()
	}

	f := excelize.NewFile()
	defer f.Close()
	cells := make([][]interface{}, len(rows))
	for i, r := range rows {
		cells[i] = []interface{}{r[0], r[1], r[2]}
	}
	if err := writeRows(f, "Sheet1", cells); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save file: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := r
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func toxicCell(toxic bool) string {
	if toxic {
		return "1"
	}
	return "0"
}

func boolCell(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
