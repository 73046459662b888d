package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"audiotox-go/internal/types"
)

// Load reads labeled comments from the first sheet of an xlsx workbook, or
// from a csv file. Comment and label columns are found by header heuristics;
// rows whose label cannot be read are skipped.
func Load(path string) ([]types.LabeledComment, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	commentIdx, labelIdx := detectColumns(rows[0])
	if commentIdx == -1 {
		return nil, fmt.Errorf("no comment column in header %v", rows[0])
	}
	if labelIdx == -1 {
		return nil, fmt.Errorf("no toxic label column in header %v", rows[0])
	}

	var out []types.LabeledComment
	for i, r := range rows {
		if i == 0 {
			continue
		}
		if labelIdx >= len(r) {
			continue
		}
		toxic, ok := ParseToxic(r[labelIdx])
		if !ok {
			continue
		}
		comment := ""
		if commentIdx < len(r) {
			comment = r[commentIdx]
		}
		out = append(out, types.LabeledComment{Row: i + 1, Comment: comment, Toxic: toxic})
	}
	return out, nil
}

func readRows(path string) ([][]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		defer fh.Close()
		r := csv.NewReader(fh)
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}
		return rows, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

// detectColumns finds the raw comment column and the toxic label column.
// An exact comment_text header wins; cleaned text columns written by
// WriteNormalized are never taken as the raw comment.
func detectColumns(header []string) (commentIdx, labelIdx int) {
	commentIdx, labelIdx = -1, -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case l == "comment_text" || l == "comment":
			commentIdx = i
		case l == "toxic" || l == "label":
			labelIdx = i
		}
	}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "clean") || strings.Contains(l, "normal"):
			continue
		case commentIdx == -1 && (strings.Contains(l, "comment") || strings.Contains(l, "text")):
			commentIdx = i
		case labelIdx == -1 && (strings.Contains(l, "toxic") || strings.Contains(l, "label")):
			labelIdx = i
		}
	}
	return commentIdx, labelIdx
}

// ParseToxic reads a label cell: 1/0, true/false, yes/no or the wire labels.
func ParseToxic(cell string) (toxic, ok bool) {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "1", "1.0", "true", "yes", string(types.LabelToxic):
		return true, true
	case "0", "0.0", "false", "no", string(types.LabelNotToxic), "not toxic":
		return false, true
	}
	return false, false
}
