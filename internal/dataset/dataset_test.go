package dataset

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"audiotox-go/internal/aggregator"
	"audiotox-go/internal/types"
)

func writeWorkbook(t *testing.T, path string, rows [][]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := writeRows(f, "Sheet1", rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestLoadWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"id", "comment_text", "toxic", "severe_toxic"},
		{"a1", "You are an IDIOT!!", 1, 0},
		{"a2", "Thanks for the edit.", 0, 0},
		{"a3", "no label here"},
		{"a4", "maybe", "unsure", 0},
	})

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []types.LabeledComment{
		{Row: 2, Comment: "You are an IDIOT!!", Toxic: true},
		{Row: 3, Comment: "Thanks for the edit.", Toxic: false},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}
}

func TestLoadCSVWithHeuristicHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.csv")
	data := "Cleaned Text,Comment Body,Is Toxic\nfoo,\"Hello, world\",yes\nbar,go away,not-toxic\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []types.LabeledComment{
		{Row: 2, Comment: "Hello, world", Toxic: true},
		{Row: 3, Comment: "go away", Toxic: false},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	noLabel := filepath.Join(dir, "nolabel.csv")
	if err := os.WriteFile(noLabel, []byte("comment_text\nhi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(noLabel); err == nil {
		t.Fatal("expected error for missing label column")
	}

	empty := filepath.Join(dir, "empty.csv")
	if err := os.WriteFile(empty, []byte("comment_text,toxic\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(empty); err == nil {
		t.Fatal("expected error for header-only file")
	}

	if _, err := Load(filepath.Join(dir, "missing.xlsx")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWriteNormalizedRoundTrip(t *testing.T) {
	comments := []types.LabeledComment{
		{Row: 2, Comment: "You   are an IDIOT!!", Toxic: true},
		{Row: 3, Comment: "Thanks :)", Toxic: false},
	}

	for _, name := range []string{"normalized.csv", "normalized.xlsx"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := WriteNormalized(path, comments); err != nil {
				t.Fatalf("WriteNormalized() error = %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !reflect.DeepEqual(got, comments) {
				t.Fatalf("Load() = %+v, want %+v", got, comments)
			}
		})
	}
}

func TestWriteNormalizedUsesNormalizer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "normalized.xlsx")
	if err := WriteNormalized(path, []types.LabeledComment{{Comment: "Hello,\tWORLD 42!", Toxic: false}}); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := f.GetCellValue("Sheet1", "B2")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello world" {
		t.Fatalf("cleaned_text = %q, want %q", got, "hello world")
	}
}

func TestWriteReport(t *testing.T) {
	records := []types.ScoredComment{
		{LabeledComment: types.LabeledComment{Row: 2, Comment: "idiot", Toxic: true}, Verdict: types.Verdict{Label: types.LabelToxic, Confidence: 0.9}},
		{LabeledComment: types.LabeledComment{Row: 3, Comment: "hi", Toxic: false}, Error: "classifier unreachable"},
	}
	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := WriteReport(path, records, aggregator.Aggregate(records)); err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got := f.GetSheetList(); !reflect.DeepEqual(got, []string{predictionsSheet, summarySheet}) {
		t.Fatalf("sheets = %v", got)
	}
	rows, err := f.GetRows(predictionsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("prediction rows = %d, want 3", len(rows))
	}
	if rows[1][3] != "toxic" || rows[1][5] != "yes" {
		t.Fatalf("row 2 = %v", rows[1])
	}
	if rows[2][6] != "classifier unreachable" {
		t.Fatalf("row 3 = %v", rows[2])
	}

	summary, err := f.GetRows(summarySheet)
	if err != nil {
		t.Fatal(err)
	}
	if summary[1][0] != "total" || summary[1][1] != "2" || summary[4][0] != "accuracy" || summary[4][1] != "1" {
		t.Fatalf("summary = %v", summary)
	}
}
