package dataset

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"call-transcriber-go/internal/types"
)

func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", ref, &r); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "calls.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDetectsColumnsAndSkipsBadRows(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"Call ID", "Call Type", "City", "Recording Link"},
		{"C-1", "inbound", "Pune", "https://cdn.example.com/c1.mp3"},
		{"C-2", "outbound", "Delhi", "not a link"},
		{"", "inbound", "Jaipur", "http://cdn.example.com/c3.wav"},
	})

	records, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %+v", records)
	}
	if records[0].CallID != "C-1" || records[0].City != "Pune" || records[0].CallType != "inbound" {
		t.Fatalf("first record = %+v", records[0])
	}
	if records[1].CallID != "row-4" {
		t.Fatalf("generated id = %q, want row-4", records[1].CallID)
	}

	reqs := Requests(records)
	if reqs[0].JobKey != "C-1" || reqs[0].SourceURL != "https://cdn.example.com/c1.mp3" {
		t.Fatalf("request = %+v", reqs[0])
	}
}

func TestLoadRejectsHeaderOnly(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{{"Call ID", "Audio URL"}})
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for header-only sheet")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.xlsx")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	results := []types.JobResult{
		{JobKey: "C-1", SourceURL: "https://x/1.mp3", Transcript: "hello there caller", Segments: 2, Codec: "opus", FinishedAt: time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)},
		{JobKey: "C-2", SourceURL: "https://x/2.mp3", ErrorKind: "TranscodeError", Error: "no encoder produced usable audio"},
	}
	if err := WriteReport(path, results); err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(ReportSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[1][0] != "C-1" || rows[1][2] != "done" || rows[1][9] != "2025-12-01T09:00:00Z" {
		t.Fatalf("row 2 = %v", rows[1])
	}
	if rows[2][2] != "failed" || rows[2][3] != "TranscodeError" {
		t.Fatalf("row 3 = %v", rows[2])
	}
}
