package dataset

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"call-transcriber-go/internal/types"
)

// ReportSheet is the sheet name written by WriteReport.
const ReportSheet = "Transcripts"

var reportHeader = []interface{}{
	"Job Key", "Source URL", "Status", "Error Kind", "Segments", "Failed Segments",
	"Codec", "Duration (ms)", "Cached", "Finished At", "Transcript", "Error",
}

// WriteReport writes one row per batch result to an xlsx workbook.
func WriteReport(path string, results []types.JobResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ReportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(ReportSheet, "A1", &reportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range results {
		status := "done"
		if r.ErrorKind != "" {
			status = "failed"
		}
		finished := ""
		if !r.FinishedAt.IsZero() {
			finished = r.FinishedAt.UTC().Format(time.RFC3339)
		}
		row := []interface{}{
			r.JobKey, r.SourceURL, status, r.ErrorKind, r.Segments, r.FailedSegments,
			r.Codec, r.DurationMs, r.Cached, finished, r.Transcript, r.Error,
		}
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ReportSheet, cellRef, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(ReportSheet, "K", "K", 80); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
