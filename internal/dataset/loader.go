package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"call-transcriber-go/internal/types"
)

// Load reads call rows from the first sheet, detecting columns by header.
// Rows without an http(s) recording link are skipped.
func Load(path string) ([]types.CallRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, errors.New("no data rows")
	}

	cols := detectColumns(rows[0])
	if cols.audio == -1 {
		return nil, errors.New("no recording url column")
	}

	var out []types.CallRecord
	for i, r := range rows {
		if i == 0 {
			continue
		}
		record := types.CallRecord{
			CallID:   cell(r, cols.callID),
			CallType: cell(r, cols.callType),
			AudioURL: cell(r, cols.audio),
			City:     cell(r, cols.city),
		}
		lower := strings.ToLower(record.AudioURL)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			continue
		}
		if record.CallID == "" {
			record.CallID = fmt.Sprintf("row-%d", i+1)
		}
		out = append(out, record)
	}
	return out, nil
}

// Requests turns call records into pipeline requests keyed by call id.
func Requests(records []types.CallRecord) []types.JobRequest {
	reqs := make([]types.JobRequest, 0, len(records))
	for _, r := range records {
		reqs = append(reqs, types.JobRequest{SourceURL: r.AudioURL, JobKey: r.CallID})
	}
	return reqs
}

type columns struct {
	audio, callID, callType, city int
}

func detectColumns(header []string) columns {
	c := columns{audio: -1, callID: -1, callType: -1, city: -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "audio") || strings.Contains(l, "record") || strings.Contains(l, "url") || strings.Contains(l, "link"):
			if c.audio == -1 {
				c.audio = i
			}
		case strings.Contains(l, "call id") || strings.Contains(l, "callid") || strings.Contains(l, "call_id") || l == "id":
			if c.callID == -1 {
				c.callID = i
			}
		case strings.Contains(l, "type"):
			if c.callType == -1 {
				c.callType = i
			}
		case strings.Contains(l, "city"):
			if c.city == -1 {
				c.city = i
			}
		}
	}
	return c
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
