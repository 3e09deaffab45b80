package types

import "time"

// JobRequest is the input handed over by the webhook/orchestration layer.
type JobRequest struct {
	SourceURL      string `json:"sourceUrl" yaml:"source_url"`
	DestPath       string `json:"destPath" yaml:"dest_path"`
	JobKey         string `json:"jobKey" yaml:"job_key"`
	SegmentSeconds int    `json:"segmentSeconds,omitempty" yaml:"segment_seconds,omitempty"`
	Concurrency    int    `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
}

// CallRecord is one row of a batch dataset.
type CallRecord struct {
	CallID   string `json:"call_id"`
	CallType string `json:"call_type,omitempty"`
	AudioURL string `json:"audio_url"`
	City     string `json:"city,omitempty"`
}

// Segment is a time-bounded slice of canonical audio on disk.
type Segment struct {
	Index    int           `json:"index"`
	Path     string        `json:"path"`
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
}

// TranscriptionResult is produced once per segment, whatever the outcome.
type TranscriptionResult struct {
	SegmentIndex int    `json:"segment_index"`
	Text         string `json:"text"`
	Err          error  `json:"-"`
}

// JobStatus tracks the coordinator state of one job.
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusFetching     JobStatus = "fetching"
	JobStatusProbing      JobStatus = "probing"
	JobStatusTranscoding  JobStatus = "transcoding"
	JobStatusSegmenting   JobStatus = "segmenting"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusReassembling JobStatus = "reassembling"
	JobStatusDone         JobStatus = "done"
	JobStatusFailed       JobStatus = "failed"
)

// JobResult is the envelope returned to callers of the processor.
type JobResult struct {
	JobKey         string    `json:"job_key"`
	SourceURL      string    `json:"source_url"`
	Transcript     string    `json:"transcript,omitempty"`
	Segments       int       `json:"segments"`
	FailedSegments int       `json:"failed_segments"`
	Codec          string    `json:"codec,omitempty"`
	Cached         bool      `json:"cached,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	Error          string    `json:"error,omitempty"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	FinishedAt     time.Time `json:"finished_at"`
}
