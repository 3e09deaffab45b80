package pipeline

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"call-transcriber-go/internal/types"
)

const (
	DefaultSegmentSeconds = 120
	MinSegmentSeconds     = 30
	DefaultConcurrency    = 4

	// ScratchPrefix starts every job scratch directory name.
	ScratchPrefix = "calljob-"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Job is one pipeline invocation. It exclusively owns ScratchDir from Open
// until Close.
type Job struct {
	Key            string
	SourceURL      string
	DestPath       string
	SegmentSeconds int
	Concurrency    int
	ScratchDir     string

	status  types.JobStatus
	history []types.JobStatus
}

// NewJob validates req and applies defaults and floors.
func NewJob(req types.JobRequest) (*Job, error) {
	key := strings.TrimSpace(req.JobKey)
	if key == "" {
		return nil, &Error{Kind: KindInvalidRequest, Stage: types.JobStatusPending, Message: "jobKey is required"}
	}
	if strings.TrimSpace(req.DestPath) == "" {
		return nil, &Error{Kind: KindInvalidRequest, Stage: types.JobStatusPending, JobKey: key, Message: "destPath is required"}
	}

	seconds := req.SegmentSeconds
	if seconds == 0 {
		seconds = DefaultSegmentSeconds
	}
	if seconds < MinSegmentSeconds {
		seconds = MinSegmentSeconds
	}
	workers := req.Concurrency
	if workers == 0 {
		workers = DefaultConcurrency
	}
	if workers < 1 {
		workers = 1
	}

	return &Job{
		Key:            key,
		SourceURL:      strings.TrimSpace(req.SourceURL),
		DestPath:       req.DestPath,
		SegmentSeconds: seconds,
		Concurrency:    workers,
		status:         types.JobStatusPending,
		history:        []types.JobStatus{types.JobStatusPending},
	}, nil
}

// Open creates the job's scratch directory under root.
func (j *Job) Open(root string, mkdirTemp func(dir, pattern string) (string, error)) error {
	if j.ScratchDir != "" {
		return errors.New("scratch directory already open")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create scratch root: %w", err)
	}
	dir, err := mkdirTemp(root, ScratchPrefix+SafeKey(j.Key)+"-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	j.ScratchDir = dir
	return nil
}

// Close releases the scratch directory.
func (j *Job) Close(removeAll func(string) error) error {
	if j.ScratchDir == "" {
		return nil
	}
	if err := removeAll(j.ScratchDir); err != nil {
		return err
	}
	j.ScratchDir = ""
	return nil
}

// Status returns the current state.
func (j *Job) Status() types.JobStatus {
	return j.status
}

// History returns every state the job has been in, in order.
func (j *Job) History() []types.JobStatus {
	return append([]types.JobStatus(nil), j.history...)
}

func (j *Job) transition(to types.JobStatus) error {
	if !isValidTransition(j.status, to) {
		return fmt.Errorf("invalid transition: %s -> %s", j.status, to)
	}
	j.status = to
	j.history = append(j.history, to)
	return nil
}

// SafeKey maps a job key onto characters usable in a directory name.
func SafeKey(key string) string {
	s := unsafeKeyChars.ReplaceAllString(key, "_")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" {
		s = "job"
	}
	return s
}

var nextStatus = map[types.JobStatus]types.JobStatus{
	types.JobStatusPending:      types.JobStatusFetching,
	types.JobStatusFetching:     types.JobStatusProbing,
	types.JobStatusProbing:      types.JobStatusTranscoding,
	types.JobStatusTranscoding:  types.JobStatusSegmenting,
	types.JobStatusSegmenting:   types.JobStatusTranscribing,
	types.JobStatusTranscribing: types.JobStatusReassembling,
	types.JobStatusReassembling: types.JobStatusDone,
}

// isValidTransition enforces the linear job state machine; Failed is
// reachable from every non-terminal state.
func isValidTransition(from, to types.JobStatus) bool {
	switch from {
	case types.JobStatusDone, types.JobStatusFailed:
		return false
	}
	if to == types.JobStatusFailed {
		return true
	}
	next, ok := nextStatus[from]
	return ok && next == to
}
