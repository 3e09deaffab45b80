package pipeline

import (
	"context"
	"errors"
	"fmt"

	"call-transcriber-go/internal/fetch"
	"call-transcriber-go/internal/media"
	"call-transcriber-go/internal/transcript"
	"call-transcriber-go/internal/types"
)

// Kind is the stable, machine-readable tag of a job failure.
type Kind string

const (
	KindInvalidSource      Kind = "InvalidSourceError"
	KindDownloadIncomplete Kind = "DownloadIncompleteError"
	KindProbe              Kind = "ProbeError"
	KindTranscode          Kind = "TranscodeError"
	KindNoSegments         Kind = "NoSegmentsProducedError"
	KindEmptyTranscript    Kind = "EmptyTranscriptError"
	KindCanceled           Kind = "CanceledError"
	KindInvalidRequest     Kind = "InvalidRequestError"
	KindInternal           Kind = "InternalError"
)

// Fatal reports whether the kind is an operational failure. An empty
// transcript means the job ran and produced nothing worth analysing.
func (k Kind) Fatal() bool {
	return k != KindEmptyTranscript && k != ""
}

// Error is the single tagged error a job returns.
type Error struct {
	Kind       Kind              `json:"kind"`
	Stage      types.JobStatus   `json:"stage"`
	JobKey     string            `json:"jobKey"`
	Message    string            `json:"message"`
	CommandLog *media.CommandLog `json:"commandLog,omitempty"`
	Err        error             `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the failure kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind
	}
	return classify(err)
}

// IsEmptyTranscript reports whether callers should silently skip downstream work.
func IsEmptyTranscript(err error) bool {
	return KindOf(err) == KindEmptyTranscript
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, fetch.ErrInvalidSource):
		return KindInvalidSource
	case errors.Is(err, fetch.ErrDownloadIncomplete):
		return KindDownloadIncomplete
	case errors.Is(err, media.ErrProbe):
		return KindProbe
	case errors.Is(err, media.ErrTranscode):
		return KindTranscode
	case errors.Is(err, media.ErrNoSegments):
		return KindNoSegments
	case errors.Is(err, transcript.ErrEmptyTranscript):
		return KindEmptyTranscript
	default:
		return KindInternal
	}
}

func newError(kind Kind, job *Job, stage types.JobStatus, msg string, err error) *Error {
	e := &Error{Kind: kind, Stage: stage, Message: msg, Err: err}
	if job != nil {
		e.JobKey = job.Key
	}
	var toolErr *media.ToolError
	if errors.As(err, &toolErr) {
		log := toolErr.Log
		e.CommandLog = &log
	}
	return e
}
