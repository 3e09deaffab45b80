package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"call-transcriber-go/internal/logger"
	"call-transcriber-go/internal/media"
	"call-transcriber-go/internal/transcript"
	"call-transcriber-go/internal/types"
)

// Downloader fetches a remote recording into a local file.
type Downloader interface {
	Fetch(ctx context.Context, rawURL, dest string) (int64, error)
}

// MediaTool probes, normalizes and segments recordings.
type MediaTool interface {
	Probe(ctx context.Context, path string) (media.ProbeResult, error)
	Normalize(ctx context.Context, src, dir string) (media.Canonical, error)
	Segment(ctx context.Context, c media.Canonical, dir string, seconds int, total time.Duration) ([]types.Segment, error)
}

// StageFunc observes job state changes. err is set only for Failed.
type StageFunc func(jobKey string, status types.JobStatus, err error)

// Result is the outcome of a successful job.
type Result struct {
	JobKey         string
	Transcript     string
	Segments       []types.Segment
	FailedSegments int
	Codec          string
	SourceBytes    int64
	SourceDuration time.Duration
	History        []types.JobStatus
}

// Coordinator sequences the stages of a job and owns its scratch storage.
type Coordinator struct {
	fetcher     Downloader
	media       MediaTool
	transcriber transcript.Transcriber
	scratchRoot string
	onStage     StageFunc
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
	log         *logrus.Entry
}

func NewCoordinator(fetcher Downloader, tool MediaTool, tr transcript.Transcriber, scratchRoot string, log *logrus.Entry) *Coordinator {
	if scratchRoot == "" {
		scratchRoot = os.TempDir()
	}
	return &Coordinator{
		fetcher:     fetcher,
		media:       tool,
		transcriber: tr,
		scratchRoot: scratchRoot,
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		log:         logger.Component(log, "pipeline"),
	}
}

// OnStage registers an observer for state changes.
func (c *Coordinator) OnStage(fn StageFunc) *Coordinator {
	c.onStage = fn
	return c
}

// Run executes one job end to end. On failure the returned error is always
// a *Error. The scratch directory is removed on every path.
func (c *Coordinator) Run(ctx context.Context, req types.JobRequest) (res Result, err error) {
	job, err := NewJob(req)
	if err != nil {
		return Result{}, err
	}
	defer func() { res.History = job.History() }()
	log := c.log.WithFields(logrus.Fields{"job_key": job.Key, "source_url": job.SourceURL})
	start := time.Now()

	if err := job.Open(c.scratchRoot, c.mkdirTemp); err != nil {
		return Result{}, c.fail(ctx, job, log, KindInternal, "cannot create scratch directory", err)
	}
	defer func() {
		if err := job.Close(c.removeAll); err != nil {
			log.WithField("error", err.Error()).Warn("scratch cleanup failed")
		}
	}()

	res = Result{JobKey: job.Key}

	if err := c.advance(job, log, types.JobStatusFetching); err != nil {
		return res, c.fail(ctx, job, log, KindInternal, "state machine", err)
	}
	n, err := c.fetcher.Fetch(ctx, job.SourceURL, job.DestPath)
	if err != nil {
		return res, c.fail(ctx, job, log, "", "download failed", err)
	}
	res.SourceBytes = n

	if err := c.advance(job, log, types.JobStatusProbing); err != nil {
		return res, c.fail(ctx, job, log, KindInternal, "state machine", err)
	}
	probe, err := c.media.Probe(ctx, job.DestPath)
	if err != nil {
		return res, c.fail(ctx, job, log, KindProbe, "source is not a playable media container", err)
	}
	if probe.Duration <= 0 {
		return res, c.fail(ctx, job, log, KindNoSegments, "source has no playable duration", media.ErrNoSegments)
	}
	res.SourceDuration = probe.Duration

	if err := c.advance(job, log, types.JobStatusTranscoding); err != nil {
		return res, c.fail(ctx, job, log, KindInternal, "state machine", err)
	}
	canonical, err := c.media.Normalize(ctx, job.DestPath, job.ScratchDir)
	if err != nil {
		return res, c.fail(ctx, job, log, KindTranscode, "no encoder produced usable audio", err)
	}
	res.Codec = canonical.Codec

	if err := c.advance(job, log, types.JobStatusSegmenting); err != nil {
		return res, c.fail(ctx, job, log, KindInternal, "state machine", err)
	}
	segs, err := c.media.Segment(ctx, canonical, filepath.Join(job.ScratchDir, "segments"), job.SegmentSeconds, probe.Duration)
	if err != nil {
		return res, c.fail(ctx, job, log, KindNoSegments, "segmentation produced no files", err)
	}
	res.Segments = segs

	if err := c.advance(job, log, types.JobStatusTranscribing); err != nil {
		return res, c.fail(ctx, job, log, KindInternal, "state machine", err)
	}
	results := transcript.NewPool(c.transcriber, job.Concurrency, log).Run(ctx, segs)
	res.FailedSegments = transcript.Failed(results)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, c.fail(ctx, job, log, KindCanceled, "job canceled during transcription", ctxErr)
	}

	if err := c.advance(job, log, types.JobStatusReassembling); err != nil {
		return res, c.fail(ctx, job, log, KindInternal, "state machine", err)
	}
	text, err := transcript.Assemble(results)
	if err != nil {
		return res, c.fail(ctx, job, log, KindEmptyTranscript, fmt.Sprintf("%d of %d segments failed", res.FailedSegments, len(segs)), err)
	}
	res.Transcript = text

	if err := c.advance(job, log, types.JobStatusDone); err != nil {
		return res, c.fail(ctx, job, log, KindInternal, "state machine", err)
	}
	log.WithFields(logrus.Fields{
		"segments":        len(segs),
		"failed_segments": res.FailedSegments,
		"codec":           res.Codec,
		"chars":           len(text),
		"duration_ms":     time.Since(start).Milliseconds(),
	}).Info("job finished")
	return res, nil
}

func (c *Coordinator) advance(job *Job, log *logrus.Entry, to types.JobStatus) error {
	if err := job.transition(to); err != nil {
		return err
	}
	log.WithField("status", to).Info("job stage")
	if c.onStage != nil {
		c.onStage(job.Key, to, nil)
	}
	return nil
}

// fail moves the job to Failed and builds its tagged error. An empty kind is
// derived from err; cancellation always wins over the stage's own kind.
func (c *Coordinator) fail(ctx context.Context, job *Job, log *logrus.Entry, kind Kind, msg string, err error) error {
	stage := job.Status()
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCanceled
	}
	if kind == "" {
		kind = classify(err)
	}
	pErr := newError(kind, job, stage, msg, err)

	_ = job.transition(types.JobStatusFailed)
	entry := log.WithFields(logrus.Fields{"stage": stage, "kind": kind})
	if kind == KindEmptyTranscript {
		entry.Info("job produced no usable transcript")
	} else {
		entry.WithField("error", pErr.Error()).Warn("job failed")
	}
	if c.onStage != nil {
		c.onStage(job.Key, types.JobStatusFailed, pErr)
	}
	return pErr
}
