package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"call-transcriber-go/internal/logger"
	"call-transcriber-go/internal/pipeline"
	"call-transcriber-go/internal/store"
	"call-transcriber-go/internal/types"
)

// Runner executes one pipeline job.
type Runner interface {
	Run(ctx context.Context, req types.JobRequest) (pipeline.Result, error)
}

// Observer receives every finished envelope.
type Observer func(types.JobResult)

// Options carries service-level defaults applied to requests that omit them.
type Options struct {
	DownloadDir    string
	JobTimeout     time.Duration
	SegmentSeconds int
	Concurrency    int
}

// Processor wraps the pipeline with caching, timeouts and the result envelope.
type Processor struct {
	runner   Runner
	cache    store.Store
	opts     Options
	observer Observer
	now      func() time.Time
	log      *logrus.Entry
}

func New(runner Runner, cache store.Store, opts Options, log *logrus.Entry) *Processor {
	if opts.DownloadDir == "" {
		opts.DownloadDir = filepath.Join(os.TempDir(), "call-downloads")
	}
	return &Processor{
		runner: runner,
		cache:  cache,
		opts:   opts,
		now:    time.Now,
		log:    logger.Component(log, "processor"),
	}
}

// OnResult registers an observer for finished envelopes.
func (p *Processor) OnResult(fn Observer) *Processor {
	p.observer = fn
	return p
}

// Process runs one request and always returns an envelope. err is the
// pipeline error, if any; the envelope carries its text and kind.
func (p *Processor) Process(ctx context.Context, req types.JobRequest) (types.JobResult, error) {
	start := p.now()
	req = p.withDefaults(req)
	log := p.log.WithFields(logrus.Fields{"job_key": req.JobKey, "source_url": req.SourceURL})

	if cached, ok := p.lookup(ctx, log, req); ok {
		cached.Cached = true
		cached.DurationMs = p.now().Sub(start).Milliseconds()
		p.emit(cached)
		return cached, nil
	}

	if strings.TrimSpace(req.DestPath) == "" {
		dest, err := p.reserveDownload(req.JobKey)
		if err != nil {
			pErr := &pipeline.Error{
				Kind:    pipeline.KindInternal,
				Stage:   types.JobStatusPending,
				JobKey:  req.JobKey,
				Message: "cannot reserve download path",
				Err:     err,
			}
			res := types.JobResult{
				JobKey:     req.JobKey,
				SourceURL:  req.SourceURL,
				DurationMs: p.now().Sub(start).Milliseconds(),
				Error:      pErr.Error(),
				ErrorKind:  string(pErr.Kind),
				FinishedAt: p.now().UTC(),
			}
			p.emit(res)
			return res, pErr
		}
		req.DestPath = dest
		defer func() {
			if err := os.Remove(req.DestPath); err != nil && !os.IsNotExist(err) {
				log.WithField("error", err.Error()).Warn("download cleanup failed")
			}
		}()
	}

	runCtx := ctx
	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.opts.JobTimeout)
		defer cancel()
	}

	out, err := p.runner.Run(runCtx, req)
	res := types.JobResult{
		JobKey:         req.JobKey,
		SourceURL:      req.SourceURL,
		Transcript:     out.Transcript,
		Segments:       len(out.Segments),
		FailedSegments: out.FailedSegments,
		Codec:          out.Codec,
		DurationMs:     p.now().Sub(start).Milliseconds(),
		FinishedAt:     p.now().UTC(),
	}
	if err != nil {
		res.Error = err.Error()
		res.ErrorKind = string(pipeline.KindOf(err))
	} else if p.cache != nil {
		if perr := p.cache.Put(ctx, res); perr != nil {
			log.WithField("error", perr.Error()).Warn("cache write failed")
		}
	}

	p.emit(res)
	return res, err
}

// Batch runs requests one after another. It stops early only when ctx ends;
// each remaining request then gets a CanceledError envelope.
func (p *Processor) Batch(ctx context.Context, reqs []types.JobRequest) []types.JobResult {
	out := make([]types.JobResult, 0, len(reqs))
	for i, req := range reqs {
		if ctx.Err() != nil {
			for _, rest := range reqs[i:] {
				out = append(out, types.JobResult{
					JobKey:     rest.JobKey,
					SourceURL:  rest.SourceURL,
					Error:      ctx.Err().Error(),
					ErrorKind:  string(pipeline.KindCanceled),
					FinishedAt: p.now().UTC(),
				})
			}
			break
		}
		res, _ := p.Process(ctx, req)
		out = append(out, res)
	}

	failed := 0
	for _, r := range out {
		if r.ErrorKind != "" {
			failed++
		}
	}
	p.log.WithFields(logrus.Fields{"jobs": len(out), "failed": failed}).Info("batch finished")
	return out
}

func (p *Processor) withDefaults(req types.JobRequest) types.JobRequest {
	req.JobKey = strings.TrimSpace(req.JobKey)
	req.SourceURL = strings.TrimSpace(req.SourceURL)
	if req.JobKey == "" {
		req.JobKey = uuid.New().String()
	}
	if req.SegmentSeconds == 0 {
		req.SegmentSeconds = p.opts.SegmentSeconds
	}
	if req.Concurrency == 0 {
		req.Concurrency = p.opts.Concurrency
	}
	return req
}

// reserveDownload creates an empty file unique to this job under the
// download dir. Keys that map to the same safe name still get separate files.
func (p *Processor) reserveDownload(jobKey string) (string, error) {
	if err := os.MkdirAll(p.opts.DownloadDir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	f, err := os.CreateTemp(p.opts.DownloadDir, pipeline.SafeKey(jobKey)+"-*.src")
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close download file: %w", err)
	}
	return f.Name(), nil
}

// lookup serves a cached envelope only for the same key and recording.
// A key resubmitted with another source URL runs again.
func (p *Processor) lookup(ctx context.Context, log *logrus.Entry, req types.JobRequest) (types.JobResult, bool) {
	if p.cache == nil {
		return types.JobResult{}, false
	}
	res, err := p.cache.Get(ctx, req.JobKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.WithField("error", err.Error()).Warn("cache read failed")
		}
		return types.JobResult{}, false
	}
	if res.SourceURL != req.SourceURL {
		log.WithField("cached_source_url", res.SourceURL).Info("job key resubmitted with a new source, re-running")
		return types.JobResult{}, false
	}
	log.Info("serving cached transcript")
	return res, true
}

func (p *Processor) emit(res types.JobResult) {
	if p.observer != nil {
		p.observer(res)
	}
}
