package transcript

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"call-transcriber-go/internal/logger"
	"call-transcriber-go/internal/types"
)

// DefaultConcurrency is the number of workers used when none is requested.
const DefaultConcurrency = 4

// Transcriber turns one short audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Pool fans segments out to a fixed number of workers.
type Pool struct {
	transcriber Transcriber
	concurrency int
	log         *logrus.Entry
}

func NewPool(t Transcriber, concurrency int, log *logrus.Entry) *Pool {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Pool{
		transcriber: t,
		concurrency: concurrency,
		log:         logger.Component(log, "transcript.pool"),
	}
}

// Run transcribes every segment exactly once and returns one result per
// segment in completion order. A failed segment yields empty text and its
// error; it never stops the other workers. Once ctx is done, remaining
// segments are recorded as failed without calling the service.
func (p *Pool) Run(ctx context.Context, segs []types.Segment) []types.TranscriptionResult {
	if len(segs) == 0 {
		return nil
	}

	queue := make(chan types.Segment, len(segs))
	for _, s := range segs {
		queue <- s
	}
	close(queue)

	workers := p.concurrency
	if workers > len(segs) {
		workers = len(segs)
	}

	results := make(chan types.TranscriptionResult, len(segs))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for seg := range queue {
				results <- p.transcribe(ctx, worker, seg)
			}
		}(w)
	}
	wg.Wait()
	close(results)

	out := make([]types.TranscriptionResult, 0, len(segs))
	for r := range results {
		out = append(out, r)
	}
	return out
}

func (p *Pool) transcribe(ctx context.Context, worker int, seg types.Segment) types.TranscriptionResult {
	entry := p.log.WithFields(logrus.Fields{
		"worker":  worker,
		"segment": seg.Index,
		"file":    filepath.Base(seg.Path),
	})
	if err := ctx.Err(); err != nil {
		return types.TranscriptionResult{SegmentIndex: seg.Index, Err: err}
	}

	start := time.Now()
	text, err := p.transcriber.Transcribe(ctx, seg.Path)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("segment transcription failed, continuing with empty text")
		return types.TranscriptionResult{SegmentIndex: seg.Index, Err: err}
	}
	entry.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("segment transcribed")
	return types.TranscriptionResult{SegmentIndex: seg.Index, Text: text}
}

// Failed counts results that carry an error.
func Failed(results []types.TranscriptionResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
