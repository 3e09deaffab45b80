package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/sirupsen/logrus"

	"call-transcriber-go/internal/logger"
)

var (
	ErrProbe      = errors.New("media probe failed")
	ErrTranscode  = errors.New("transcode failed")
	ErrNoSegments = errors.New("no segments produced")
)

// Toolkit drives ffprobe and ffmpeg for one service instance. It holds no
// per-job state and is safe for concurrent use by independent jobs.
type Toolkit struct {
	ffmpegPath     string
	ffprobePath    string
	runner         Runner
	attempts       []EncodeAttempt
	minOutputBytes int64
	lookPath       func(string) (string, error)
	log            *logrus.Entry
}

// NewToolkit builds a toolkit. A nil runner uses os/exec.
func NewToolkit(ffmpegPath, ffprobePath string, runner Runner, log *logrus.Entry) *Toolkit {
	if runner == nil {
		runner = ExecRunner{}
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Toolkit{
		ffmpegPath:     ffmpegPath,
		ffprobePath:    ffprobePath,
		runner:         runner,
		attempts:       DefaultAttempts(),
		minOutputBytes: MinTranscodedBytes,
		lookPath:       exec.LookPath,
		log:            logger.Component(log, "media"),
	}
}

// WithAttempts replaces the ordered encode attempts used by Normalize.
func (t *Toolkit) WithAttempts(attempts ...EncodeAttempt) *Toolkit {
	t.attempts = attempts
	return t
}

// CheckTools verifies ffmpeg and ffprobe resolve on PATH.
func (t *Toolkit) CheckTools() error {
	var errs []error
	for _, name := range []string{t.ffmpegPath, t.ffprobePath} {
		if _, err := t.lookPath(name); err != nil {
			errs = append(errs, fmt.Errorf("tool not found in PATH: %s", name))
		}
	}
	return errors.Join(errs...)
}

func (t *Toolkit) run(ctx context.Context, name string, args ...string) (CommandLog, error) {
	res, err := t.runner.Run(ctx, name, args...)
	log := commandLog(name, args, res)
	t.log.WithFields(logrus.Fields{
		"command":   name,
		"exit_code": log.ExitCode,
	}).Debug("media command finished")
	return log, err
}
