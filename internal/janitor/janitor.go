package janitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"call-transcriber-go/internal/logger"
	"call-transcriber-go/internal/pipeline"
)

// Janitor removes scratch directories left behind by crashed processes.
// Live jobs remove their own directories; anything older than MaxAge is
// assumed orphaned.
type Janitor struct {
	root     string
	maxAge   time.Duration
	schedule string
	runner   *cron.Cron
	now      func() time.Time
	log      *logrus.Entry
}

func New(root, schedule string, maxAge time.Duration, log *logrus.Entry) *Janitor {
	return &Janitor{
		root:     root,
		maxAge:   maxAge,
		schedule: schedule,
		runner:   cron.New(),
		now:      time.Now,
		log:      logger.Component(log, "janitor"),
	}
}

// Start schedules the sweep and stops the scheduler when ctx ends.
func (j *Janitor) Start(ctx context.Context) error {
	if _, err := j.runner.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(); err != nil {
			j.log.WithField("error", err.Error()).Warn("sweep incomplete")
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", j.schedule, err)
	}
	j.runner.Start()
	j.log.WithFields(logrus.Fields{"schedule": j.schedule, "root": j.root}).Info("janitor started")

	go func() {
		<-ctx.Done()
		<-j.runner.Stop().Done()
		j.log.Info("janitor stopped")
	}()
	return nil
}

// Sweep deletes job scratch directories under root older than maxAge and
// returns how many it removed.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), pipeline.ScratchPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
		j.log.WithFields(logrus.Fields{"dir": path, "age": j.now().Sub(info.ModTime()).Round(time.Second).String()}).Info("removed orphaned scratch dir")
	}
	return removed, errors.Join(errs...)
}
