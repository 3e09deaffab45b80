package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"call-transcriber-go/internal/types"
)

const segmentPrefix = "seg_"

// Segment stream-copies the canonical file into fixed-length chunks inside
// dir. total is the probed source duration used to derive offsets; zero means
// unknown and every chunk is reported at full length.
func (t *Toolkit) Segment(ctx context.Context, c Canonical, dir string, seconds int, total time.Duration) ([]types.Segment, error) {
	if seconds <= 0 {
		return nil, fmt.Errorf("%w: segment length must be positive", ErrNoSegments)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create segment dir: %v", ErrNoSegments, err)
	}
	if err := clearSegments(dir); err != nil {
		return nil, fmt.Errorf("%w: clear old segments: %v", ErrNoSegments, err)
	}

	pattern := filepath.Join(dir, segmentPrefix+"%04d."+c.Ext)
	args := buildSegmentArgs(c.Path, pattern, seconds)
	log, err := t.run(ctx, t.ffmpegPath, args...)
	if err != nil {
		return nil, &ToolError{Op: "segment", Log: log, Err: fmt.Errorf("%w: %v", ErrNoSegments, err)}
	}

	paths, err := listSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSegments, err)
	}
	if len(paths) == 0 {
		return nil, &ToolError{Op: "segment", Log: log, Err: ErrNoSegments}
	}

	segs := buildSegments(paths, time.Duration(seconds)*time.Second, total)
	t.log.WithFields(logrus.Fields{
		"segments":        len(segs),
		"segment_seconds": seconds,
	}).Info("canonical audio segmented")
	return segs, nil
}

// buildSegments assigns contiguous indices and offsets to sorted paths.
func buildSegments(paths []string, length, total time.Duration) []types.Segment {
	segs := make([]types.Segment, 0, len(paths))
	for i, p := range paths {
		start := time.Duration(i) * length
		d := length
		if total > 0 && start+d > total {
			d = total - start
			if d < 0 {
				d = 0
			}
		}
		segs = append(segs, types.Segment{Index: i, Path: p, Start: start, Duration: d})
	}
	return segs
}

// listSegments returns segment files in lexical order, which the zero-padded
// names make equal to temporal order. Trailing empty files are dropped.
func listSegments(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, segmentPrefix+"*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	for len(matches) > 0 {
		info, err := os.Stat(matches[len(matches)-1])
		if err == nil && info.Size() > 0 {
			break
		}
		matches = matches[:len(matches)-1]
	}
	return matches, nil
}

func clearSegments(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, segmentPrefix+"*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func buildSegmentArgs(in, pattern string, seconds int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", in,
		"-map", "0:a",
		"-c", "copy",
		"-f", "segment",
		"-segment_time", strconv.Itoa(seconds),
		"-reset_timestamps", "1",
		pattern,
	}
}
