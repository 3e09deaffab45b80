package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ProbeResult describes a validated media container.
type ProbeResult struct {
	Format   string
	Duration time.Duration
}

type ffprobeOutput struct {
	Format *struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// Probe checks path is a readable media container and reports its duration.
// A container with unknown or zero duration is valid; callers decide what an
// empty recording means.
func (t *Toolkit) Probe(ctx context.Context, path string) (ProbeResult, error) {
	args := buildProbeArgs(path)
	log, err := t.run(ctx, t.ffprobePath, args...)
	if err != nil {
		return ProbeResult{}, &ToolError{Op: "probe", Log: log, Err: fmt.Errorf("%w: %v", ErrProbe, err)}
	}

	var out ffprobeOutput
	if err := json.Unmarshal([]byte(log.Stdout), &out); err != nil {
		return ProbeResult{}, &ToolError{Op: "probe", Log: log, Err: fmt.Errorf("%w: decode ffprobe output: %v", ErrProbe, err)}
	}
	if out.Format == nil || strings.TrimSpace(out.Format.FormatName) == "" {
		return ProbeResult{}, &ToolError{Op: "probe", Log: log, Err: fmt.Errorf("%w: no container format detected", ErrProbe)}
	}

	return ProbeResult{
		Format:   out.Format.FormatName,
		Duration: parseSeconds(out.Format.Duration),
	}, nil
}

// parseSeconds converts ffprobe's decimal seconds; "N/A" and garbage are zero.
func parseSeconds(raw string) time.Duration {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

func buildProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=format_name,duration",
		"-of", "json",
		path,
	}
}
