package aggregator

import "call-transcriber-go/internal/types"

type Insight struct {
	Jobs              int                `json:"jobs"`
	Succeeded         int                `json:"succeeded"`
	Cached            int                `json:"cached"`
	SuccessRate       float64            `json:"success_rate"`
	FailuresByKind    map[string]int     `json:"failures_by_kind"`
	FailureRateByKind map[string]float64 `json:"failure_rate_by_kind"`
	Segments          int                `json:"segments"`
	FailedSegments    int                `json:"failed_segments"`
	FallbackCodecJobs int                `json:"fallback_codec_jobs"`
	AvgDurationMs     int64              `json:"avg_duration_ms"`
}

// Aggregate summarises a batch of job envelopes.
func Aggregate(results []types.JobResult) Insight {
	ins := Insight{
		FailuresByKind:    map[string]int{},
		FailureRateByKind: map[string]float64{},
	}
	var totalMs int64
	for _, r := range results {
		ins.Jobs++
		totalMs += r.DurationMs
		ins.Segments += r.Segments
		ins.FailedSegments += r.FailedSegments
		if r.Cached {
			ins.Cached++
		}
		if r.Codec == "pcm_s16le" {
			ins.FallbackCodecJobs++
		}
		if r.ErrorKind == "" {
			ins.Succeeded++
			continue
		}
		ins.FailuresByKind[r.ErrorKind]++
	}
	if ins.Jobs == 0 {
		return ins
	}
	ins.SuccessRate = float64(ins.Succeeded) / float64(ins.Jobs)
	ins.AvgDurationMs = totalMs / int64(ins.Jobs)
	for k, n := range ins.FailuresByKind {
		ins.FailureRateByKind[k] = float64(n) / float64(ins.Jobs)
	}
	return ins
}
