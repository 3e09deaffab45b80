package actionable

import (
	"fmt"
	"sort"

	"call-transcriber-go/internal/aggregator"
)

type ActionCard struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

// AlertRate is the failure share of one kind that warrants operator action.
const AlertRate = 0.35

var actions = map[string]struct{ action, impact string }{
	"InvalidSourceError": {
		"Check the webhook payload; recording links must be http(s) URLs",
		"Jobs are rejected before any download",
	},
	"DownloadIncompleteError": {
		"Verify recording links are not expiring before the job runs; lower queue latency",
		"Calls are lost at the download stage",
	},
	"ProbeError": {
		"Inspect provider recordings; they are not readable media containers",
		"Calls are lost before transcoding",
	},
	"TranscodeError": {
		"Check the ffmpeg build on workers (libopus and pcm_s16le encoders)",
		"Every call fails while the encoder is missing",
	},
	"NoSegmentsProducedError": {
		"Look for silent or zero-length recordings from the telephony provider",
		"Calls complete with no audio to transcribe",
	},
	"EmptyTranscriptError": {
		"Check speech API credentials and quota; review recording audio levels",
		"Calls produce no usable text for analysis",
	},
	"CanceledError": {
		"Raise JOB_TIMEOUT_SEC or lower SEGMENT_SECONDS for long calls",
		"Long calls time out before finishing",
	},
}

// Generate picks the most frequent failure kind above AlertRate.
func Generate(ins aggregator.Insight) ActionCard {
	worst := ""
	highest := 0.0
	kinds := make([]string, 0, len(ins.FailureRateByKind))
	for k := range ins.FailureRateByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		if v := ins.FailureRateByKind[k]; v > highest {
			highest = v
			worst = k
		}
	}

	if highest >= AlertRate && worst != "" {
		a, ok := actions[worst]
		if !ok {
			a.action = "Inspect service logs for " + worst
			a.impact = "Unclassified failures"
		}
		return ActionCard{
			Insight: fmt.Sprintf("High %s rate (%.0f%% of %d jobs)", worst, highest*100, ins.Jobs),
			Action:  a.action,
			Impact:  a.impact,
		}
	}
	if ins.Jobs > 0 && ins.FallbackCodecJobs*2 > ins.Jobs {
		return ActionCard{
			Insight: fmt.Sprintf("%d of %d jobs used the PCM fallback", ins.FallbackCodecJobs, ins.Jobs),
			Action:  "Install an ffmpeg build with libopus to cut upload size",
			Impact:  "Higher bandwidth and slower speech API calls",
		}
	}
	return ActionCard{
		Insight: "No strong failure pattern detected",
		Action:  "Monitor and collect more data",
		Impact:  "Low immediate intervention",
	}
}
