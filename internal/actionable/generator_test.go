package actionable

import (
	"strings"
	"testing"

	"call-transcriber-go/internal/aggregator"
	"call-transcriber-go/internal/types"
)

func TestGenerateFlagsDominantFailure(t *testing.T) {
	ins := aggregator.Aggregate([]types.JobResult{
		{ErrorKind: "TranscodeError"},
		{ErrorKind: "TranscodeError"},
		{ErrorKind: "ProbeError"},
		{},
	})
	card := Generate(ins)
	if !strings.Contains(card.Insight, "TranscodeError") || !strings.Contains(card.Action, "ffmpeg") {
		t.Fatalf("card = %+v", card)
	}
}

func TestGenerateFallbackCodec(t *testing.T) {
	ins := aggregator.Aggregate([]types.JobResult{
		{Codec: "pcm_s16le"},
		{Codec: "pcm_s16le"},
		{Codec: "opus"},
	})
	card := Generate(ins)
	if !strings.Contains(card.Action, "libopus") {
		t.Fatalf("card = %+v", card)
	}
}

func TestGenerateQuiet(t *testing.T) {
	ins := aggregator.Aggregate([]types.JobResult{
		{Codec: "opus"},
		{Codec: "opus"},
		{Codec: "opus"},
		{ErrorKind: "ProbeError"},
	})
	card := Generate(ins)
	if card.Insight != "No strong failure pattern detected" {
		t.Fatalf("card = %+v", card)
	}
}
