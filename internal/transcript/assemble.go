package transcript

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"call-transcriber-go/internal/types"
)

// MinTranscriptChars is the shortest joined transcript worth analysing.
const MinTranscriptChars = 10

// Separator joins segment texts into paragraphs.
const Separator = "\n\n"

var ErrEmptyTranscript = errors.New("empty transcript")

// Assemble orders results by segment index and joins the non-empty texts.
// Completion order never affects the output.
func Assemble(results []types.TranscriptionResult) (string, error) {
	ordered := make([]types.TranscriptionResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].SegmentIndex < ordered[j].SegmentIndex
	})

	parts := make([]string, 0, len(ordered))
	for _, r := range ordered {
		if t := strings.TrimSpace(r.Text); t != "" {
			parts = append(parts, t)
		}
	}

	joined := strings.TrimSpace(strings.Join(parts, Separator))
	if n := utf8.RuneCountInString(joined); n < MinTranscriptChars {
		return "", fmt.Errorf("%w: %d usable characters from %d segments", ErrEmptyTranscript, n, len(results))
	}
	return joined, nil
}
