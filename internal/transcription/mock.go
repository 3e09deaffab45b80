package transcription

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Mock returns a deterministic transcript per file. Enabled with
// USE_MOCK_TRANSCRIBE=true for offline demos.
type Mock struct{}

func (Mock) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return fmt.Sprintf("MOCK TRANSCRIPT [%s]: Customer says they face pricing issues and want refund.", name), nil
}
