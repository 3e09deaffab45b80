package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// MinTranscodedBytes is the smallest canonical file accepted from an encoder.
const MinTranscodedBytes = 1024

// SampleRate is the canonical sample rate handed to speech recognition.
const SampleRate = 16000

// EncodeAttempt is one tier of the normalizer. Tiers run in order and the
// first one producing a usable file wins.
type EncodeAttempt struct {
	Codec string
	Ext   string
	Args  func(in, out string) []string
}

// Canonical is the normalized working file together with its codec tag.
type Canonical struct {
	Path  string
	Ext   string
	Codec string
}

// DefaultAttempts returns compressed Opus first, then raw PCM WAV, which
// needs no external codec library.
func DefaultAttempts() []EncodeAttempt {
	return []EncodeAttempt{
		{Codec: "opus", Ext: "ogg", Args: buildOpusArgs},
		{Codec: "pcm_s16le", Ext: "wav", Args: buildPCMArgs},
	}
}

// Normalize transcodes src into dir, trying each attempt in order.
func (t *Toolkit) Normalize(ctx context.Context, src, dir string) (Canonical, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Canonical{}, fmt.Errorf("%w: create work dir: %v", ErrTranscode, err)
	}
	if len(t.attempts) == 0 {
		return Canonical{}, fmt.Errorf("%w: no encode attempts configured", ErrTranscode)
	}

	var errs []error
	for i, attempt := range t.attempts {
		c, err := t.Encode(ctx, attempt, src, dir)
		if err == nil {
			if i > 0 {
				t.log.WithField("codec", attempt.Codec).Warn("primary encoder unavailable, using fallback")
			}
			return c, nil
		}
		t.log.WithFields(logrus.Fields{
			"codec": attempt.Codec,
			"error": err.Error(),
		}).Warn("encode attempt failed")
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}

	last := errs[len(errs)-1]
	var toolErr *ToolError
	if errors.As(last, &toolErr) {
		return Canonical{}, &ToolError{Op: "transcode", Log: toolErr.Log, Err: fmt.Errorf("%w: %v", ErrTranscode, errors.Join(errs...))}
	}
	return Canonical{}, fmt.Errorf("%w: %v", ErrTranscode, errors.Join(errs...))
}

// Encode runs a single attempt and checks its output size.
func (t *Toolkit) Encode(ctx context.Context, attempt EncodeAttempt, src, dir string) (Canonical, error) {
	out := filepath.Join(dir, "canonical."+attempt.Ext)
	args := attempt.Args(src, out)

	log, err := t.run(ctx, t.ffmpegPath, args...)
	if err != nil {
		_ = os.Remove(out)
		return Canonical{}, &ToolError{Op: "encode " + attempt.Codec, Log: log, Err: err}
	}

	info, err := os.Stat(out)
	if err != nil {
		return Canonical{}, &ToolError{Op: "encode " + attempt.Codec, Log: log, Err: fmt.Errorf("output missing: %w", err)}
	}
	if info.Size() < t.minOutputBytes {
		_ = os.Remove(out)
		return Canonical{}, &ToolError{
			Op:  "encode " + attempt.Codec,
			Log: log,
			Err: fmt.Errorf("output undersized: %d bytes, want at least %d", info.Size(), t.minOutputBytes),
		}
	}

	return Canonical{Path: out, Ext: attempt.Ext, Codec: attempt.Codec}, nil
}

// buildOpusArgs encodes mono 16 kHz Opus at a low speech bitrate.
func buildOpusArgs(in, out string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "libopus",
		"-b:a", "24k",
		out,
	}
}

// buildPCMArgs encodes mono 16 kHz PCM WAV.
func buildPCMArgs(in, out string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		out,
	}
}
