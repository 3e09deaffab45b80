package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"call-transcriber-go/internal/logger"
)

// MinDownloadBytes is the smallest payload accepted as a recording. Anything
// below it is almost always an HTML error page or a truncated transfer.
const MinDownloadBytes = 1024

var (
	ErrInvalidSource      = errors.New("invalid source url")
	ErrDownloadIncomplete = errors.New("download incomplete")
)

// Fetcher downloads remote recordings to local files.
type Fetcher struct {
	Client   *http.Client
	MinBytes int64
	log      *logrus.Entry
}

// New builds a Fetcher. A nil client gets one with the given timeout.
func New(client *http.Client, timeout time.Duration, log *logrus.Entry) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{
		Client:   client,
		MinBytes: MinDownloadBytes,
		log:      logger.Component(log, "fetch"),
	}
}

// ValidateURL accepts only absolute http and https URLs.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSource, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidSource)
	}
	return u, nil
}

// Fetch streams rawURL into dest and returns the number of bytes written.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string) (int64, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("%w: create destination dir: %w", ErrDownloadIncomplete, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownloadIncomplete, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: http status %d", ErrDownloadIncomplete, resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("%w: create destination: %w", ErrDownloadIncomplete, err)
	}
	written, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		return written, fmt.Errorf("%w: %w", ErrDownloadIncomplete, copyErr)
	}
	if closeErr != nil {
		return written, fmt.Errorf("%w: %w", ErrDownloadIncomplete, closeErr)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return written, fmt.Errorf("%w: %w", ErrDownloadIncomplete, err)
	}
	if info.Size() < f.MinBytes {
		_ = os.Remove(dest)
		return info.Size(), fmt.Errorf("%w: %d bytes, want at least %d", ErrDownloadIncomplete, info.Size(), f.MinBytes)
	}

	f.log.WithFields(logrus.Fields{
		"host":  u.Host,
		"bytes": info.Size(),
		"dest":  dest,
	}).Info("recording downloaded")
	return info.Size(), nil
}
