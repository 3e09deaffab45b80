package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"call-transcriber-go/internal/logger"
)

// Options configures an OpenAI-compatible speech-to-text endpoint.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	Language   string
	Timeout    time.Duration
	MaxElapsed time.Duration
}

// Client submits one audio file per call to /audio/transcriptions and asks
// for a plain-text response. Transient failures are retried with exponential
// backoff bounded by MaxElapsed.
type Client struct {
	opts            Options
	httpClient      *http.Client
	initialInterval time.Duration
	log             *logrus.Entry
}

func New(opts Options, log *logrus.Entry) *Client {
	if opts.Model == "" {
		opts.Model = "whisper-1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 30 * time.Second
	}
	return &Client{
		opts:            opts,
		httpClient:      &http.Client{Timeout: opts.Timeout},
		initialInterval: backoff.DefaultInitialInterval,
		log:             logger.Component(log, "transcription"),
	}
}

type jsonTranscription struct {
	Text string `json:"text"`
}

// Transcribe returns the text for one short audio file.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	payload, contentType, err := c.buildForm(audioPath)
	if err != nil {
		return "", err
	}

	endpoint := c.endpoint()
	var text string
	var lastErr error
	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)
		if c.opts.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("server error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			return lastErr
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("stt api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			return backoff.Permanent(lastErr)
		}

		text, err = decodeText(resp.Header.Get("Content-Type"), body)
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval
	bo.MaxElapsedTime = c.opts.MaxElapsed
	notify := func(err error, wait time.Duration) {
		c.log.WithFields(logrus.Fields{
			"file":    filepath.Base(audioPath),
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		}).Debug("retrying transcription")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("transcribe %s: %w", filepath.Base(audioPath), ctxErr)
		}
		return "", fmt.Errorf("transcribe %s: %w", filepath.Base(audioPath), lastErr)
	}
	return text, nil
}

func (c *Client) endpoint() string {
	url := strings.TrimRight(c.opts.BaseURL, "/")
	if strings.HasSuffix(url, "/audio/transcriptions") {
		return url
	}
	return url + "/audio/transcriptions"
}

// buildForm reads the file once so every retry can replay the same body.
func (c *Client) buildForm(audioPath string) ([]byte, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy audio into form: %w", err)
	}
	_ = w.WriteField("model", c.opts.Model)
	_ = w.WriteField("response_format", "text")
	if lang := strings.TrimSpace(c.opts.Language); lang != "" && !strings.EqualFold(lang, "auto") {
		_ = w.WriteField("language", lang)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return b.Bytes(), w.FormDataContentType(), nil
}

// decodeText accepts the plain-text body requested, and tolerates servers
// that answer with {"text": "..."} regardless.
func decodeText(contentType string, body []byte) (string, error) {
	if strings.HasPrefix(strings.ToLower(contentType), "application/json") {
		var out jsonTranscription
		if err := json.Unmarshal(body, &out); err != nil {
			return "", fmt.Errorf("json decode error: %v body=%s", err, string(body))
		}
		return strings.TrimSpace(out.Text), nil
	}
	return strings.TrimSpace(string(body)), nil
}
