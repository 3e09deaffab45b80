package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, status int, body []byte) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// TestFetchWritesFileAndCreatesParents checks the happy path.
func TestFetchWritesFileAndCreatesParents(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 4096)
	srv, _ := newTestServer(t, http.StatusOK, payload)

	dest := filepath.Join(t.TempDir(), "nested", "dir", "call.mp3")
	f := New(nil, 5*time.Second, nil)
	n, err := f.Fetch(context.Background(), srv.URL+"/rec.mp3", dest)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("bytes = %d, want %d", n, len(payload))
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("destination content mismatch")
	}
}

// TestFetchRejectsSchemesWithoutNetwork checks no request is made for bad URLs.
func TestFetchRejectsSchemesWithoutNetwork(t *testing.T) {
	srv, hits := newTestServer(t, http.StatusOK, []byte("x"))
	f := New(nil, time.Second, nil)

	for _, raw := range []string{
		"ftp://example.com/a.mp3",
		"file:///etc/passwd",
		"://bad",
		"not a url",
		"http://",
	} {
		_, err := f.Fetch(context.Background(), raw, filepath.Join(t.TempDir(), "a.mp3"))
		if !errors.Is(err, ErrInvalidSource) {
			t.Fatalf("Fetch(%q) error = %v, want ErrInvalidSource", raw, err)
		}
	}
	_ = srv
	if atomic.LoadInt32(hits) != 0 {
		t.Fatalf("server hits = %d, want 0", *hits)
	}
}

// TestFetchUndersizedPayload checks small error pages are rejected.
func TestFetchUndersizedPayload(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, []byte("<html>expired link</html>"))
	f := New(nil, time.Second, nil)

	dest := filepath.Join(t.TempDir(), "a.mp3")
	_, err := f.Fetch(context.Background(), srv.URL, dest)
	if !errors.Is(err, ErrDownloadIncomplete) {
		t.Fatalf("error = %v, want ErrDownloadIncomplete", err)
	}
	if _, statErr := os.Stat(dest); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("undersized download left on disk, stat err = %v", statErr)
	}
}

// TestFetchUnwritableDestination checks local write failures keep the
// download error kind.
func TestFetchUnwritableDestination(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, bytes.Repeat([]byte("a"), 4096))
	f := New(nil, time.Second, nil)

	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := f.Fetch(context.Background(), srv.URL, filepath.Join(blocker, "a.mp3"))
	if !errors.Is(err, ErrDownloadIncomplete) {
		t.Fatalf("error = %v, want ErrDownloadIncomplete", err)
	}
}

// TestFetchNonSuccessStatus checks HTTP failures are download errors.
func TestFetchNonSuccessStatus(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusNotFound, bytes.Repeat([]byte("a"), 4096))
	f := New(nil, time.Second, nil)
	dest := filepath.Join(t.TempDir(), "a.mp3")

	_, err := f.Fetch(context.Background(), srv.URL, dest)
	if !errors.Is(err, ErrDownloadIncomplete) {
		t.Fatalf("error = %v, want ErrDownloadIncomplete", err)
	}
	if _, statErr := os.Stat(dest); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("destination should not be written, stat err = %v", statErr)
	}
}

// TestFetchCanceledContext checks cancellation surfaces as incomplete download.
func TestFetchCanceledContext(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, bytes.Repeat([]byte("a"), 4096))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil, time.Second, nil).Fetch(ctx, srv.URL, filepath.Join(t.TempDir(), "a.mp3"))
	if !errors.Is(err, ErrDownloadIncomplete) {
		t.Fatalf("error = %v, want ErrDownloadIncomplete", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want to wrap context.Canceled", err)
	}
}
