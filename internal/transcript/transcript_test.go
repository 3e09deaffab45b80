package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"call-transcriber-go/internal/types"
)

// funcTranscriber adapts a closure to Transcriber.
type funcTranscriber func(ctx context.Context, path string) (string, error)

func (f funcTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

func makeSegments(n int) []types.Segment {
	segs := make([]types.Segment, n)
	for i := range segs {
		segs[i] = types.Segment{Index: i, Path: fmt.Sprintf("/job/seg_%04d.ogg", i)}
	}
	return segs
}

func textFor(path string) string {
	return "text of " + path
}

// permutations returns every ordering of 0..n-1.
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for pos := 0; pos <= len(p); pos++ {
			next := make([]int, 0, n)
			next = append(next, p[:pos]...)
			next = append(next, n-1)
			next = append(next, p[pos:]...)
			out = append(out, next)
		}
	}
	return out
}

// TestTranscriptOrderIgnoresCompletionOrder releases workers in every
// possible order and checks the transcript never changes.
func TestTranscriptOrderIgnoresCompletionOrder(t *testing.T) {
	const k = 4
	segs := makeSegments(k)
	want := make([]string, k)
	for i, s := range segs {
		want[i] = textFor(s.Path)
	}
	wantText := strings.Join(want, Separator)

	for _, perm := range permutations(k) {
		gates := make(map[string]chan struct{}, k)
		for _, s := range segs {
			gates[s.Path] = make(chan struct{})
		}
		started := make(chan struct{}, k)
		finished := make(chan string, k)

		tr := funcTranscriber(func(ctx context.Context, path string) (string, error) {
			started <- struct{}{}
			<-gates[path]
			finished <- path
			return textFor(path), nil
		})

		done := make(chan []types.TranscriptionResult, 1)
		go func() {
			done <- NewPool(tr, k, nil).Run(context.Background(), segs)
		}()
		for i := 0; i < k; i++ {
			<-started
		}
		var completion []string
		for _, idx := range perm {
			close(gates[segs[idx].Path])
			completion = append(completion, <-finished)
		}
		results := <-done

		for i, idx := range perm {
			if completion[i] != segs[idx].Path {
				t.Fatalf("perm %v: completion[%d] = %s", perm, i, completion[i])
			}
		}
		got, err := Assemble(results)
		if err != nil {
			t.Fatalf("perm %v: Assemble() error = %v", perm, err)
		}
		if got != wantText {
			t.Fatalf("perm %v: transcript = %q, want %q", perm, got, wantText)
		}
	}
}

// TestPoolCallsEachSegmentOnceWithinLimit checks claims and concurrency bound.
func TestPoolCallsEachSegmentOnceWithinLimit(t *testing.T) {
	const limit = 3
	segs := makeSegments(25)

	var mu sync.Mutex
	calls := map[string]int{}
	var inFlight, maxInFlight int32

	tr := funcTranscriber(func(ctx context.Context, path string) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		mu.Lock()
		calls[path]++
		mu.Unlock()
		atomic.AddInt32(&inFlight, -1)
		return textFor(path), nil
	})

	results := NewPool(tr, limit, nil).Run(context.Background(), segs)
	if len(results) != len(segs) {
		t.Fatalf("results = %d, want %d", len(results), len(segs))
	}
	for _, s := range segs {
		if calls[s.Path] != 1 {
			t.Fatalf("segment %s called %d times, want 1", s.Path, calls[s.Path])
		}
	}
	if got := atomic.LoadInt32(&maxInFlight); got > limit {
		t.Fatalf("max in flight = %d, want <= %d", got, limit)
	}
}

// TestPartialFailuresKeepSuccessfulTextInOrder checks soft failures.
func TestPartialFailuresKeepSuccessfulTextInOrder(t *testing.T) {
	segs := makeSegments(5)
	failing := map[string]bool{segs[1].Path: true, segs[3].Path: true}
	tr := funcTranscriber(func(ctx context.Context, path string) (string, error) {
		if failing[path] {
			return "", errors.New("stt api error 500")
		}
		return textFor(path), nil
	})

	results := NewPool(tr, 2, nil).Run(context.Background(), segs)
	if got := Failed(results); got != 2 {
		t.Fatalf("failed = %d, want 2", got)
	}
	got, err := Assemble(results)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	want := strings.Join([]string{textFor(segs[0].Path), textFor(segs[2].Path), textFor(segs[4].Path)}, Separator)
	if got != want {
		t.Fatalf("transcript = %q, want %q", got, want)
	}
}

// TestAllFailuresIsEmptyTranscript checks the distinguished empty outcome.
func TestAllFailuresIsEmptyTranscript(t *testing.T) {
	tr := funcTranscriber(func(ctx context.Context, path string) (string, error) {
		return "", errors.New("down")
	})
	results := NewPool(tr, 4, nil).Run(context.Background(), makeSegments(3))
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if _, err := Assemble(results); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("error = %v, want ErrEmptyTranscript", err)
	}
}

// TestAssembleShortTextIsEmpty checks the usable-length threshold.
func TestAssembleShortTextIsEmpty(t *testing.T) {
	_, err := Assemble([]types.TranscriptionResult{{SegmentIndex: 0, Text: " uh "}, {SegmentIndex: 1, Text: "ok"}})
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("error = %v, want ErrEmptyTranscript", err)
	}
}

// TestAssembleSortsAndTrims checks ordering and whitespace handling.
func TestAssembleSortsAndTrims(t *testing.T) {
	got, err := Assemble([]types.TranscriptionResult{
		{SegmentIndex: 2, Text: "third part"},
		{SegmentIndex: 0, Text: "  first part\n"},
		{SegmentIndex: 1, Text: ""},
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if got != "first part\n\nthird part" {
		t.Fatalf("transcript = %q", got)
	}
}

// TestPoolCanceledContextSkipsCalls checks no service calls after cancellation.
func TestPoolCanceledContextSkipsCalls(t *testing.T) {
	var calls int32
	tr := funcTranscriber(func(ctx context.Context, path string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "x", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewPool(tr, 2, nil).Run(ctx, makeSegments(4))
	if len(results) != 4 || Failed(results) != 4 {
		t.Fatalf("results = %d failed = %d, want 4/4", len(results), Failed(results))
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}

// TestPoolEmptyInput checks no work yields no results.
func TestPoolEmptyInput(t *testing.T) {
	if got := NewPool(funcTranscriber(nil), 0, nil).Run(context.Background(), nil); got != nil {
		t.Fatalf("results = %v, want nil", got)
	}
}
