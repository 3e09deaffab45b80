package events

import (
	"errors"
	"sync"
	"time"

	"call-transcriber-go/internal/pipeline"
	"call-transcriber-go/internal/types"
)

// EventType classifies messages emitted while jobs run.
type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypeResult EventType = "result"
	EventTypeError  EventType = "error"
)

// Event is a sequenced payload consumed by /events and /ws clients.
type Event struct {
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	JobKey    string          `json:"jobKey"`
	Type      EventType       `json:"type"`
	Status    types.JobStatus `json:"status,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Message   string          `json:"message,omitempty"`
	Command   string          `json:"command,omitempty"`
	Args      []string        `json:"args,omitempty"`
	ExitCode  int             `json:"exitCode,omitempty"`
	Stderr    string          `json:"stderr,omitempty"`
	Chars     int             `json:"chars,omitempty"`
}

// Bus keeps a bounded history of events and fans them out to subscribers.
type Bus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewBus creates a bounded in-memory event buffer.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &Bus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      make(map[int]chan Event),
	}
}

// Publish appends one event, assigns sequence and timestamp, and offers it
// to every subscriber. Slow subscribers miss events rather than block jobs.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	b.mu.Unlock()

	b.subMu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	b.subMu.Unlock()
	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}
	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe returns a channel of future events and a cancel func that
// closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.subMu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.subMu.Lock()
			delete(b.subs, id)
			b.subMu.Unlock()
			close(ch)
		})
	}
}

// Stage adapts the bus to pipeline.StageFunc.
func (b *Bus) Stage(jobKey string, status types.JobStatus, err error) {
	if err == nil {
		b.Publish(Event{JobKey: jobKey, Type: EventTypeStatus, Status: status})
		return
	}

	ev := Event{
		JobKey:  jobKey,
		Type:    EventTypeError,
		Status:  status,
		Kind:    string(pipeline.KindOf(err)),
		Message: err.Error(),
	}
	var pErr *pipeline.Error
	if errors.As(err, &pErr) && pErr.CommandLog != nil {
		ev.Command = pErr.CommandLog.Command
		ev.Args = pErr.CommandLog.Args
		ev.ExitCode = pErr.CommandLog.ExitCode
		ev.Stderr = pErr.CommandLog.Stderr
	}
	b.Publish(ev)
}

// Result records a finished job envelope.
func (b *Bus) Result(res types.JobResult) {
	b.Publish(Event{
		JobKey:  res.JobKey,
		Type:    EventTypeResult,
		Kind:    res.ErrorKind,
		Message: res.Error,
		Chars:   len([]rune(res.Transcript)),
	})
}
