package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"call-transcriber-go/internal/types"
)

// ErrNotFound is returned when no result is cached for a key.
var ErrNotFound = errors.New("result not found")

// Store caches finished job envelopes by job key.
type Store interface {
	Get(ctx context.Context, jobKey string) (types.JobResult, error)
	Put(ctx context.Context, res types.JobResult) error
}

// Memory is a process-local Store used when no redis address is configured.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	res     types.JobResult
	expires time.Time
}

// NewMemory builds an in-memory store. ttl <= 0 keeps entries forever.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (m *Memory) Get(ctx context.Context, jobKey string) (types.JobResult, error) {
	m.mu.RLock()
	e, ok := m.entries[jobKey]
	m.mu.RUnlock()
	if !ok {
		return types.JobResult{}, ErrNotFound
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.mu.Lock()
		delete(m.entries, jobKey)
		m.mu.Unlock()
		return types.JobResult{}, ErrNotFound
	}
	return e.res, nil
}

func (m *Memory) Put(ctx context.Context, res types.JobResult) error {
	if res.JobKey == "" {
		return errors.New("job key is required")
	}
	e := memoryEntry{res: res}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[res.JobKey] = e
	m.mu.Unlock()
	return nil
}
