package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Memory is an in-process store with the same contract as Store.
// Several instances sharing one Memory behave like processes sharing a
// database file, except that Watch is push-based.
//
// Thread-safety: All methods are safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	records  map[string]Record
	history  map[string][]Write
	watchers map[chan struct{}]struct{}
	putErr   error
}

// NewMemory creates an empty in-memory store.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:      now,
		records:  make(map[string]Record),
		history:  make(map[string][]Write),
		watchers: make(map[chan struct{}]struct{}),
	}
}

// Get returns the latest value of key, or ErrNotFound.
func (m *Memory) Get(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, fmt.Errorf("get %q: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return Record{}, fmt.Errorf("get %q: %w", key, ErrNotFound)
	}
	rec.Value = slices.Clone(rec.Value)
	return rec, nil
}

// Put stores value under key and notifies every watcher.
func (m *Memory) Put(ctx context.Context, key string, value []byte, source string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, fmt.Errorf("put %q: %w", key, err)
	}
	if key == "" {
		return Record{}, fmt.Errorf("put: empty key")
	}

	m.mu.Lock()
	if m.putErr != nil {
		err := m.putErr
		m.mu.Unlock()
		return Record{}, fmt.Errorf("put %q: %w", key, err)
	}
	rec := Record{
		Key:       key,
		Value:     slices.Clone(value),
		Version:   m.records[key].Version + 1,
		Source:    source,
		UpdatedAt: m.now().UTC().Round(0),
	}
	if rec.Value == nil {
		rec.Value = []byte{}
	}
	m.records[key] = rec
	m.history[key] = append(m.history[key], Write{
		Key:       key,
		Version:   rec.Version,
		Source:    source,
		Size:      len(rec.Value),
		UpdatedAt: rec.UpdatedAt,
	})
	for ch := range m.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	m.mu.Unlock()

	rec.Value = slices.Clone(rec.Value)
	return rec, nil
}

// List returns every stored record ordered by key.
func (m *Memory) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		rec.Value = slices.Clone(rec.Value)
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b Record) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return records, nil
}

// History returns the most recent writes of key, newest first.
func (m *Memory) History(ctx context.Context, key string, limit int) ([]Write, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("history %q: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	writes := slices.Clone(m.history[key])
	slices.Reverse(writes)
	if limit > 0 && len(writes) > limit {
		writes = writes[:limit]
	}
	if writes == nil {
		writes = []Write{}
	}
	return writes, nil
}

// Watch returns a channel signalled after every Put. The channel is closed
// when ctx is done.
func (m *Memory) Watch(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.watchers[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}

// SetPutError makes every subsequent Put fail with err until cleared with
// nil. It simulates an unwritable medium.
func (m *Memory) SetPutError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}
