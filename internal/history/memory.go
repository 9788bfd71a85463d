package history

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// entry holds one conversation. sem serializes Update and is a one-slot
// channel so that waiting for the key can be abandoned when the caller's
// context ends. mu only guards the turns slice header.
type entry struct {
	sem chan struct{}

	mu    sync.RWMutex
	turns []Turn
}

func (e *entry) snapshot() []Turn {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.turns)
}

// Memory is the in-process Store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*entry)}
}

func (m *Memory) entry(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	return e
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, key string, fn func(turns []Turn) ([]Turn, error)) error {
	e := m.entry(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	next, err := fn(e.snapshot())
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.turns = slices.Clone(next)
	e.mu.Unlock()
	return nil
}

// Get implements Store. Get does not wait for an in-flight Update; it returns
// the last committed turns.
func (m *Memory) Get(key string) []Turn {
	m.mu.Lock()
	e, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	return e.snapshot()
}

// Len returns the number of turns stored under key.
func (m *Memory) Len(key string) int {
	return len(m.Get(key))
}

// Keys returns every key that has been touched, sorted.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
