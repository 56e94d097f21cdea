package memory

import (
	"context"
	"encoding/json"
	"sync"
)

type Item struct {
	Key   string
	Value json.RawMessage
}

// Backend is a namespaced key/value store. Search returns items in first
// insertion order; overwriting a key keeps its position.
type Backend interface {
	Put(ctx context.Context, ns Namespace, key string, value json.RawMessage) error
	Get(ctx context.Context, ns Namespace, key string) (json.RawMessage, bool, error)
	Search(ctx context.Context, ns Namespace) ([]Item, error)
}

type bucket struct {
	order  []string
	values map[string]json.RawMessage
}

// InMemory is a process-local backend. Each mission gets its own instance.
type InMemory struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

func NewInMemory() *InMemory {
	return &InMemory{buckets: map[string]*bucket{}}
}

func (m *InMemory) Put(_ context.Context, ns Namespace, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[ns.String()]
	if !ok {
		b = &bucket{values: map[string]json.RawMessage{}}
		m.buckets[ns.String()] = b
	}
	if _, exists := b.values[key]; !exists {
		b.order = append(b.order, key)
	}
	b.values[key] = append(json.RawMessage(nil), value...)
	return nil
}

func (m *InMemory) Get(_ context.Context, ns Namespace, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.buckets[ns.String()]
	if !ok {
		return nil, false, nil
	}
	v, ok := b.values[key]
	return v, ok, nil
}

func (m *InMemory) Search(_ context.Context, ns Namespace) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.buckets[ns.String()]
	if !ok {
		return nil, nil
	}
	out := make([]Item, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, Item{Key: k, Value: b.values[k]})
	}
	return out, nil
}
