package selection

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps the selection in process memory and notifies
// subscribers after every change.
type MemoryStore struct {
	mu     sync.RWMutex
	ids    []int
	nextID int
	subs   map[int]func([]int)
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ids:  []int{},
		subs: make(map[int]func([]int)),
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.ids), nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, ids []int) error {
	m.mu.Lock()
	m.ids = dedupe(ids)
	m.mu.Unlock()

	m.notify()
	return nil
}

// Toggle implements Store.
func (m *MemoryStore) Toggle(_ context.Context, id int) error {
	m.mu.Lock()
	if i := slices.Index(m.ids, id); i >= 0 {
		m.ids = slices.Delete(m.ids, i, i+1)
	} else {
		m.ids = append(m.ids, id)
	}
	m.mu.Unlock()

	m.notify()
	return nil
}

// Contains implements Store.
func (m *MemoryStore) Contains(_ context.Context, id int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.ids, id), nil
}

// Subscribe registers fn to receive a copy of the selection after each
// change. The returned function removes the subscription.
func (m *MemoryStore) Subscribe(fn func(ids []int)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// notify runs subscribers outside the lock so they may call back into the store.
func (m *MemoryStore) notify() {
	m.mu.RLock()
	snapshot := slices.Clone(m.ids)
	subs := make([]func([]int), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.RUnlock()

	for _, fn := range subs {
		fn(slices.Clone(snapshot))
	}
}
