package providers

import (
	"context"
	"slices"
	"sync"
)

// Mirror is the in-memory copy of one listener's result set. It is replaced
// wholesale on every snapshot.
type Mirror[T any] struct {
	collection string
	idOf       func(T) string

	mu      sync.RWMutex
	items   []T
	index   map[string]int
	version uint64
	changed chan struct{}
}

func NewMirror[T any](collection string, idOf func(T) string) *Mirror[T] {
	return &Mirror[T]{
		collection: collection,
		idOf:       idOf,
		index:      map[string]int{},
		changed:    make(chan struct{}),
	}
}

// Replace swaps in items and wakes every waiter.
func (m *Mirror[T]) Replace(items []T) {
	index := make(map[string]int, len(items))
	for i, it := range items {
		index[m.idOf(it)] = i
	}

	m.mu.Lock()
	m.items = items
	m.index = index
	m.version++
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()
}

// Clear empties the mirror.
func (m *Mirror[T]) Clear() {
	m.Replace(nil)
}

// Items returns a copy of the current items.
func (m *Mirror[T]) Items() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.items)
}

func (m *Mirror[T]) Get(id string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Mirror[T]) getLocked(id string) (T, bool) {
	i, ok := m.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return m.items[i], true
}

func (m *Mirror[T]) Has(id string) bool {
	_, ok := m.Get(id)
	return ok
}

func (m *Mirror[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Version increases on every Replace.
func (m *Mirror[T]) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// WaitFor blocks until cond holds for the mirror contents or ctx is done.
// cond receives a lookup by id.
func (m *Mirror[T]) WaitFor(ctx context.Context, cond func(get func(id string) (T, bool)) bool) error {
	for {
		m.mu.RLock()
		ok := cond(m.getLocked)
		changed := m.changed
		m.mu.RUnlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// WaitItems is WaitFor with a condition over the whole item list.
func (m *Mirror[T]) WaitItems(ctx context.Context, cond func(items []T) bool) error {
	return m.WaitFor(ctx, func(func(string) (T, bool)) bool {
		return cond(m.items)
	})
}

// present and absent are the usual WaitFor conditions.
func present[T any](id string) func(get func(string) (T, bool)) bool {
	return func(get func(string) (T, bool)) bool {
		_, ok := get(id)
		return ok
	}
}

func absent[T any](id string) func(get func(string) (T, bool)) bool {
	return func(get func(string) (T, bool)) bool {
		_, ok := get(id)
		return !ok
	}
}

// matching waits until id is present and satisfies ok.
func matching[T any](id string, ok func(T) bool) func(get func(string) (T, bool)) bool {
	return func(get func(string) (T, bool)) bool {
		v, found := get(id)
		return found && ok(v)
	}
}
