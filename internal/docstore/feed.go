package docstore

import (
	"context"
	"sync"
	"sync/atomic"
)

// Feed dispatches change notifications to listeners of a collection.
//
// Every subscription owns one goroutine and a wake channel of capacity one:
// notifications that arrive while a refresh is running collapse into a single
// follow-up refresh. Refreshes re-read the current state, so each listener sees
// snapshots in commit order and never an older state after a newer one.
type Feed struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
}

type subscription struct {
	collection string
	refresh    func(ctx context.Context)
	wake       chan struct{}
	stop       chan struct{}
	once       sync.Once
}

func NewFeed() *Feed {
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[uint64]*subscription),
	}
}

// Subscribe registers refresh for collection and schedules an initial run.
func (f *Feed) Subscribe(collection string, refresh func(ctx context.Context)) Unsubscribe {
	sub := &subscription{
		collection: collection,
		refresh:    refresh,
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	f.mu.Unlock()

	sub.wake <- struct{}{}
	go sub.run(f.ctx)

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		sub.close()
	}
}

// Publish wakes every listener of collection. It never blocks.
func (f *Feed) Publish(collection string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.collection != collection {
			continue
		}
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

// Listeners returns the number of attached subscriptions.
func (f *Feed) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close detaches every listener.
func (f *Feed) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[uint64]*subscription)
	f.closed = true
	f.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	f.cancel()
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *subscription) run(ctx context.Context) {
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		select {
		case <-s.stop:
			return
		default:
		}
		s.refresh(ctx)
	}
}

// ListenQuery attaches a query listener to feed that re-runs q against r on
// every notification for q's collection.
func ListenQuery(feed *Feed, r Reader, q Query, onSnapshot SnapshotFunc, onError ErrorFunc) Unsubscribe {
	var stopped atomic.Bool
	unsub := feed.Subscribe(q.Collection, func(ctx context.Context) {
		docs, err := r.Find(ctx, q)
		if stopped.Load() {
			return
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onSnapshot(docs)
	})
	return func() {
		stopped.Store(true)
		unsub()
	}
}

// ListenDocument is ListenQuery for a single document.
func ListenDocument(feed *Feed, r Reader, collection, id string, onSnapshot DocSnapshotFunc, onError ErrorFunc) Unsubscribe {
	var stopped atomic.Bool
	unsub := feed.Subscribe(collection, func(ctx context.Context) {
		doc, ok, err := r.Get(ctx, collection, id)
		if stopped.Load() {
			return
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onSnapshot(doc, ok)
	})
	return func() {
		stopped.Store(true)
		unsub()
	}
}
