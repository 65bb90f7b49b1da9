// Package memory is an in-process docstore backend. Documents live in maps
// guarded by a mutex; listeners are served by a docstore.Feed.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"lifelog/internal/docstore"
)

type entry struct {
	fields docstore.Fields
	seq    uint64
}

type Store struct {
	mu     sync.RWMutex
	colls  map[string]map[string]entry
	seq    uint64
	closed bool

	now  func() time.Time
	feed *docstore.Feed
}

var _ docstore.Store = (*Store)(nil)

func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock builds a store that resolves ServerTimestamp with now.
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		colls: make(map[string]map[string]entry),
		now:   now,
		feed:  docstore.NewFeed(),
	}
}

func (s *Store) Get(_ context.Context, collection, id string) (docstore.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return docstore.Document{}, false, docstore.ErrStoreClosed
	}
	e, ok := s.colls[collection][id]
	if !ok {
		return docstore.Document{}, false, nil
	}
	return docstore.Document{ID: id, Fields: e.fields.Clone()}, true, nil
}

// Find returns matching documents in insertion order.
func (s *Store) Find(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, docstore.ErrStoreClosed
	}
	return find(s.colls[q.Collection], q), nil
}

func find(coll map[string]entry, q docstore.Query) []docstore.Document {
	type hit struct {
		doc docstore.Document
		seq uint64
	}
	hits := make([]hit, 0, len(coll))
	for id, e := range coll {
		if q.Matches(e.fields) {
			hits = append(hits, hit{docstore.Document{ID: id, Fields: e.fields.Clone()}, e.seq})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int { return cmp.Compare(a.seq, b.seq) })
	docs := make([]docstore.Document, len(hits))
	for i, h := range hits {
		docs[i] = h.doc
	}
	return docs
}

func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, fields, false); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields docstore.Fields, merge bool) error {
	return s.Batch(ctx, func(tx docstore.Tx) error {
		return tx.Set(collection, id, fields, merge)
	})
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	return s.Batch(ctx, func(tx docstore.Tx) error {
		_, ok, err := tx.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		if !ok {
			return docstore.ErrNotFound
		}
		return tx.Set(collection, id, fields, true)
	})
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.Batch(ctx, func(tx docstore.Tx) error {
		return tx.Delete(collection, id)
	})
}

// Batch applies every write of fn at once, or none when fn fails.
func (s *Store) Batch(ctx context.Context, fn func(tx docstore.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return docstore.ErrStoreClosed
	}
	tx := &txn{store: s, now: s.now(), pending: make(map[string]map[string]*docstore.Fields), order: make(map[string][]string)}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return err
	}
	touched := tx.commit()
	s.mu.Unlock()

	for _, c := range touched {
		s.feed.Publish(c)
	}
	return nil
}

func (s *Store) Listen(q docstore.Query, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) docstore.Unsubscribe {
	return docstore.ListenQuery(s.feed, s, q, onSnapshot, onError)
}

func (s *Store) ListenDoc(collection, id string, onSnapshot docstore.DocSnapshotFunc, onError docstore.ErrorFunc) docstore.Unsubscribe {
	return docstore.ListenDocument(s.feed, s, collection, id, onSnapshot, onError)
}

// Notify wakes the listeners of collection without a write.
func (s *Store) Notify(collection string) {
	s.feed.Publish(collection)
}

// Listeners reports how many listeners are attached.
func (s *Store) Listeners() int {
	return s.feed.Listeners()
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.feed.Close()
	return nil
}

// txn runs with the store's write lock held. A nil pending entry marks a
// delete.
type txn struct {
	store   *Store
	now     time.Time
	pending map[string]map[string]*docstore.Fields
	order   map[string][]string
}

func (t *txn) lookup(collection, id string) (docstore.Fields, bool) {
	if p, ok := t.pending[collection][id]; ok {
		if p == nil {
			return nil, false
		}
		return *p, true
	}
	e, ok := t.store.colls[collection][id]
	return e.fields, ok
}

func (t *txn) Get(_ context.Context, collection, id string) (docstore.Document, bool, error) {
	f, ok := t.lookup(collection, id)
	if !ok {
		return docstore.Document{}, false, nil
	}
	return docstore.Document{ID: id, Fields: f.Clone()}, true, nil
}

func (t *txn) Find(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
	base := find(t.store.colls[q.Collection], q)
	overlay := t.pending[q.Collection]
	if len(overlay) == 0 {
		return base, nil
	}
	docs := make([]docstore.Document, 0, len(base))
	for _, d := range base {
		if _, changed := overlay[d.ID]; !changed {
			docs = append(docs, d)
		}
	}
	for _, id := range t.order[q.Collection] {
		p := overlay[id]
		if p == nil || !q.Matches(*p) {
			continue
		}
		docs = append(docs, docstore.Document{ID: id, Fields: p.Clone()})
	}
	return docs, nil
}

func (t *txn) Set(collection, id string, fields docstore.Fields, merge bool) error {
	if collection == "" {
		return docstore.ErrEmptyCollName
	}
	if id == "" {
		return docstore.ErrEmptyID
	}
	next := fields.Resolve(t.now)
	if merge {
		if cur, ok := t.lookup(collection, id); ok {
			next = cur.Overlay(next)
		}
	}
	t.put(collection, id, &next)
	return nil
}

func (t *txn) Delete(collection, id string) error {
	if id == "" {
		return docstore.ErrEmptyID
	}
	t.put(collection, id, nil)
	return nil
}

func (t *txn) put(collection, id string, f *docstore.Fields) {
	coll, ok := t.pending[collection]
	if !ok {
		coll = make(map[string]*docstore.Fields)
		t.pending[collection] = coll
	}
	if _, seen := coll[id]; !seen {
		t.order[collection] = append(t.order[collection], id)
	}
	coll[id] = f
}

// commit applies the pending writes and returns the touched collections.
func (t *txn) commit() []string {
	s := t.store
	touched := make([]string, 0, len(t.pending))
	for collection, writes := range t.pending {
		coll, ok := s.colls[collection]
		if !ok {
			coll = make(map[string]entry)
			s.colls[collection] = coll
		}
		for _, id := range t.order[collection] {
			f := writes[id]
			if f == nil {
				delete(coll, id)
				continue
			}
			e, exists := coll[id]
			if !exists {
				s.seq++
				e.seq = s.seq
			}
			e.fields = *f
			coll[id] = e
		}
		touched = append(touched, collection)
	}
	slices.Sort(touched)
	return touched
}
