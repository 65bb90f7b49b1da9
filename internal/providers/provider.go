// Package providers keeps live, per-identity mirrors of the user's
// collections and writes user actions through to the document store.
//
// Each provider has an explicit Start/Stop lifecycle. Start attaches one
// listener per collection filtered by the identity; Stop closes them and
// clears the mirrors. A generation counter, checked under the provider lock,
// discards snapshots from listeners of a previous identity, so once Stop
// returns nothing of the old identity can reappear.
//
// Mutations return once the store accepted the write. In WriteConfirmed mode
// they additionally wait, bounded by a timeout, until the local mirror
// reflects the write.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"lifelog/internal/core"
	"lifelog/internal/docstore"
	"lifelog/internal/log"
	"lifelog/internal/metrics"
)

var (
	ErrNoIdentity   = errors.New("no signed-in identity")
	ErrNotConfirmed = errors.New("write accepted but not yet reflected locally")
)

type WriteMode int

const (
	// WriteAccepted returns as soon as the store accepted the write.
	WriteAccepted WriteMode = iota
	// WriteConfirmed also waits for the mirror to show the write.
	WriteConfirmed
)

func (m WriteMode) String() string {
	if m == WriteConfirmed {
		return "confirmed"
	}
	return "accepted"
}

// ParseWriteMode accepts "accepted" and "confirmed".
func ParseWriteMode(s string) (WriteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "accepted":
		return WriteAccepted, nil
	case "confirmed":
		return WriteConfirmed, nil
	default:
		return WriteAccepted, fmt.Errorf("unknown write mode %q", s)
	}
}

const DefaultConfirmTimeout = 5 * time.Second

// Options are shared by every provider.
type Options struct {
	Mode           WriteMode
	ConfirmTimeout time.Duration
	Logger         *log.Logger
	Metrics        *metrics.Metrics
	// Now is the clock used for streaks and client-side timestamps.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = DefaultConfirmTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Provider is the lifecycle shared by every resource provider.
type Provider interface {
	Name() string
	Start(id core.Identity) error
	Stop()
	Identity() core.Identity
}

// IdentitySource is what Bind follows; session.Session implements it.
type IdentitySource interface {
	Current() core.Identity
	OnChange(func(prev, next core.Identity))
}

// Bind keeps ps attached to the identity of src. On every change all
// providers are stopped before any is started for the new identity.
func Bind(src IdentitySource, logger *log.Logger, ps ...Provider) {
	logger = logger.OrDefault(log.ComponentProviders)
	follow := func(next core.Identity) {
		for _, p := range ps {
			p.Stop()
		}
		if next.IsZero() {
			return
		}
		for _, p := range ps {
			if err := p.Start(next); err != nil {
				logger.Error("Failed to start provider", "provider", p.Name(), log.FieldUID, next.UID, log.FieldError, err)
			}
		}
	}
	src.OnChange(func(_, next core.Identity) { follow(next) })
	if cur := src.Current(); !cur.IsZero() {
		follow(cur)
	}
}

type base struct {
	name    string
	store   docstore.Store
	opts    Options
	logger  *log.Logger
	writes  *log.StructuredLogger
	metrics *metrics.Metrics

	mu       sync.Mutex
	identity core.Identity
	gen      uint64
	unsubs   []docstore.Unsubscribe
	reset    func()
}

func newBase(name string, store docstore.Store, opts Options) base {
	opts = opts.withDefaults()
	logger := opts.Logger.OrDefault(log.ComponentProviders).With("provider", name)
	return base{
		name:    name,
		store:   store,
		opts:    opts,
		logger:  logger,
		writes:  log.NewStructuredLogger(logger),
		metrics: opts.Metrics,
	}
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Identity() core.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identity
}

// start detaches any previous identity and runs attach for id.
func (b *base) start(id core.Identity, attach func(gen uint64, id core.Identity) []docstore.Unsubscribe) error {
	if id.IsZero() {
		return ErrNoIdentity
	}
	b.Stop()

	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.identity = id
	b.mu.Unlock()

	unsubs := attach(gen, id)

	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		for _, u := range unsubs {
			u()
		}
		return nil
	}
	b.unsubs = unsubs
	b.mu.Unlock()

	b.logger.Debug("Provider started", log.FieldUID, id.UID, log.FieldGeneration, gen)
	return nil
}

// Stop closes every listener and clears the mirrors.
func (b *base) Stop() {
	b.mu.Lock()
	b.gen++
	unsubs := b.unsubs
	b.unsubs = nil
	b.identity = core.Identity{}
	if b.reset != nil {
		b.reset()
	}
	b.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// apply runs fn if gen is still the current generation.
func (b *base) apply(gen uint64, collection string, fn func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		b.metrics.SnapshotDropped(collection)
		return false
	}
	fn()
	return true
}

func (b *base) onError(collection string) docstore.ErrorFunc {
	return func(err error) {
		b.metrics.ListenerError(collection)
		b.logger.Error("Listener error, keeping last snapshot",
			log.FieldCollection, collection,
			log.FieldOperation, log.OpListen,
			log.FieldError, err)
	}
}

func (b *base) owner() (string, error) {
	id := b.Identity()
	if id.IsZero() {
		return "", ErrNoIdentity
	}
	return id.UID, nil
}

// wrote records the outcome of a write and, in confirmed mode, waits for
// the mirror.
func (b *base) wrote(ctx context.Context, op, uid, collection, id string, err error, wait func(ctx context.Context) error) error {
	b.writes.LogWrite(ctx, op, uid, collection, id, err)
	if err != nil {
		b.metrics.Write(collection, op, metrics.OutcomeFailed)
		return fmt.Errorf("%s %s: %w", op, collection, err)
	}
	if b.opts.Mode != WriteConfirmed || wait == nil {
		b.metrics.Write(collection, op, metrics.OutcomeAccepted)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.ConfirmTimeout)
	defer cancel()
	if err := wait(ctx); err != nil {
		b.metrics.Write(collection, op, metrics.OutcomeTimeout)
		return fmt.Errorf("%w: %s %s/%s: %v", ErrNotConfirmed, op, collection, id, err)
	}
	b.metrics.Write(collection, op, metrics.OutcomeConfirmed)
	return nil
}

// listen attaches a query listener whose snapshots are converted with conv,
// sorted with sortFn and swapped into m.
func listen[T any](b *base, gen uint64, q docstore.Query, m *Mirror[T], conv func(docstore.Document) T, sortFn func([]T)) docstore.Unsubscribe {
	return b.store.Listen(q, func(docs []docstore.Document) {
		items := make([]T, 0, len(docs))
		for _, d := range docs {
			items = append(items, conv(d))
		}
		if sortFn != nil {
			sortFn(items)
		}
		b.apply(gen, q.Collection, func() {
			m.Replace(items)
			b.metrics.SnapshotApplied(q.Collection, len(items))
		})
	}, b.onError(q.Collection))
}

// addDoc creates a document stamped with the owner.
func addDoc[T any](ctx context.Context, b *base, m *Mirror[T], collection string, fields docstore.Fields) (string, error) {
	uid, err := b.owner()
	if err != nil {
		return "", err
	}
	fields[docstore.OwnerField] = uid
	id, err := b.store.Add(ctx, collection, fields)
	if err := b.wrote(ctx, log.OpCreate, uid, collection, id, err, func(ctx context.Context) error {
		return m.WaitFor(ctx, present[T](id))
	}); err != nil {
		return id, err
	}
	return id, nil
}

// updateDoc merges fields into an existing document. applied reports whether
// a mirrored item already shows the patch.
func updateDoc[T any](ctx context.Context, b *base, m *Mirror[T], collection, id string, fields docstore.Fields, applied func(T) bool) error {
	uid, err := b.owner()
	if err != nil {
		return err
	}
	if id == "" {
		return docstore.ErrEmptyID
	}
	if len(fields) == 0 {
		return nil
	}
	err = b.store.Update(ctx, collection, id, fields)
	return b.wrote(ctx, log.OpUpdate, uid, collection, id, err, func(ctx context.Context) error {
		return m.WaitFor(ctx, matching(id, applied))
	})
}

func deleteDoc[T any](ctx context.Context, b *base, m *Mirror[T], collection, id string) error {
	uid, err := b.owner()
	if err != nil {
		return err
	}
	if id == "" {
		return docstore.ErrEmptyID
	}
	err = b.store.Delete(ctx, collection, id)
	return b.wrote(ctx, log.OpDelete, uid, collection, id, err, func(ctx context.Context) error {
		return m.WaitFor(ctx, absent[T](id))
	})
}
