// Package sqlite stores documents as JSON rows in a SQLite file.
//
// Equality queries run on json_extract, except owner queries which use the
// indexed owner column. Committed writes wake local listeners and, when a
// ChangePublisher is configured, are announced to other processes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"lifelog/internal/docstore"
	"lifelog/internal/log"
	"lifelog/internal/storage"
)

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Store struct {
	db        *sql.DB
	feed      *docstore.Feed
	publisher docstore.ChangePublisher
	origin    string
	now       func() time.Time
	logger    *log.Logger
}

type Option func(*Store)

// WithPublisher announces committed changes through p.
func WithPublisher(p docstore.ChangePublisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

var _ docstore.Store = (*Store)(nil)

// Open opens or creates the database at dbPath.
func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return New(db, opts...), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		feed:   docstore.NewFeed(),
		origin: uuid.NewString(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.OrDefault(log.ComponentDocstore)
	return s
}

// Origin identifies this store in published changes.
func (s *Store) Origin() string {
	return s.origin
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDoc(ctx context.Context, q querier, collection, id string) (docstore.Document, bool, error) {
	var data string
	err := q.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, false, nil
	}
	if err != nil {
		return docstore.Document{}, false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	fields, err := decode(data)
	if err != nil {
		return docstore.Document{}, false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return docstore.Document{ID: id, Fields: fields}, true, nil
}

func findDocs(ctx context.Context, q querier, query docstore.Query) ([]docstore.Document, error) {
	stmt := `SELECT id, data FROM documents WHERE collection = ?`
	args := []any{query.Collection}
	switch {
	case query.Field == "":
	case query.Field == docstore.OwnerField:
		owner, ok := query.Value.(string)
		if !ok {
			return nil, fmt.Errorf("owner query needs a string value: %w", docstore.ErrInvalidField)
		}
		stmt += ` AND owner = ?`
		args = append(args, owner)
	default:
		if !fieldName.MatchString(query.Field) {
			return nil, fmt.Errorf("%q: %w", query.Field, docstore.ErrInvalidField)
		}
		stmt += ` AND json_extract(data, '$.` + query.Field + `') = ?`
		args = append(args, query.Value)
	}
	stmt += ` ORDER BY rowid`

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", query.Collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", query.Collection, err)
		}
		fields, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", query.Collection, id, err)
		}
		if query.Matches(fields) {
			docs = append(docs, docstore.Document{ID: id, Fields: fields})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", query.Collection, err)
	}
	return docs, nil
}

func decode(data string) (docstore.Fields, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	fields := docstore.Fields{}
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, bool, error) {
	return getDoc(ctx, s.db, collection, id)
}

func (s *Store) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	return findDocs(ctx, s.db, q)
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

// Batch runs fn inside one SQL transaction.
func (s *Store) Batch(ctx context.Context, fn func(tx docstore.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tx := &txn{ctx: ctx, tx: sqlTx, now: s.now().UTC()}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.announce(ctx, tx.changes)
	return nil
}

func (s *Store) announce(ctx context.Context, changes []docstore.Change) {
	var collections []string
	for _, c := range changes {
		if !slices.Contains(collections, c.Collection) {
			collections = append(collections, c.Collection)
		}
	}
	for _, c := range collections {
		s.feed.Publish(c)
	}
	if s.publisher == nil {
		return
	}
	for _, c := range changes {
		c.Origin = s.origin
		if err := s.publisher.PublishChange(ctx, c); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish change",
				log.FieldCollection, c.Collection,
				log.FieldDocID, c.ID,
				log.FieldError, err)
		}
	}
}

func (s *Store) Listen(q docstore.Query, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) docstore.Unsubscribe {
	return docstore.ListenQuery(s.feed, s, q, onSnapshot, onError)
}

func (s *Store) ListenDoc(collection, id string, onSnapshot docstore.DocSnapshotFunc, onError docstore.ErrorFunc) docstore.Unsubscribe {
	return docstore.ListenDocument(s.feed, s, collection, id, onSnapshot, onError)
}

// Notify wakes local listeners of collection, typically after a change
// published by another process.
func (s *Store) Notify(collection string) {
	s.feed.Publish(collection)
}

func (s *Store) Listeners() int {
	return s.feed.Listeners()
}

func (s *Store) Close() error {
	s.feed.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type txn struct {
	ctx     context.Context
	tx      *sql.Tx
	now     time.Time
	changes []docstore.Change
}

func (t *txn) Get(ctx context.Context, collection, id string) (docstore.Document, bool, error) {
	return getDoc(ctx, t.tx, collection, id)
}

func (t *txn) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	return findDocs(ctx, t.tx, q)
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
		cur, ok, err := getDoc(t.ctx, t.tx, collection, id)
		if err != nil {
			return err
		}
		if ok {
			next = cur.Fields.Overlay(next)
		}
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO documents (collection, id, owner, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			owner = excluded.owner,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		collection, id, next.String(docstore.OwnerField), string(data), t.now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}
	t.changes = append(t.changes, docstore.Change{Collection: collection, ID: id, Op: docstore.OpSet})
	return nil
}

func (t *txn) Delete(collection, id string) error {
	if id == "" {
		return docstore.ErrEmptyID
	}
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	t.changes = append(t.changes, docstore.Change{Collection: collection, ID: id, Op: docstore.OpDelete})
	return nil
}
