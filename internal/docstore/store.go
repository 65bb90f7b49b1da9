// Package docstore defines the collection/document store the providers mirror.
//
// A store keeps documents (an id plus a field map) grouped in collections,
// answers equality queries, and pushes fresh snapshots to listeners whenever a
// watched collection changes. Backends live in the memory and sqlite
// subpackages.
package docstore

import (
	"context"
	"errors"
)

// Collection names used by lifelog.
const (
	Expenses        = "expenses"
	Incomes         = "incomes"
	UserPreferences = "userPreferences"
	Habits          = "habits"
	HabitLogs       = "habit_logs"
	Events          = "events"
	Notes           = "notes"
	Users           = "users"
)

// OwnerField is the field every user-scoped document is stamped with.
const OwnerField = "uid"

var (
	ErrNotFound      = errors.New("document not found")
	ErrEmptyID       = errors.New("empty document id")
	ErrInvalidField  = errors.New("invalid field name")
	ErrStoreClosed   = errors.New("store closed")
	ErrEmptyCollName = errors.New("empty collection name")
)

type serverTimestamp struct{}

// ServerTimestamp may be used as a field value; the store replaces it with
// the commit time.
var ServerTimestamp = serverTimestamp{}

type (
	// Document is one stored record.
	Document struct {
		ID     string
		Fields Fields
	}

	// Query selects documents of a collection, optionally where Field equals
	// Value. An empty Field selects the whole collection.
	Query struct {
		Collection string
		Field      string
		Value      any
	}

	// SnapshotFunc receives the full result set of a query each time it changes.
	SnapshotFunc func(docs []Document)

	// DocSnapshotFunc receives the current state of a single document.
	DocSnapshotFunc func(doc Document, exists bool)

	// ErrorFunc receives listener failures. The listener stays attached.
	ErrorFunc func(err error)

	// Unsubscribe detaches a listener. It is safe to call more than once.
	Unsubscribe func()
)

// Reader is the read side shared by stores and transactions.
type Reader interface {
	Get(ctx context.Context, collection, id string) (Document, bool, error)
	Find(ctx context.Context, q Query) ([]Document, error)
}

// Tx is the view handed to Batch callbacks. Writes become visible together
// when the callback returns nil, and are discarded otherwise.
type Tx interface {
	Reader
	Set(collection, id string, fields Fields, merge bool) error
	Delete(collection, id string) error
}

// Store is the remote document store port.
type Store interface {
	Reader

	// Add creates a document with a store-generated id.
	Add(ctx context.Context, collection string, fields Fields) (string, error)
	// Set creates or replaces a document; with merge it overlays an existing one.
	Set(ctx context.Context, collection, id string, fields Fields, merge bool) error
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Batch runs fn atomically. fn must read through tx, never through the
	// store itself.
	Batch(ctx context.Context, fn func(tx Tx) error) error

	// Listen pushes the result set of q now and after every change to its
	// collection. Snapshots for one listener arrive in commit order and a
	// delivered snapshot is never older than the previous one.
	Listen(q Query, onSnapshot SnapshotFunc, onError ErrorFunc) Unsubscribe
	// ListenDoc is Listen for a single document.
	ListenDoc(collection, id string, onSnapshot DocSnapshotFunc, onError ErrorFunc) Unsubscribe

	Close() error
}

// Where builds an equality query.
func Where(collection, field string, value any) Query {
	return Query{Collection: collection, Field: field, Value: value}
}

// All selects every document of a collection.
func All(collection string) Query {
	return Query{Collection: collection}
}

// Owned selects the documents of a collection stamped with owner.
func Owned(collection, owner string) Query {
	return Where(collection, OwnerField, owner)
}

// Matches reports whether fields satisfy the query condition.
func (q Query) Matches(fields Fields) bool {
	if q.Field == "" {
		return true
	}
	v, ok := fields[q.Field]
	if !ok {
		return false
	}
	return equalValue(v, q.Value)
}
