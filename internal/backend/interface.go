// Package backend assembles the document store, the device key/value store
// and the optional change feed selected by configuration.
package backend

import (
	"context"

	"lifelog/internal/docstore"
	"lifelog/internal/localstore"
)

// Type selects the document store implementation.
type Type string

const (
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Config holds configuration for backend creation
type Config struct {
	Type Type

	SQLiteDBPath string
	// DeviceDBPath holds goals, reminder times and the session token. Empty
	// keeps them in memory.
	DeviceDBPath string

	AMQPURL      string
	AMQPExchange string
}

// ChangeFeed carries committed changes between processes.
type ChangeFeed interface {
	docstore.ChangePublisher
	ConsumeChanges(ctx context.Context, handler func(docstore.Change) error) error
	Close() error
}

// Result is an assembled backend. Cleanup releases everything it opened.
type Result struct {
	Store docstore.Store
	KV    localstore.KV
	Feed  ChangeFeed

	notifier docstore.Notifier
	origin   string
	closers  []func() error
}

// Factory creates backends based on configuration
type Factory interface {
	Create(ctx context.Context, cfg Config) (*Result, error)
}
