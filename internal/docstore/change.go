package docstore

import "context"

// Change operations.
const (
	OpSet    = "set"
	OpDelete = "delete"
)

// Change describes one committed write. Backends shared between processes
// publish changes so that listeners elsewhere can refresh.
type Change struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Op         string `json:"op"`
	Origin     string `json:"origin"`
}

// ChangePublisher forwards committed changes to other processes.
type ChangePublisher interface {
	PublishChange(ctx context.Context, c Change) error
}

// Notifier wakes local listeners of a collection.
type Notifier interface {
	Notify(collection string)
}

// ApplyRemote wakes n for a change published by another process. Changes
// stamped with origin are ignored since they were already applied locally.
func ApplyRemote(n Notifier, origin string, c Change) bool {
	if c.Collection == "" || c.Origin == origin {
		return false
	}
	n.Notify(c.Collection)
	return true
}
