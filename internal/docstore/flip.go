package docstore

import (
	"context"
	"fmt"
)

// Flip deletes collection/id when the store holds it and creates it with
// fields otherwise. The existence check and the write run in one batch, so two
// concurrent flips of the same document always cancel out. It reports whether
// the document exists after the call.
func Flip(ctx context.Context, s Store, collection, id string, fields Fields) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}
	var exists bool
	err := s.Batch(ctx, func(tx Tx) error {
		_, found, err := tx.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		if found {
			exists = false
			return tx.Delete(collection, id)
		}
		exists = true
		return tx.Set(collection, id, fields, false)
	})
	if err != nil {
		return false, fmt.Errorf("flip %s/%s: %w", collection, id, err)
	}
	return exists, nil
}

// CollectIDs returns the ids of docs.
func CollectIDs(docs []Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}
