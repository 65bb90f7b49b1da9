package amqp

import (
	"encoding/json"
	"time"

	"lifelog/internal/docstore"
)

// ChangeMessage announces a committed document write to the other lifelog
// processes sharing a store. It carries no document data; receivers re-read
// the collection.
type ChangeMessage struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Op         string    `json:"op"`
	Origin     string    `json:"origin"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewChangeMessage(c docstore.Change) *ChangeMessage {
	return &ChangeMessage{
		Collection: c.Collection,
		ID:         c.ID,
		Op:         c.Op,
		Origin:     c.Origin,
		Timestamp:  time.Now(),
	}
}

// Change converts the message back to a docstore change.
func (m *ChangeMessage) Change() docstore.Change {
	return docstore.Change{Collection: m.Collection, ID: m.ID, Op: m.Op, Origin: m.Origin}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
