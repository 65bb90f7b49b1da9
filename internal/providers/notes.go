package providers

import (
	"context"

	"lifelog/internal/core"
	"lifelog/internal/docstore"
	"lifelog/internal/log"
)

const (
	fieldContent   = "content"
	fieldUpdatedAt = "updatedAt"
)

var topics = []core.NoteTopic{core.TopicFinance, core.TopicHabits}

// Notes mirrors the user's free-text note for each topic.
type Notes struct {
	base

	notes map[core.NoteTopic]*Mirror[core.Note]
}

func NewNotes(store docstore.Store, opts Options) *Notes {
	n := &Notes{
		base:  newBase("notes", store, opts),
		notes: make(map[core.NoteTopic]*Mirror[core.Note], len(topics)),
	}
	for _, t := range topics {
		n.notes[t] = NewMirror(docstore.Notes, func(core.Note) string { return string(t) })
	}
	n.reset = func() {
		for _, m := range n.notes {
			m.Clear()
		}
		n.metrics.MirrorCleared(docstore.Notes)
	}
	return n
}

func (n *Notes) Start(id core.Identity) error {
	return n.start(id, func(gen uint64, id core.Identity) []docstore.Unsubscribe {
		unsubs := make([]docstore.Unsubscribe, 0, len(topics))
		for _, topic := range topics {
			m := n.notes[topic]
			unsubs = append(unsubs, n.store.ListenDoc(docstore.Notes, core.NoteID(id.UID, topic), func(doc docstore.Document, exists bool) {
				var items []core.Note
				if exists {
					items = []core.Note{noteFromDoc(doc, topic)}
				}
				n.apply(gen, docstore.Notes, func() {
					m.Replace(items)
				})
			}, n.onError(docstore.Notes)))
		}
		return unsubs
	})
}

// Note returns the content for topic, or "" when none was saved.
func (n *Notes) Note(topic core.NoteTopic) string {
	m, ok := n.notes[topic]
	if !ok {
		return ""
	}
	note, _ := m.Get(string(topic))
	return note.Content
}

// Save upserts the note for topic. The local value is updated as soon as the
// store accepts the write.
func (n *Notes) Save(ctx context.Context, topic core.NoteTopic, content string) error {
	if !topic.Valid() {
		return core.ErrInvalidTopic
	}
	id := n.Identity()
	if id.IsZero() {
		return ErrNoIdentity
	}

	docID := core.NoteID(id.UID, topic)
	now := n.opts.Now()
	err := n.store.Set(ctx, docstore.Notes, docID, docstore.Fields{
		fieldContent:        content,
		docstore.OwnerField: id.UID,
		fieldType:           string(topic),
		fieldUpdatedAt:      now,
	}, true)
	if err == nil {
		n.setLocal(id, core.Note{Owner: id.UID, Topic: topic, Content: content, UpdatedAt: now})
	}
	return n.wrote(ctx, log.OpSave, id.UID, docstore.Notes, docID, err, func(ctx context.Context) error {
		return n.notes[topic].WaitFor(ctx, matching(string(topic), func(note core.Note) bool {
			return note.Content == content
		}))
	})
}

// setLocal applies note unless the identity changed while saving.
func (n *Notes) setLocal(id core.Identity, note core.Note) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.identity != id {
		return
	}
	n.notes[note.Topic].Replace([]core.Note{note})
}

func noteFromDoc(d docstore.Document, topic core.NoteTopic) core.Note {
	return core.Note{
		Owner:     d.Fields.String(docstore.OwnerField),
		Topic:     topic,
		Content:   d.Fields.String(fieldContent),
		UpdatedAt: d.Fields.Time(fieldUpdatedAt),
	}
}
