package providers

import (
	"context"
	"time"

	"lifelog/internal/core"
	"lifelog/internal/docstore"
)

const (
	fieldType        = "type"
	fieldTime        = "time"
	fieldDescription = "description"
)

type EventInput struct {
	Title       string
	Type        core.EventType
	Date        string
	Time        string
	Description string
}

type EventPatch struct {
	Title       *string
	Type        *core.EventType
	Date        *string
	Time        *string
	Description *string
}

// Events mirrors the user's calendar entries.
type Events struct {
	base

	events *Mirror[core.Event]
}

func NewEvents(store docstore.Store, opts Options) *Events {
	e := &Events{
		base:   newBase("events", store, opts),
		events: NewMirror(docstore.Events, func(e core.Event) string { return e.ID }),
	}
	e.reset = func() {
		e.events.Clear()
		e.metrics.MirrorCleared(docstore.Events)
	}
	return e
}

func (e *Events) Start(id core.Identity) error {
	return e.start(id, func(gen uint64, id core.Identity) []docstore.Unsubscribe {
		return []docstore.Unsubscribe{
			listen(&e.base, gen, docstore.Owned(docstore.Events, id.UID), e.events, eventFromDoc, sortEvents),
		}
	})
}

func (e *Events) Events() []core.Event {
	return e.events.Items()
}

func (e *Events) Version() uint64 {
	return e.events.Version()
}

// EventsForDate returns the events scheduled on day.
func (e *Events) EventsForDate(day string) []core.Event {
	var out []core.Event
	for _, ev := range e.events.Items() {
		if ev.Date == day {
			out = append(out, ev)
		}
	}
	return out
}

func (e *Events) AddEvent(ctx context.Context, in EventInput) (string, error) {
	ev := core.Event{Title: in.Title, Type: in.Type, Date: in.Date, Time: in.Time, Description: in.Description}
	if err := ev.Validate(); err != nil {
		return "", err
	}
	return addDoc(ctx, &e.base, e.events, docstore.Events, docstore.Fields{
		fieldTitle:       in.Title,
		fieldType:        string(in.Type),
		fieldDate:        in.Date,
		fieldTime:        in.Time,
		fieldDescription: in.Description,
		fieldCreatedAt:   docstore.ServerTimestamp,
	})
}

// UpdateEvent merges the non-nil fields of p. Each provided field is
// validated the way AddEvent validates it.
func (e *Events) UpdateEvent(ctx context.Context, id string, p EventPatch) error {
	fields := docstore.Fields{}
	if p.Title != nil {
		if *p.Title == "" {
			return core.ErrEmptyTitle
		}
		fields[fieldTitle] = *p.Title
	}
	if p.Type != nil {
		if !p.Type.Valid() {
			return core.ErrInvalidEventType
		}
		fields[fieldType] = string(*p.Type)
	}
	if p.Date != nil {
		if _, err := core.ParseDay(*p.Date); err != nil {
			return err
		}
		fields[fieldDate] = *p.Date
	}
	if p.Time != nil {
		fields[fieldTime] = *p.Time
	}
	if p.Description != nil {
		fields[fieldDescription] = *p.Description
	}
	return updateDoc(ctx, &e.base, e.events, docstore.Events, id, fields, func(ev core.Event) bool {
		return (p.Title == nil || ev.Title == *p.Title) &&
			(p.Type == nil || ev.Type == *p.Type) &&
			(p.Date == nil || ev.Date == *p.Date) &&
			(p.Time == nil || ev.Time == *p.Time) &&
			(p.Description == nil || ev.Description == *p.Description)
	})
}

func (e *Events) DeleteEvent(ctx context.Context, id string) error {
	return deleteDoc(ctx, &e.base, e.events, docstore.Events, id)
}

func eventFromDoc(d docstore.Document) core.Event {
	return core.Event{
		ID:          d.ID,
		Owner:       d.Fields.String(docstore.OwnerField),
		Title:       d.Fields.String(fieldTitle),
		Type:        core.EventType(d.Fields.String(fieldType)),
		Date:        d.Fields.String(fieldDate),
		Time:        d.Fields.String(fieldTime),
		Description: d.Fields.String(fieldDescription),
		CreatedAt:   d.Fields.Time(fieldCreatedAt),
	}
}

func sortEvents(items []core.Event) {
	core.SortByDateDesc(items, func(e core.Event) time.Time {
		d, _ := core.ParseDay(e.Date)
		return d
	})
}
