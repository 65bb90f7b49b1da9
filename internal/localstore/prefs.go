package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

var ErrInvalidClock = errors.New("invalid time, expected HH:MM")

// ParseClock validates an HH:MM time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, ErrInvalidClock
	}
	return t.Hour(), t.Minute(), nil
}

// ReminderPrefs maps habit ids to HH:MM reminder times under one global key.
type ReminderPrefs struct {
	kv KV

	mu    sync.Mutex
	times map[string]string
}

func LoadReminderPrefs(ctx context.Context, kv KV) (*ReminderPrefs, error) {
	p := &ReminderPrefs{kv: kv, times: map[string]string{}}
	raw, ok, err := kv.Get(ctx, KeyHabitReminders)
	if err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.times); err != nil {
			p.times = map[string]string{}
		}
	}
	return p, nil
}

// All returns a copy of the habit id to time map.
func (p *ReminderPrefs) All() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.times)
}

func (p *ReminderPrefs) Get(habitID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.times[habitID]
	return v, ok
}

func (p *ReminderPrefs) Set(ctx context.Context, habitID, clock string) error {
	if _, _, err := ParseClock(clock); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	next := maps.Clone(p.times)
	next[habitID] = clock
	return p.persist(ctx, next)
}

func (p *ReminderPrefs) Remove(ctx context.Context, habitID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.times[habitID]; !ok {
		return nil
	}
	next := maps.Clone(p.times)
	delete(next, habitID)
	return p.persist(ctx, next)
}

func (p *ReminderPrefs) persist(ctx context.Context, next map[string]string) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode reminders: %w", err)
	}
	if err := p.kv.Set(ctx, KeyHabitReminders, string(raw)); err != nil {
		return fmt.Errorf("save reminders: %w", err)
	}
	p.times = next
	return nil
}
