// Package autosave debounces note edits into store writes.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lifelog/internal/log"
)

const DefaultDelay = time.Second

// SaveFunc persists content.
type SaveFunc func(ctx context.Context, content string) error

// Status is the observable state of an Editor.
type Status struct {
	Saving    bool
	Dirty     bool
	LastSaved time.Time
	Err       error
}

// Describe renders the status line shown next to the editor.
func (s Status) Describe(now time.Time) string {
	if s.Saving {
		return "Saving..."
	}
	if s.LastSaved.IsZero() {
		return ""
	}
	secs := int(now.Sub(s.LastSaved) / time.Second)
	switch {
	case secs < 5:
		return "Saved just now"
	case secs < 60:
		return fmt.Sprintf("Saved %ds ago", secs)
	case secs < 3600:
		return fmt.Sprintf("Saved %dm ago", secs/60)
	default:
		return s.LastSaved.Format("15:04:05")
	}
}

type Option func(*Editor)

func WithDelay(d time.Duration) Option {
	return func(e *Editor) {
		if d > 0 {
			e.delay = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Editor) { e.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Editor) { e.logger = l }
}

// Editor owns at most one scheduled save. Each Type reschedules it; SaveNow
// and Close cancel it. Saves run one at a time and always write the content
// current when they start.
type Editor struct {
	save   SaveFunc
	delay  time.Duration
	now    func() time.Time
	logger *log.Logger

	saving sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	content string
	saved   string
	status  Status
	closed  bool
}

func New(save SaveFunc, opts ...Option) *Editor {
	e := &Editor{save: save, delay: DefaultDelay, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.OrDefault(log.ComponentAutosave)
	return e
}

// Load sets the content without scheduling a save.
func (e *Editor) Load(content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.content = content
	e.saved = content
	e.status.Dirty = false
}

func (e *Editor) Content() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.content
}

// Type records an edit and schedules a save after the delay, replacing any
// save scheduled earlier.
func (e *Editor) Type(content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.content = content
	e.status.Dirty = content != e.saved
	e.cancelLocked()
	e.scheduleLocked()
}

func (e *Editor) scheduleLocked() {
	seq := e.seq
	e.timer = time.AfterFunc(e.delay, func() { e.fire(seq) })
}

// SaveNow cancels any scheduled save and saves the current content.
func (e *Editor) SaveNow(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.cancelLocked()
	e.mu.Unlock()
	return e.run(ctx)
}

// Close cancels the scheduled save. Unsaved edits are dropped.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.cancelLocked()
}

// Pending reports whether a save is scheduled.
func (e *Editor) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timer != nil
}

func (e *Editor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// cancelLocked invalidates the scheduled save, including one whose timer has
// already fired but not yet taken the lock.
func (e *Editor) cancelLocked() {
	e.seq++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Editor) fire(seq uint64) {
	e.mu.Lock()
	if e.closed || seq != e.seq || e.content == e.saved {
		e.timer = nil
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.mu.Unlock()
	_ = e.run(context.Background())
}

// run saves the current content once any save in flight has finished.
func (e *Editor) run(ctx context.Context) error {
	e.saving.Lock()
	defer e.saving.Unlock()

	e.mu.Lock()
	content := e.content
	e.status.Saving = true
	e.mu.Unlock()

	err := e.save(ctx, content)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Saving = false
	e.status.Err = err
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to save note", log.FieldOperation, log.OpSave, log.FieldError, err)
		return fmt.Errorf("save note: %w", err)
	}
	e.saved = content
	e.status.LastSaved = e.now()
	e.status.Dirty = e.content != content
	// Edits made while saving still need a save of their own.
	switch {
	case e.status.Dirty && !e.closed && e.timer == nil:
		e.scheduleLocked()
	case !e.status.Dirty:
		e.cancelLocked()
	}
	return nil
}
