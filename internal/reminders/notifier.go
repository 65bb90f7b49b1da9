// Package reminders schedules daily habit reminders and delivers them through
// a Notifier.
package reminders

import (
	"context"
	"sync"

	"lifelog/internal/log"
)

// Permission is the notification permission state. Denied is a state, not
// an error.
type Permission string

const (
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
	PermissionDefault     Permission = "default"
	PermissionUnsupported Permission = "unsupported"
)

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
}

// Notifier shows notifications to the user.
type Notifier interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Show(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. Permission is granted on the
// first request.
type LogNotifier struct {
	logger *log.Logger

	mu    sync.Mutex
	perm  Permission
	shown []Notification
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.OrDefault(log.ComponentReminders), perm: PermissionDefault}
}

func (n *LogNotifier) Permission() Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.perm
}

func (n *LogNotifier) RequestPermission(ctx context.Context) (Permission, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.perm == PermissionDefault {
		n.perm = PermissionGranted
	}
	return n.perm, nil
}

// Deny makes subsequent permission requests fail the way a user refusal does.
func (n *LogNotifier) Deny() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.perm = PermissionDenied
}

func (n *LogNotifier) Show(ctx context.Context, note Notification) error {
	n.mu.Lock()
	granted := n.perm == PermissionGranted
	if granted {
		n.shown = append(n.shown, note)
	}
	n.mu.Unlock()
	if !granted {
		return nil
	}
	n.logger.InfoContext(ctx, note.Title, "body", note.Body, "tag", note.Tag)
	return nil
}

// Shown returns the notifications delivered so far.
func (n *LogNotifier) Shown() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.shown...)
}
