// Package events defines the change events the task service hands to the
// notification relay after a mutation has been committed.
package events

import (
	"context"
	"sync"

	"taskboard/internal/domain"
)

type Type string

const (
	TaskCreated      Type = "task-created"
	TaskUpdated      Type = "task-updated"
	TaskDeleted      Type = "task-deleted"
	NotificationSent Type = "notification-sent"
)

// Event carries either a task or a notification, depending on Type.
type Event struct {
	Type         Type
	Task         *domain.Task
	Notification *domain.Notification
}

func ForTask(t Type, task domain.Task) Event {
	return Event{Type: t, Task: &task}
}

func ForNotification(n domain.Notification) Event {
	return Event{Type: NotificationSent, Notification: &n}
}

// Publisher delivers events best-effort. Implementations must not block on
// slow subscribers.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of what has been published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters recorded events by type.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, evt := range r.Events() {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
