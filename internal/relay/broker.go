// Package relay pushes task and notification changes to the connected
// sessions of the users they concern. Each user has one channel, named by
// the user id; delivery is best-effort and at most once per session.
package relay

import (
	"context"
	"encoding/json"
)

const (
	TypeJoinUser         = "join-user"
	TypeJoined           = "joined"
	TypeError            = "error"
	TypeTaskCreated      = "task-created"
	TypeTaskUpdated      = "task-updated"
	TypeTaskDeleted      = "task-deleted"
	TypeNotificationSent = "notification-sent"
	TypeNewNotification  = "new-notification"
)

// Message is both the websocket frame and the unit carried by a Broker.
type Message struct {
	Type    string          `json:"type"`
	UserID  string          `json:"userId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	// Origin is the connection that produced a client-forwarded message.
	// That connection does not receive its own message back.
	Origin string `json:"origin,omitempty"`
}

// Broker is a publish/subscribe channel keyed by user id.
type Broker interface {
	// Publish must not block on slow subscribers.
	Publish(ctx context.Context, userID string, msg Message) error
	Subscribe(ctx context.Context, userID string) (Subscription, error)
	// Dropped counts messages discarded because a subscriber queue was full.
	Dropped() uint64
	Close() error
}

// Subscription receives messages for one user until closed.
type Subscription interface {
	C() <-chan Message
	Close() error
}
