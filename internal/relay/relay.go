package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"taskboard/internal/events"
)

// Relay routes task and notification changes to user channels. It is the
// events.Publisher handed to the task service.
type Relay struct {
	broker   Broker
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(b Broker, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		broker: b,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// SetCheckOrigin overrides the websocket origin check.
func (r *Relay) SetCheckOrigin(fn func(origin string) bool) {
	if fn == nil {
		r.upgrader.CheckOrigin = nil
		return
	}
	r.upgrader.CheckOrigin = func(req *http.Request) bool {
		return fn(req.Header.Get("Origin"))
	}
}

// Publish implements events.Publisher. Task events go to the assignee and
// creator channels; notifications go to the recipient channel.
func (r *Relay) Publish(ctx context.Context, evt events.Event) error {
	switch evt.Type {
	case events.TaskCreated, events.TaskUpdated, events.TaskDeleted:
		if evt.Task == nil {
			return fmt.Errorf("relay: %s without task", evt.Type)
		}
		payload, err := json.Marshal(evt.Task)
		if err != nil {
			return err
		}
		msg := Message{Type: string(evt.Type), Payload: payload}
		return r.fanOut(ctx, msg, evt.Task.AssignedTo.ID, evt.Task.CreatedBy.ID)
	case events.NotificationSent:
		if evt.Notification == nil {
			return errors.New("relay: notification event without notification")
		}
		payload, err := json.Marshal(evt.Notification)
		if err != nil {
			return err
		}
		return r.fanOut(ctx, Message{Type: TypeNewNotification, Payload: payload}, evt.Notification.Recipient)
	default:
		return fmt.Errorf("relay: unknown event type %q", evt.Type)
	}
}

// fanOut publishes msg once per distinct non-empty user id.
func (r *Relay) fanOut(ctx context.Context, msg Message, userIDs ...string) error {
	seen := make(map[string]bool, len(userIDs))
	var errs []error
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := r.broker.Publish(ctx, id, msg); err != nil {
			errs = append(errs, fmt.Errorf("publish to %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// clientParties extracts routing ids from a client-forwarded payload. Ids may
// be given as plain strings or as objects carrying an "id" field.
type clientParties struct {
	AssignedTo json.RawMessage `json:"assignedTo"`
	CreatedBy  json.RawMessage `json:"createdBy"`
	Recipient  json.RawMessage `json:"recipient"`
	Sender     json.RawMessage `json:"sender"`
}

func refID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// forward relays a frame a client emitted. The caller must be named in the
// payload: as assignee or creator for tasks, as sender for notifications.
func (r *Relay) forward(ctx context.Context, origin, callerID string, in Message) error {
	var p clientParties
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	out := Message{Type: in.Type, Payload: in.Payload, Origin: origin}
	switch in.Type {
	case TypeTaskCreated, TypeTaskUpdated:
		assignee, creator := refID(p.AssignedTo), refID(p.CreatedBy)
		if callerID != assignee && callerID != creator {
			return errors.New("payload must name you as assignee or creator")
		}
		if in.Type == TypeTaskCreated {
			return r.fanOut(ctx, out, assignee)
		}
		return r.fanOut(ctx, out, assignee, creator)
	case TypeNotificationSent:
		if refID(p.Sender) != callerID {
			return errors.New("payload must name you as sender")
		}
		recipient := refID(p.Recipient)
		if recipient == "" {
			return errors.New("payload recipient is required")
		}
		out.Type = TypeNewNotification
		return r.fanOut(ctx, out, recipient)
	}
	return fmt.Errorf("unknown message type %q", in.Type)
}
