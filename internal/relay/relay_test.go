package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"taskboard/internal/domain"
	"taskboard/internal/events"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func receive(t *testing.T, sub Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func requireQuiet(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case msg := <-sub.C():
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDeliversPerUser(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(4)
	defer hub.Close()

	alice, err := hub.Subscribe(ctx, "alice")
	require.NoError(t, err)
	bob, err := hub.Subscribe(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, "alice", Message{Type: TypeTaskCreated}))
	require.Equal(t, TypeTaskCreated, receive(t, alice).Type)
	requireQuiet(t, bob)

	require.NoError(t, hub.Publish(ctx, "nobody", Message{Type: TypeTaskCreated}))
}

func TestHubDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(2)
	defer hub.Close()
	sub, err := hub.Subscribe(ctx, "alice")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, hub.Publish(ctx, "alice", Message{Type: TypeTaskUpdated}))
	}
	require.EqualValues(t, 3, hub.Dropped())
	receive(t, sub)
	receive(t, sub)
	requireQuiet(t, sub)
}

func TestHubUnsubscribe(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(1)
	sub, err := hub.Subscribe(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, hub.Subscribers("alice"))
	require.NoError(t, sub.Close())
	require.Equal(t, 0, hub.Subscribers("alice"))
	_, ok := <-sub.C()
	require.False(t, ok)

	require.NoError(t, hub.Close())
	require.ErrorIs(t, hub.Publish(ctx, "alice", Message{}), ErrClosed)
	_, err = hub.Subscribe(ctx, "alice")
	require.ErrorIs(t, err, ErrClosed)
}

func sampleTask() domain.Task {
	return domain.Task{
		ID:         "t1",
		Title:      "Write report",
		Status:     domain.StatusTodo,
		CreatedBy:  domain.UserRef{ID: "alice", Name: "Alice"},
		AssignedTo: domain.UserRef{ID: "bob", Name: "Bob"},
	}
}

func TestPublishRoutesTaskEvents(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(8)
	defer hub.Close()
	r := New(hub, quietLogger())

	alice, _ := hub.Subscribe(ctx, "alice")
	bob, _ := hub.Subscribe(ctx, "bob")
	carol, _ := hub.Subscribe(ctx, "carol")

	require.NoError(t, r.Publish(ctx, events.ForTask(events.TaskUpdated, sampleTask())))
	for _, sub := range []Subscription{alice, bob} {
		msg := receive(t, sub)
		require.Equal(t, TypeTaskUpdated, msg.Type)
		var got domain.Task
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		require.Equal(t, "t1", got.ID)
	}
	requireQuiet(t, carol)

	self := sampleTask()
	self.AssignedTo = self.CreatedBy
	require.NoError(t, r.Publish(ctx, events.ForTask(events.TaskDeleted, self)))
	require.Equal(t, TypeTaskDeleted, receive(t, alice).Type)
	requireQuiet(t, alice)
}

func TestPublishRoutesNotifications(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(8)
	defer hub.Close()
	r := New(hub, quietLogger())
	bob, _ := hub.Subscribe(ctx, "bob")
	alice, _ := hub.Subscribe(ctx, "alice")

	n := domain.Notification{ID: "n1", Recipient: "bob", Sender: domain.UserRef{ID: "alice"}, Type: domain.NotificationTaskAssigned}
	require.NoError(t, r.Publish(ctx, events.ForNotification(n)))
	msg := receive(t, bob)
	require.Equal(t, TypeNewNotification, msg.Type)
	require.Contains(t, string(msg.Payload), `"n1"`)
	requireQuiet(t, alice)

	require.Error(t, r.Publish(ctx, events.Event{Type: events.NotificationSent}))
}

func TestForwardRequiresCallerInPayload(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(8)
	defer hub.Close()
	r := New(hub, quietLogger())
	bob, _ := hub.Subscribe(ctx, "bob")

	payload := json.RawMessage(`{"id":"t1","assignedTo":{"id":"bob"},"createdBy":"alice"}`)
	require.NoError(t, r.forward(ctx, "conn-1", "alice", Message{Type: TypeTaskCreated, Payload: payload}))
	msg := receive(t, bob)
	require.Equal(t, TypeTaskCreated, msg.Type)
	require.Equal(t, "conn-1", msg.Origin)

	require.Error(t, r.forward(ctx, "conn-2", "mallory", Message{Type: TypeTaskUpdated, Payload: payload}))
	requireQuiet(t, bob)

	note := json.RawMessage(`{"recipient":"bob","sender":{"id":"alice"},"title":"hi"}`)
	require.NoError(t, r.forward(ctx, "conn-1", "alice", Message{Type: TypeNotificationSent, Payload: note}))
	require.Equal(t, TypeNewNotification, receive(t, bob).Type)
	require.Error(t, r.forward(ctx, "conn-1", "mallory", Message{Type: TypeNotificationSent, Payload: note}))
}

func dialWS(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebsocketSession(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()
	r := New(hub, quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.ServeWS(w, req, req.URL.Query().Get("user"))
	}))
	defer srv.Close()

	bob := dialWS(t, srv, "bob")
	require.NoError(t, bob.WriteJSON(Message{Type: TypeJoinUser, UserID: "alice"}))
	require.Equal(t, TypeError, readFrame(t, bob).Type)

	require.NoError(t, bob.WriteJSON(Message{Type: TypeJoinUser, UserID: "bob"}))
	joined := readFrame(t, bob)
	require.Equal(t, TypeJoined, joined.Type)
	require.Equal(t, "bob", joined.UserID)

	require.NoError(t, r.Publish(context.Background(), events.ForTask(events.TaskCreated, sampleTask())))
	msg := readFrame(t, bob)
	require.Equal(t, TypeTaskCreated, msg.Type)
	require.Empty(t, msg.Origin)

	// A client-forwarded update reaches the other party but not its sender.
	alice := dialWS(t, srv, "alice")
	require.NoError(t, alice.WriteJSON(Message{Type: TypeJoinUser, UserID: "alice"}))
	require.Equal(t, TypeJoined, readFrame(t, alice).Type)
	require.NoError(t, alice.WriteJSON(Message{
		Type:    TypeTaskUpdated,
		Payload: json.RawMessage(`{"id":"t1","assignedTo":"bob","createdBy":"alice"}`),
	}))
	require.Equal(t, TypeTaskUpdated, readFrame(t, bob).Type)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.Equal(t, TypeError, readFrame(t, alice).Type, "sender sees only the error, not its own update")
}
