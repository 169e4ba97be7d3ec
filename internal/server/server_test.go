package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"taskboard/internal/db"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/migrate"
	"taskboard/internal/relay"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Driver: db.DriverSQLite, DSN: db.DefaultPath(t.TempDir())})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := relay.NewHub(16)
	rl := relay.New(hub, logger)
	e := engine.New(conn, rl, logger)
	handler, err := New(Config{
		Engine:   e,
		Relay:    rl,
		BasePath: "/api",
		Auth: AuthConfig{
			JWTSecret:       testSecret,
			AllowUserHeader: true,
			AllowDevLogin:   true,
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			hub.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func as(userID string) map[string]string { return map[string]string{headerUserID: userID} }

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func createUser(t *testing.T, srv *testServer, name, email string) domain.User {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/users", map[string]any{
		"name":  name,
		"email": email,
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	return decode[UserResponse](t, data).User
}

func createTask(t *testing.T, srv *testServer, creator string, body map[string]any) domain.Task {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/tasks", body, as(creator))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	return decode[TaskResponse](t, data).Task
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func TestHealthAndAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Equal(t, "unauthorized", decode[errorEnvelope](t, data).Error.Code)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks", nil, as("ghost"))
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks", nil, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(data), "bearerAuth")
}

func TestDevLoginToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	alice := createUser(t, srv, "Alice", "alice@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/dev/login", map[string]any{"userId": alice.ID}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	token := decode[DevLoginResponse](t, data).Token
	require.NotEmpty(t, token)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/users/me", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me := decode[UserResponse](t, data)
	require.True(t, me.Success)
	require.Equal(t, alice.ID, me.User.ID)
}

func TestUserDirectory(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	abner := createUser(t, srv, "Abner", "abner@example.com")
	createUser(t, srv, "Abby", "abby@example.com")
	createUser(t, srv, "Mark", "mark@other.org")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/users", map[string]any{
		"name":  "Dup",
		"email": "ABBY@example.com",
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/users", map[string]any{"email": "x@example.com"}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Equal(t, "name", decode[errorEnvelope](t, data).Error.Details["field"])

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/users", nil, as(abner.ID))
	require.Equal(t, http.StatusOK, res.StatusCode)
	users := decode[UserListResponse](t, data).Users
	require.Len(t, users, 2)
	require.Equal(t, "Abby", users[0].Name)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/users/search?q=ab", nil, as(abner.ID))
	require.Equal(t, http.StatusOK, res.StatusCode)
	found := decode[UserListResponse](t, data).Users
	require.Len(t, found, 1)
	require.Equal(t, "Abby", found[0].Name)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/users/search?q=a", nil, as(abner.ID))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(data), `"users":[]`)
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	alice := createUser(t, srv, "Alice", "alice@example.com")
	bob := createUser(t, srv, "Bob", "bob@example.com")
	carol := createUser(t, srv, "Carol", "carol@example.com")

	task := createTask(t, srv, alice.ID, map[string]any{
		"title":      "Write report",
		"priority":   "high",
		"dueDate":    "2030-05-01",
		"assignedTo": bob.ID,
		"tags":       []string{"q2"},
	})
	require.Equal(t, bob.ID, task.AssignedTo.ID)
	require.Equal(t, domain.PriorityHigh, task.Priority)
	require.NotNil(t, task.DueDate)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/notifications", nil, as(bob.ID))
	require.Equal(t, http.StatusOK, res.StatusCode)
	notes := decode[NotificationListResponse](t, data).Notifications
	require.Len(t, notes, 1)
	require.Equal(t, domain.NotificationTaskAssigned, notes[0].Type)
	require.Equal(t, alice.ID, notes[0].Sender.ID)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/notifications/unread-count", nil, as(bob.ID))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, 1, decode[UnreadCountResponse](t, data).Count)

	// A stranger cannot see or change the task.
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/tasks/"+task.ID, map[string]any{"title": "Hijacked"}, as(carol.ID))
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	require.Equal(t, "not_found", decode[errorEnvelope](t, data).Error.Code)
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks/"+task.ID, nil, as(carol.ID))
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/api/tasks/"+task.ID, nil, as(carol.ID))
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	// Assignee completes it and clears the due date; the creator hears about it.
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/tasks/"+task.ID, map[string]any{
		"status":  "done",
		"dueDate": nil,
	}, as(bob.ID))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	updated := decode[TaskResponse](t, data).Task
	require.Equal(t, domain.StatusDone, updated.Status)
	require.Nil(t, updated.DueDate)
	require.Equal(t, []string{"q2"}, updated.Tags)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/notifications", nil, as(alice.ID))
	require.Equal(t, http.StatusOK, res.StatusCode)
	notes = decode[NotificationListResponse](t, data).Notifications
	require.Len(t, notes, 1)
	require.Equal(t, domain.NotificationTaskCompleted, notes[0].Type)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks?view=assigned", nil, as(bob.ID))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, decode[TaskListResponse](t, data).Tasks, 1)
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks?view=created", nil, as(bob.ID))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(data), `"tasks":[]`)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks?status=blocked", nil, as(bob.ID))
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/api/tasks/"+task.ID, nil, as(alice.ID))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/notifications", nil, as(bob.ID))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Empty(t, decode[NotificationListResponse](t, data).Notifications)
}

func TestCreateTaskValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	alice := createUser(t, srv, "Alice", "alice@example.com")

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"assignedTo": alice.ID}},
		{"missing assignee", map[string]any{"title": "x"}},
		{"unknown assignee", map[string]any{"title": "x", "assignedTo": "nobody"}},
		{"bad priority", map[string]any{"title": "x", "assignedTo": alice.ID, "priority": "critical"}},
		{"bad color", map[string]any{"title": "x", "assignedTo": alice.ID, "color": "blue"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/tasks", tc.body, as(alice.ID))
			require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
			require.Equal(t, "bad_request", decode[errorEnvelope](t, data).Error.Code)
		})
	}
}

func TestReorderOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	alice := createUser(t, srv, "Alice", "alice@example.com")
	bob := createUser(t, srv, "Bob", "bob@example.com")
	mine := createTask(t, srv, alice.ID, map[string]any{"title": "Mine", "assignedTo": alice.ID})
	theirs := createTask(t, srv, bob.ID, map[string]any{"title": "Theirs", "assignedTo": bob.ID})

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/tasks/bulk/reorder", map[string]any{
		"updates": []map[string]any{
			{"id": mine.ID, "status": "inprogress", "order": 3},
			{"id": theirs.ID, "status": "done", "order": 0},
		},
	}, as(alice.ID))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	out := decode[ReorderResponse](t, data)
	require.Equal(t, []string{mine.ID}, out.Updated)
	require.Equal(t, []string{theirs.ID}, out.Skipped)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks/"+mine.ID, nil, as(alice.ID))
	require.Equal(t, http.StatusOK, res.StatusCode)
	got := decode[TaskResponse](t, data).Task
	require.Equal(t, domain.StatusInProgress, got.Status)
	require.Equal(t, 3, got.Order)

	res, _ = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/tasks/bulk/reorder", map[string]any{
		"updates": []map[string]any{{"id": mine.ID, "status": "archived", "order": 1}},
	}, as(alice.ID))
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestNotificationEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	alice := createUser(t, srv, "Alice", "alice@example.com")
	bob := createUser(t, srv, "Bob", "bob@example.com")
	createTask(t, srv, alice.ID, map[string]any{"title": "One", "assignedTo": bob.ID})
	createTask(t, srv, alice.ID, map[string]any{"title": "Two", "assignedTo": bob.ID})

	_, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/notifications", nil, as(bob.ID))
	notes := decode[NotificationListResponse](t, data).Notifications
	require.Len(t, notes, 2)
	require.Contains(t, notes[0].Title, "Assigned")

	res, _ := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/notifications/"+notes[0].ID+"/read", nil, as(alice.ID))
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/notifications/"+notes[0].ID+"/read", nil, as(bob.ID))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	read := decode[NotificationResponse](t, data).Notification
	require.True(t, read.Read)
	require.NotNil(t, read.ReadAt)

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/notifications/mark-all-read", nil, as(bob.ID))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.EqualValues(t, 1, decode[MarkAllReadResponse](t, data).Updated)

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/api/notifications/"+notes[1].ID, nil, as(alice.ID))
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/api/notifications/"+notes[1].ID, nil, as(bob.ID))
	require.Equal(t, http.StatusOK, res.StatusCode)

	_, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/notifications/unread-count", nil, as(bob.ID))
	require.Equal(t, 0, decode[UnreadCountResponse](t, data).Count)
}

func TestWebsocketReceivesTaskEvents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	alice := createUser(t, srv, "Alice", "alice@example.com")
	bob := createUser(t, srv, "Bob", "bob@example.com")
	token, err := SignToken(testSecret, bob.ID, time.Minute)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	readFrame := func() relay.Message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg relay.Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}
	require.NoError(t, conn.WriteJSON(relay.Message{Type: relay.TypeJoinUser, UserID: bob.ID}))
	require.Equal(t, relay.TypeJoined, readFrame().Type)

	task := createTask(t, srv, alice.ID, map[string]any{"title": "Live", "assignedTo": bob.ID})
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		msg := readFrame()
		seen[msg.Type] = true
		if msg.Type == relay.TypeTaskCreated {
			require.Contains(t, string(msg.Payload), task.ID)
		}
	}
	require.True(t, seen[relay.TypeTaskCreated])
	require.True(t, seen[relay.TypeNewNotification])
}
