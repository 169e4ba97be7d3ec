package taskboardsdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"taskboard/internal/app"
	"taskboard/internal/config"
)

func newBoard(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "board.db")
	cfg.Auth.AllowUserHeader = true
	cfg.Server.CORSOrigins = nil
	a, err := app.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	h, err := a.Handler()
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL + "/api"
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	base := newBoard(t)

	anon := New(base)
	alice, err := anon.CreateUser(ctx, "Alice", "alice@example.com")
	require.NoError(t, err)
	bob, err := anon.CreateUser(ctx, "Bob", "bob@example.com")
	require.NoError(t, err)

	ac := New(base)
	ac.UserID = alice.ID
	bc := New(base)
	bc.UserID = bob.ID

	me, err := ac.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "Alice", me.Name)

	found, err := ac.SearchUsers(ctx, "bo")
	require.NoError(t, err)
	require.Len(t, found, 1)

	task, err := ac.CreateTask(ctx, NewTask{Title: "Plan sprint", AssignedTo: bob.ID, Tags: []string{"team"}})
	require.NoError(t, err)
	require.Equal(t, "todo", task.Status)
	require.Equal(t, bob.ID, task.AssignedTo.ID)

	n, err := bc.UnreadCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	updated, err := bc.UpdateTask(ctx, task.ID, map[string]any{"status": "done"})
	require.NoError(t, err)
	require.Equal(t, "done", updated.Status)

	notes, err := ac.Notifications(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "task_completed", notes[0].Type)
	read, err := ac.MarkRead(ctx, notes[0].ID)
	require.NoError(t, err)
	require.True(t, read.Read)

	tasks, err := bc.ListTasks(ctx, TaskQuery{View: "assigned", Status: "done"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	res, err := ac.ReorderTasks(ctx, []ReorderUpdate{{ID: task.ID, Status: "inprogress", Order: 2}})
	require.NoError(t, err)
	require.Equal(t, []string{task.ID}, res.Updated)

	changed, err := bc.MarkAllRead(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, changed)

	require.NoError(t, ac.DeleteTask(ctx, task.ID))
	err = ac.DeleteTask(ctx, task.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Equal(t, "not_found", apiErr.Code)
}

func TestClientUnauthenticated(t *testing.T) {
	_, err := New(newBoard(t)).Notifications(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
