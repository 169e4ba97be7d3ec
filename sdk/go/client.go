package taskboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskboard HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// UserID is sent as X-User-Id when no bearer token is set (dev servers only).
	UserID     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://localhost:8080/api.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type Subtask struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Task represents the API task model.
type Task struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Status       string            `json:"status"`
	Priority     string            `json:"priority"`
	Category     string            `json:"category"`
	DueDate      *string           `json:"dueDate,omitempty"`
	Tags         []string          `json:"tags"`
	Subtasks     []Subtask         `json:"subtasks"`
	Order        int               `json:"order"`
	Color        string            `json:"color"`
	CustomFields map[string]string `json:"customFields"`
	CreatedBy    UserRef           `json:"createdBy"`
	AssignedTo   UserRef           `json:"assignedTo"`
	CreatedAt    string            `json:"createdAt"`
	UpdatedAt    string            `json:"updatedAt"`
}

// NewTask is the create payload. Zero values take server defaults.
type NewTask struct {
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	Status       string            `json:"status,omitempty"`
	Priority     string            `json:"priority,omitempty"`
	Category     string            `json:"category,omitempty"`
	DueDate      string            `json:"dueDate,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Subtasks     []Subtask         `json:"subtasks,omitempty"`
	Order        int               `json:"order,omitempty"`
	Color        string            `json:"color,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
	AssignedTo   string            `json:"assignedTo"`
}

// TaskQuery filters ListTasks. Empty fields are omitted.
type TaskQuery struct {
	View     string
	Status   string
	Category string
	Priority string
	DueDate  string
	Search   string
}

type ReorderUpdate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Order  int    `json:"order"`
}

type ReorderResult struct {
	Message string   `json:"message"`
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped"`
}

type Notification struct {
	ID        string  `json:"id"`
	Recipient string  `json:"recipient"`
	Sender    UserRef `json:"sender"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Task      *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"task,omitempty"`
	Read      bool    `json:"read"`
	ReadAt    *string `json:"readAt,omitempty"`
	CreatedAt string  `json:"createdAt"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateUser registers a user.
func (c *Client) CreateUser(ctx context.Context, name, email string) (User, error) {
	var resp struct {
		User User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "users", map[string]any{"name": name, "email": email}, &resp)
	return resp.User, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var resp struct {
		User User `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "users/me", nil, &resp)
	return resp.User, err
}

// SearchUsers returns at most 10 matches; q shorter than 2 characters
// yields none.
func (c *Client) SearchUsers(ctx context.Context, q string) ([]User, error) {
	var resp struct {
		Users []User `json:"users"`
	}
	err := c.do(ctx, http.MethodGet, "users/search?q="+url.QueryEscape(q), nil, &resp)
	return resp.Users, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp struct {
		Task Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPost, "tasks", t, &resp)
	return resp.Task, err
}

// ListTasks returns the caller's board.
func (c *Client) ListTasks(ctx context.Context, q TaskQuery) ([]Task, error) {
	v := url.Values{}
	for key, val := range map[string]string{
		"view":     q.View,
		"status":   q.Status,
		"category": q.Category,
		"priority": q.Priority,
		"dueDate":  q.DueDate,
		"search":   q.Search,
	} {
		if val != "" {
			v.Set(key, val)
		}
	}
	endpoint := "tasks"
	if len(v) > 0 {
		endpoint += "?" + v.Encode()
	}
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Tasks, err
}

// UpdateTask sends a partial update; keys absent from fields are unchanged.
func (c *Client) UpdateTask(ctx context.Context, id string, fields map[string]any) (Task, error) {
	var resp struct {
		Task Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPut, "tasks/"+url.PathEscape(id), fields, &resp)
	return resp.Task, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ReorderTasks(ctx context.Context, updates []ReorderUpdate) (ReorderResult, error) {
	var resp ReorderResult
	err := c.do(ctx, http.MethodPut, "tasks/bulk/reorder", map[string]any{"updates": updates}, &resp)
	return resp, err
}

// Notifications returns the latest 50 notifications, newest first.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var resp struct {
		Notifications []Notification `json:"notifications"`
	}
	err := c.do(ctx, http.MethodGet, "notifications", nil, &resp)
	return resp.Notifications, err
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodGet, "notifications/unread-count", nil, &resp)
	return resp.Count, err
}

func (c *Client) MarkRead(ctx context.Context, id string) (Notification, error) {
	var resp struct {
		Notification Notification `json:"notification"`
	}
	err := c.do(ctx, http.MethodPut, "notifications/"+url.PathEscape(id)+"/read", nil, &resp)
	return resp.Notification, err
}

// MarkAllRead returns how many notifications changed.
func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	var resp struct {
		Updated int64 `json:"updated"`
	}
	err := c.do(ctx, http.MethodPut, "notifications/mark-all-read", nil, &resp)
	return resp.Updated, err
}

func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "notifications/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserID != "":
		req.Header.Set("X-User-Id", c.UserID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
