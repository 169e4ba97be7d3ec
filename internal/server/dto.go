package server

import (
	"taskboard/internal/domain"
	"taskboard/internal/engine"
)

// Request payloads

type SubtaskRequest struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title"`
	Completed bool   `json:"completed,omitempty"`
}

type CreateTaskRequest struct {
	_            struct{}          `json:"-" additionalProperties:"true"`
	Title        string            `json:"title,omitempty"`
	Description  string            `json:"description,omitempty"`
	Status       string            `json:"status,omitempty" enum:"todo,inprogress,done"`
	Priority     string            `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Category     string            `json:"category,omitempty" enum:"work,personal,shopping,health,education,other"`
	DueDate      string            `json:"dueDate,omitempty" doc:"YYYY-MM-DD or RFC 3339"`
	Tags         []string          `json:"tags,omitempty"`
	Subtasks     []SubtaskRequest  `json:"subtasks,omitempty"`
	Order        int               `json:"order,omitempty"`
	Color        string            `json:"color,omitempty" example:"#1976D2"`
	CustomFields map[string]string `json:"customFields,omitempty"`
	AssignedTo   string            `json:"assignedTo,omitempty" doc:"User id of the assignee"`
}

// UpdateTaskRequest is a partial update; absent fields are left unchanged.
// Clients may send the whole task back, so unknown fields are ignored.
type UpdateTaskRequest struct {
	_            struct{}          `json:"-" additionalProperties:"true"`
	Title        *string           `json:"title,omitempty"`
	Description  *string           `json:"description,omitempty"`
	Status       *string           `json:"status,omitempty" enum:"todo,inprogress,done"`
	Priority     *string           `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	Category     *string           `json:"category,omitempty" enum:"work,personal,shopping,health,education,other"`
	DueDate      *string           `json:"dueDate,omitempty" nullable:"true" doc:"YYYY-MM-DD, RFC 3339, or null/empty to clear"`
	Tags         []string          `json:"tags,omitempty"`
	Subtasks     []SubtaskRequest  `json:"subtasks,omitempty"`
	Order        *int              `json:"order,omitempty"`
	Color        *string           `json:"color,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
	AssignedTo   *string           `json:"assignedTo,omitempty"`
}

type ReorderItemRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Order  int    `json:"order"`
}

type ReorderRequest struct {
	Updates []ReorderItemRequest `json:"updates"`
}

type CreateUserRequest struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"userId"`
}

// Response payloads

type TaskResponse struct {
	Success bool        `json:"success"`
	Task    domain.Task `json:"task"`
}

type TaskListResponse struct {
	Success bool          `json:"success"`
	Tasks   []domain.Task `json:"tasks"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ReorderResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Updated []string `json:"updated"`
	Skipped []string `json:"skipped"`
}

type UserResponse struct {
	Success bool        `json:"success"`
	User    domain.User `json:"user"`
}

type UserListResponse struct {
	Success bool          `json:"success"`
	Users   []domain.User `json:"users"`
}

type NotificationResponse struct {
	Success      bool                `json:"success"`
	Notification domain.Notification `json:"notification"`
}

type NotificationListResponse struct {
	Success       bool                  `json:"success"`
	Notifications []domain.Notification `json:"notifications"`
}

type MarkAllReadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Updated int64  `json:"updated"`
}

type UnreadCountResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func (r CreateTaskRequest) options() engine.TaskCreateOptions {
	return engine.TaskCreateOptions{
		Title:        r.Title,
		Description:  r.Description,
		Status:       r.Status,
		Priority:     r.Priority,
		Category:     r.Category,
		DueDate:      r.DueDate,
		Tags:         r.Tags,
		Subtasks:     subtasks(r.Subtasks),
		Order:        r.Order,
		Color:        r.Color,
		CustomFields: r.CustomFields,
		AssignedTo:   r.AssignedTo,
	}
}

// options maps the request. dueCleared reports an explicit JSON null for dueDate.
func (r UpdateTaskRequest) options(dueCleared bool) engine.TaskUpdateOptions {
	opts := engine.TaskUpdateOptions{
		Title:        r.Title,
		Description:  r.Description,
		Status:       r.Status,
		Priority:     r.Priority,
		Category:     r.Category,
		DueDate:      r.DueDate,
		Tags:         r.Tags,
		Order:        r.Order,
		Color:        r.Color,
		CustomFields: r.CustomFields,
		AssignedTo:   r.AssignedTo,
	}
	if r.Subtasks != nil {
		opts.Subtasks = subtasks(r.Subtasks)
	}
	if dueCleared {
		empty := ""
		opts.DueDate = &empty
	}
	return opts
}

func subtasks(in []SubtaskRequest) []domain.Subtask {
	if in == nil {
		return nil
	}
	out := make([]domain.Subtask, 0, len(in))
	for _, st := range in {
		out = append(out, domain.Subtask{ID: st.ID, Title: st.Title, Completed: st.Completed})
	}
	return out
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
