package domain

import "time"

// TimeLayout is the fixed-width UTC layout used for every stored timestamp.
// Fixed width keeps lexical and chronological order identical.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "inprogress"
	StatusDone       TaskStatus = "done"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Category string

const (
	CategoryWork      Category = "work"
	CategoryPersonal  Category = "personal"
	CategoryShopping  Category = "shopping"
	CategoryHealth    Category = "health"
	CategoryEducation Category = "education"
	CategoryOther     Category = "other"
)

type NotificationType string

const (
	NotificationTaskAssigned  NotificationType = "task_assigned"
	NotificationTaskUpdated   NotificationType = "task_updated"
	NotificationTaskCompleted NotificationType = "task_completed"
	NotificationTaskOverdue   NotificationType = "task_overdue"
)

// DefaultColor is applied to tasks created without a color.
const DefaultColor = "#1976D2"

func ValidStatus(s string) bool {
	switch TaskStatus(s) {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

func ValidPriority(p string) bool {
	switch Priority(p) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func ValidCategory(c string) bool {
	switch Category(c) {
	case CategoryWork, CategoryPersonal, CategoryShopping, CategoryHealth, CategoryEducation, CategoryOther:
		return true
	}
	return false
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar,omitempty"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

// UserRef is the display identity embedded wherever a user is referenced.
type UserRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

type Subtask struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type Task struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Status       TaskStatus        `json:"status" enum:"todo,inprogress,done"`
	Priority     Priority          `json:"priority" enum:"low,medium,high,urgent"`
	Category     Category          `json:"category" enum:"work,personal,shopping,health,education,other"`
	DueDate      *string           `json:"dueDate,omitempty" format:"date-time"`
	Tags         []string          `json:"tags"`
	Subtasks     []Subtask         `json:"subtasks"`
	Order        int               `json:"order"`
	Color        string            `json:"color"`
	CustomFields map[string]string `json:"customFields"`
	CreatedBy    UserRef           `json:"createdBy"`
	AssignedTo   UserRef           `json:"assignedTo"`
	CreatedAt    string            `json:"createdAt" format:"date-time"`
	UpdatedAt    string            `json:"updatedAt" format:"date-time"`
}

// TaskRef is the expanded task reference carried by a notification.
type TaskRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Notification struct {
	ID        string           `json:"id"`
	Recipient string           `json:"recipient"`
	Sender    UserRef          `json:"sender"`
	Type      NotificationType `json:"type" enum:"task_assigned,task_updated,task_completed,task_overdue"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Task      *TaskRef         `json:"task,omitempty"`
	Read      bool             `json:"read"`
	ReadAt    *string          `json:"readAt,omitempty" format:"date-time"`
	CreatedAt string           `json:"createdAt" format:"date-time"`
}
