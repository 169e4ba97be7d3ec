package engine

import (
	"fmt"

	"taskboard/internal/domain"
)

// taskChange is what a notification rule sees for one task mutation.
type taskChange struct {
	Actor  domain.UserRef
	Before *domain.Task // nil on create
	After  domain.Task
}

// notice is a notification the task service decided to emit.
type notice struct {
	Type      domain.NotificationType
	Recipient string
	Title     string
	Message   string
}

// notifyRule is one row of the decision table. The first rule whose trigger
// matches is the only one considered; its recipient then decides whether
// anything is sent, because no one is notified about their own action.
type notifyRule struct {
	Name      string
	Type      domain.NotificationType
	Trigger   func(c taskChange) bool
	Recipient func(c taskChange) string
	Title     string
	Message   string // fmt layout taking actor name and task title
}

var createRules = []notifyRule{
	{
		Name:      "assigned",
		Type:      domain.NotificationTaskAssigned,
		Trigger:   func(taskChange) bool { return true },
		Recipient: func(c taskChange) string { return c.After.AssignedTo.ID },
		Title:     "New Task Assigned",
		Message:   "%s assigned you a new task: %q",
	},
}

// updateRules are ordered by priority: reassignment, completion, generic update.
var updateRules = []notifyRule{
	{
		Name:      "reassigned",
		Type:      domain.NotificationTaskAssigned,
		Trigger:   func(c taskChange) bool { return c.Before.AssignedTo.ID != c.After.AssignedTo.ID },
		Recipient: func(c taskChange) string { return c.After.AssignedTo.ID },
		Title:     "Task Reassigned",
		Message:   "%s assigned you a task: %q",
	},
	{
		Name: "completed",
		Type: domain.NotificationTaskCompleted,
		Trigger: func(c taskChange) bool {
			return c.Before.Status != domain.StatusDone && c.After.Status == domain.StatusDone
		},
		Recipient: func(c taskChange) string { return c.Before.CreatedBy.ID },
		Title:     "Task Completed",
		Message:   "%s completed the task: %q",
	},
	{
		Name:      "updated",
		Type:      domain.NotificationTaskUpdated,
		Trigger:   func(taskChange) bool { return true },
		Recipient: func(c taskChange) string { return c.Before.AssignedTo.ID },
		Title:     "Task Updated",
		Message:   "%s updated your task: %q",
	},
}

// decide evaluates rules in order and returns at most one notice.
func decide(rules []notifyRule, c taskChange) (notice, bool) {
	for _, r := range rules {
		if !r.Trigger(c) {
			continue
		}
		to := r.Recipient(c)
		if to == "" || to == c.Actor.ID {
			return notice{}, false
		}
		return notice{
			Type:      r.Type,
			Recipient: to,
			Title:     r.Title,
			Message:   fmt.Sprintf(r.Message, c.Actor.Name, c.After.Title),
		}, true
	}
	return notice{}, false
}

func overdueNotice(t domain.Task) notice {
	return notice{
		Type:      domain.NotificationTaskOverdue,
		Recipient: t.AssignedTo.ID,
		Title:     "Task Overdue",
		Message:   fmt.Sprintf("Task %q is past its due date", t.Title),
	}
}
