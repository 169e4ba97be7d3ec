package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"taskboard/internal/domain"
	"taskboard/internal/events"
	"taskboard/internal/repo"
)

var colorPattern = regexp.MustCompile(`^#(?:[0-9A-Fa-f]{3}|[0-9A-Fa-f]{6})$`)

// TaskListOptions mirrors the query string of the task list.
type TaskListOptions struct {
	View     string
	Status   string
	Category string
	Priority string
	DueDate  string
	Search   string
}

func (e Engine) ListTasks(ctx context.Context, requesterID string, opts TaskListOptions) ([]domain.Task, error) {
	f := repo.TaskFilters{UserID: requesterID, Search: strings.TrimSpace(opts.Search)}
	switch opts.View {
	case "", repo.ViewAll:
		f.View = repo.ViewAll
	case repo.ViewAssigned, repo.ViewCreated:
		f.View = opts.View
	default:
		return nil, invalid("view", "view must be one of all, assigned, created")
	}
	if opts.Status != "" && !domain.ValidStatus(opts.Status) {
		return nil, invalid("status", "unknown status %q", opts.Status)
	}
	if opts.Category != "" && !domain.ValidCategory(opts.Category) {
		return nil, invalid("category", "unknown category %q", opts.Category)
	}
	if opts.Priority != "" && !domain.ValidPriority(opts.Priority) {
		return nil, invalid("priority", "unknown priority %q", opts.Priority)
	}
	f.Status, f.Category, f.Priority = opts.Status, opts.Category, opts.Priority
	if opts.DueDate != "" {
		day, err := parseDueDate(opts.DueDate)
		if err != nil {
			return nil, invalid("dueDate", "%v", err)
		}
		f.DueFrom = domain.FormatTime(day)
		f.DueTo = domain.FormatTime(day.Add(24 * time.Hour))
	}
	return e.Repo.ListTasks(ctx, f)
}

func (e Engine) GetTask(ctx context.Context, requesterID, id string) (domain.Task, error) {
	t, err := e.Repo.GetAccessibleTask(ctx, e.DB, id, requesterID)
	if err != nil {
		return domain.Task{}, hide(err)
	}
	return t, nil
}

type TaskCreateOptions struct {
	Title        string
	Description  string
	Status       string
	Priority     string
	Category     string
	DueDate      string
	Tags         []string
	Subtasks     []domain.Subtask
	Order        int
	Color        string
	CustomFields map[string]string
	AssignedTo   string
}

// CreateTask stores a task created by requesterID and notifies the assignee
// when it is someone else.
func (e Engine) CreateTask(ctx context.Context, requesterID string, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, invalid("title", "task title is required")
	}
	if strings.TrimSpace(opts.AssignedTo) == "" {
		return domain.Task{}, invalid("assignedTo", "task must be assigned to someone")
	}
	now := e.stamp()
	t := domain.Task{
		ID:           e.newID(),
		Title:        title,
		Description:  opts.Description,
		Status:       domain.StatusTodo,
		Priority:     domain.PriorityMedium,
		Category:     domain.CategoryOther,
		Order:        opts.Order,
		Color:        domain.DefaultColor,
		CustomFields: map[string]string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if opts.Status != "" {
		if !domain.ValidStatus(opts.Status) {
			return domain.Task{}, invalid("status", "unknown status %q", opts.Status)
		}
		t.Status = domain.TaskStatus(opts.Status)
	}
	if opts.Priority != "" {
		if !domain.ValidPriority(opts.Priority) {
			return domain.Task{}, invalid("priority", "unknown priority %q", opts.Priority)
		}
		t.Priority = domain.Priority(opts.Priority)
	}
	if opts.Category != "" {
		if !domain.ValidCategory(opts.Category) {
			return domain.Task{}, invalid("category", "unknown category %q", opts.Category)
		}
		t.Category = domain.Category(opts.Category)
	}
	if opts.Color != "" {
		if !colorPattern.MatchString(opts.Color) {
			return domain.Task{}, invalid("color", "color must be a hex value like #1976D2")
		}
		t.Color = opts.Color
	}
	if opts.DueDate != "" {
		due, err := parseDueDate(opts.DueDate)
		if err != nil {
			return domain.Task{}, invalid("dueDate", "%v", err)
		}
		s := domain.FormatTime(due)
		t.DueDate = &s
	}
	t.Tags = normalizeTags(opts.Tags)
	subtasks, err := e.normalizeSubtasks(opts.Subtasks)
	if err != nil {
		return domain.Task{}, err
	}
	t.Subtasks = subtasks
	for k, v := range opts.CustomFields {
		t.CustomFields[k] = v
	}

	var created domain.Task
	var sent []domain.Notification
	err = e.Repo.InTx(ctx, func(tx *sqlx.Tx) error {
		actor, err := e.Repo.GetUser(ctx, tx, requesterID)
		if err != nil {
			return hide(err)
		}
		assignee, err := e.Repo.GetUser(ctx, tx, opts.AssignedTo)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return invalid("assignedTo", "assigned user not found")
			}
			return err
		}
		t.CreatedBy = userRef(actor)
		t.AssignedTo = userRef(assignee)
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		if created, err = e.Repo.GetTask(ctx, tx, t.ID); err != nil {
			return err
		}
		if n, ok := decide(createRules, taskChange{Actor: t.CreatedBy, After: created}); ok {
			note, err := e.insertNotice(ctx, tx, n, t.CreatedBy, created)
			if err != nil {
				return err
			}
			sent = append(sent, note)
		}
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.publish(ctx, events.ForTask(events.TaskCreated, created))
	e.publishNotifications(ctx, sent)
	return created, nil
}

// TaskUpdateOptions holds a partial update. Nil pointers, nil slices and nil
// maps leave the field unchanged; an empty DueDate clears it.
type TaskUpdateOptions struct {
	Title        *string
	Description  *string
	Status       *string
	Priority     *string
	Category     *string
	DueDate      *string
	Tags         []string
	Subtasks     []domain.Subtask
	Order        *int
	Color        *string
	CustomFields map[string]string
	AssignedTo   *string
}

// UpdateTask applies opts when requesterID is the assignee or the creator and
// emits at most one notification chosen by updateRules.
func (e Engine) UpdateTask(ctx context.Context, requesterID, id string, opts TaskUpdateOptions) (domain.Task, error) {
	var updated domain.Task
	var sent []domain.Notification
	err := e.Repo.InTx(ctx, func(tx *sqlx.Tx) error {
		before, err := e.Repo.GetAccessibleTask(ctx, tx, id, requesterID)
		if err != nil {
			return hide(err)
		}
		actor, err := e.Repo.GetUser(ctx, tx, requesterID)
		if err != nil {
			return hide(err)
		}
		after, err := e.applyUpdate(ctx, tx, before, opts)
		if err != nil {
			return err
		}
		after.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateTask(ctx, tx, after); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if updated, err = e.Repo.GetTask(ctx, tx, id); err != nil {
			return err
		}
		if n, ok := decide(updateRules, taskChange{Actor: userRef(actor), Before: &before, After: updated}); ok {
			note, err := e.insertNotice(ctx, tx, n, userRef(actor), updated)
			if err != nil {
				return err
			}
			sent = append(sent, note)
		}
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.publish(ctx, events.ForTask(events.TaskUpdated, updated))
	e.publishNotifications(ctx, sent)
	return updated, nil
}

func (e Engine) applyUpdate(ctx context.Context, tx *sqlx.Tx, before domain.Task, opts TaskUpdateOptions) (domain.Task, error) {
	t := before
	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title == "" {
			return t, invalid("title", "task title is required")
		}
		t.Title = title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Status != nil {
		if !domain.ValidStatus(*opts.Status) {
			return t, invalid("status", "unknown status %q", *opts.Status)
		}
		t.Status = domain.TaskStatus(*opts.Status)
	}
	if opts.Priority != nil {
		if !domain.ValidPriority(*opts.Priority) {
			return t, invalid("priority", "unknown priority %q", *opts.Priority)
		}
		t.Priority = domain.Priority(*opts.Priority)
	}
	if opts.Category != nil {
		if !domain.ValidCategory(*opts.Category) {
			return t, invalid("category", "unknown category %q", *opts.Category)
		}
		t.Category = domain.Category(*opts.Category)
	}
	if opts.DueDate != nil {
		if *opts.DueDate == "" {
			t.DueDate = nil
		} else {
			due, err := parseDueDate(*opts.DueDate)
			if err != nil {
				return t, invalid("dueDate", "%v", err)
			}
			s := domain.FormatTime(due)
			t.DueDate = &s
		}
	}
	if opts.Tags != nil {
		t.Tags = normalizeTags(opts.Tags)
	}
	if opts.Subtasks != nil {
		subtasks, err := e.normalizeSubtasks(opts.Subtasks)
		if err != nil {
			return t, err
		}
		t.Subtasks = subtasks
	}
	if opts.Order != nil {
		t.Order = *opts.Order
	}
	if opts.Color != nil {
		if !colorPattern.MatchString(*opts.Color) {
			return t, invalid("color", "color must be a hex value like #1976D2")
		}
		t.Color = *opts.Color
	}
	if opts.CustomFields != nil {
		t.CustomFields = opts.CustomFields
	}
	if opts.AssignedTo != nil && *opts.AssignedTo != "" && *opts.AssignedTo != before.AssignedTo.ID {
		assignee, err := e.Repo.GetUser(ctx, tx, *opts.AssignedTo)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return t, invalid("assignedTo", "assigned user not found")
			}
			return t, err
		}
		t.AssignedTo = userRef(assignee)
	}
	return t, nil
}

// DeleteTask removes the task and every notification that references it.
func (e Engine) DeleteTask(ctx context.Context, requesterID, id string) error {
	var deleted domain.Task
	err := e.Repo.InTx(ctx, func(tx *sqlx.Tx) error {
		t, err := e.Repo.GetAccessibleTask(ctx, tx, id, requesterID)
		if err != nil {
			return hide(err)
		}
		if _, err := e.Repo.DeleteTaskNotifications(ctx, tx, id); err != nil {
			return fmt.Errorf("delete task notifications: %w", err)
		}
		if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
			return hide(err)
		}
		deleted = t
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(ctx, events.ForTask(events.TaskDeleted, deleted))
	return nil
}

type ReorderItem struct {
	ID     string
	Status string
	Order  int
}

// ReorderResult lists which ids were written and which were outside the
// caller's access scope.
type ReorderResult struct {
	Updated []string
	Skipped []string
}

// ReorderTasks writes each (status, order) pair independently. Entries the
// requester may not access are skipped. There is no transaction over the
// batch; a store failure mid-way leaves earlier entries applied.
func (e Engine) ReorderTasks(ctx context.Context, requesterID string, items []ReorderItem) (ReorderResult, error) {
	res := ReorderResult{Updated: []string{}, Skipped: []string{}}
	for i, it := range items {
		if strings.TrimSpace(it.ID) == "" {
			return res, invalid(fmt.Sprintf("updates[%d].id", i), "id is required")
		}
		if !domain.ValidStatus(it.Status) {
			return res, invalid(fmt.Sprintf("updates[%d].status", i), "unknown status %q", it.Status)
		}
	}
	for _, it := range items {
		ok, err := e.Repo.ReorderTask(ctx, it.ID, requesterID, it.Status, it.Order, e.stamp())
		if err != nil {
			return res, fmt.Errorf("reorder task %s: %w", it.ID, err)
		}
		if !ok {
			res.Skipped = append(res.Skipped, it.ID)
			continue
		}
		res.Updated = append(res.Updated, it.ID)
		if t, err := e.Repo.GetTask(ctx, e.DB, it.ID); err == nil {
			e.publish(ctx, events.ForTask(events.TaskUpdated, t))
		}
	}
	return res, nil
}

func (e Engine) insertNotice(ctx context.Context, tx *sqlx.Tx, n notice, sender domain.UserRef, t domain.Task) (domain.Notification, error) {
	note := domain.Notification{
		ID:        e.newID(),
		Recipient: n.Recipient,
		Sender:    sender,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Task:      &domain.TaskRef{ID: t.ID, Title: t.Title},
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertNotification(ctx, tx, note); err != nil {
		return domain.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return note, nil
}

func (e Engine) publishNotifications(ctx context.Context, notes []domain.Notification) {
	for _, n := range notes {
		e.publish(ctx, events.ForNotification(n))
	}
}

func (e Engine) normalizeSubtasks(in []domain.Subtask) ([]domain.Subtask, error) {
	out := make([]domain.Subtask, 0, len(in))
	for i, st := range in {
		title := strings.TrimSpace(st.Title)
		if title == "" {
			return nil, invalid(fmt.Sprintf("subtasks[%d].title", i), "subtask title is required")
		}
		id := st.ID
		if id == "" {
			id = e.newID()
		}
		out = append(out, domain.Subtask{ID: id, Title: title, Completed: st.Completed})
	}
	return out, nil
}

// normalizeTags trims tags and drops blanks and duplicates, keeping first occurrence order.
func normalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, tag := range in {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// parseDueDate accepts a calendar day (2006-01-02) or an RFC 3339 instant.
func parseDueDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%q is not a date (YYYY-MM-DD) or RFC 3339 timestamp", v)
}

func userRef(u domain.User) domain.UserRef {
	return domain.UserRef{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar}
}
