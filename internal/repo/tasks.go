package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"taskboard/internal/domain"
)

type taskRow struct {
	ID               string         `db:"id"`
	Title            string         `db:"title"`
	Description      string         `db:"description"`
	Status           string         `db:"status"`
	Priority         string         `db:"priority"`
	Category         string         `db:"category"`
	DueDate          sql.NullString `db:"due_date"`
	TagsJSON         string         `db:"tags_json"`
	SubtasksJSON     string         `db:"subtasks_json"`
	SortOrder        int            `db:"sort_order"`
	Color            string         `db:"color"`
	CustomFieldsJSON string         `db:"custom_fields_json"`
	CreatedBy        string         `db:"created_by"`
	CreatorName      string         `db:"creator_name"`
	CreatorEmail     string         `db:"creator_email"`
	CreatorAvatar    string         `db:"creator_avatar"`
	AssignedTo       string         `db:"assigned_to"`
	AssigneeName     string         `db:"assignee_name"`
	AssigneeEmail    string         `db:"assignee_email"`
	AssigneeAvatar   string         `db:"assignee_avatar"`
	CreatedAt        string         `db:"created_at"`
	UpdatedAt        string         `db:"updated_at"`
}

const taskSelect = `SELECT t.id,t.title,t.description,t.status,t.priority,t.category,t.due_date,
t.tags_json,t.subtasks_json,t.sort_order,t.color,t.custom_fields_json,
t.created_by,cu.name AS creator_name,cu.email AS creator_email,cu.avatar AS creator_avatar,
t.assigned_to,au.name AS assignee_name,au.email AS assignee_email,au.avatar AS assignee_avatar,
t.created_at,t.updated_at
FROM tasks t
JOIN users cu ON cu.id=t.created_by
JOIN users au ON au.id=t.assigned_to`

func (row taskRow) domain() (domain.Task, error) {
	t := domain.Task{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Status:      domain.TaskStatus(row.Status),
		Priority:    domain.Priority(row.Priority),
		Category:    domain.Category(row.Category),
		DueDate:     stringPtr(row.DueDate),
		Order:       row.SortOrder,
		Color:       row.Color,
		CreatedBy:   domain.UserRef{ID: row.CreatedBy, Name: row.CreatorName, Email: row.CreatorEmail, Avatar: row.CreatorAvatar},
		AssignedTo:  domain.UserRef{ID: row.AssignedTo, Name: row.AssigneeName, Email: row.AssigneeEmail, Avatar: row.AssigneeAvatar},
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.TagsJSON), &t.Tags); err != nil {
		return t, fmt.Errorf("task %s tags: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.SubtasksJSON), &t.Subtasks); err != nil {
		return t, fmt.Errorf("task %s subtasks: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.CustomFieldsJSON), &t.CustomFields); err != nil {
		return t, fmt.Errorf("task %s custom fields: %w", row.ID, err)
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Subtasks == nil {
		t.Subtasks = []domain.Subtask{}
	}
	if t.CustomFields == nil {
		t.CustomFields = map[string]string{}
	}
	return t, nil
}

type encodedTask struct {
	tags, subtasks, customFields string
}

func encodeTask(t domain.Task) (encodedTask, error) {
	var enc encodedTask
	var err error
	if enc.tags, err = marshalJSON(t.Tags, "[]"); err != nil {
		return enc, err
	}
	if enc.subtasks, err = marshalJSON(t.Subtasks, "[]"); err != nil {
		return enc, err
	}
	if enc.customFields, err = marshalJSON(t.CustomFields, "{}"); err != nil {
		return enc, err
	}
	return enc, nil
}

func (r Repo) InsertTask(ctx context.Context, q Exec, t domain.Task) error {
	enc, err := encodeTask(t)
	if err != nil {
		return err
	}
	_, err = exec(ctx, q, `INSERT INTO tasks(id,title,description,title_fold,description_fold,status,priority,category,due_date,tags_json,subtasks_json,sort_order,color,custom_fields_json,created_by,assigned_to,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, domain.Fold(t.Title), domain.Fold(t.Description),
		string(t.Status), string(t.Priority), string(t.Category), nullableStringPtr(t.DueDate),
		enc.tags, enc.subtasks, t.Order, t.Color, enc.customFields, t.CreatedBy.ID, t.AssignedTo.ID, t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTask overwrites every mutable column. Concurrent writers resolve last-write-wins.
func (r Repo) UpdateTask(ctx context.Context, q Exec, t domain.Task) error {
	enc, err := encodeTask(t)
	if err != nil {
		return err
	}
	n, err := exec(ctx, q, `UPDATE tasks SET title=?, description=?, title_fold=?, description_fold=?, status=?, priority=?, category=?, due_date=?, tags_json=?, subtasks_json=?, sort_order=?, color=?, custom_fields_json=?, assigned_to=?, updated_at=? WHERE id=?`,
		t.Title, t.Description, domain.Fold(t.Title), domain.Fold(t.Description), string(t.Status), string(t.Priority), string(t.Category), nullableStringPtr(t.DueDate),
		enc.tags, enc.subtasks, t.Order, t.Color, enc.customFields, t.AssignedTo.ID, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, q Exec, id string) (domain.Task, error) {
	var row taskRow
	if err := get(ctx, q, &row, taskSelect+` WHERE t.id=?`, id); err != nil {
		return domain.Task{}, err
	}
	return row.domain()
}

// GetAccessibleTask returns the task only when userID is its assignee or creator.
func (r Repo) GetAccessibleTask(ctx context.Context, q Exec, id, userID string) (domain.Task, error) {
	var row taskRow
	if err := get(ctx, q, &row, taskSelect+` WHERE t.id=? AND (t.assigned_to=? OR t.created_by=?)`, id, userID, userID); err != nil {
		return domain.Task{}, err
	}
	return row.domain()
}

const (
	ViewAll      = "all"
	ViewAssigned = "assigned"
	ViewCreated  = "created"
)

type TaskFilters struct {
	UserID   string
	View     string
	Status   string
	Category string
	Priority string
	// DueFrom/DueTo bound due_date as [DueFrom, DueTo).
	DueFrom string
	DueTo   string
	Search  string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	switch f.View {
	case ViewAssigned:
		clauses = append(clauses, "t.assigned_to=?")
		args = append(args, f.UserID)
	case ViewCreated:
		clauses = append(clauses, "t.created_by=?")
		args = append(args, f.UserID)
	default:
		clauses = append(clauses, "(t.assigned_to=? OR t.created_by=?)")
		args = append(args, f.UserID, f.UserID)
	}
	if f.Status != "" {
		clauses = append(clauses, "t.status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "t.category=?")
		args = append(args, f.Category)
	}
	if f.Priority != "" {
		clauses = append(clauses, "t.priority=?")
		args = append(args, f.Priority)
	}
	if f.DueFrom != "" && f.DueTo != "" {
		clauses = append(clauses, "t.due_date>=? AND t.due_date<?")
		args = append(args, f.DueFrom, f.DueTo)
	}
	if f.Search != "" {
		pattern := likePattern(f.Search)
		clauses = append(clauses, `(t.title_fold LIKE ? ESCAPE '\' OR t.description_fold LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	query := taskSelect + " WHERE " + strings.Join(clauses, " AND ") + " ORDER BY t.sort_order ASC, t.created_at DESC, t.id DESC"
	var rows []taskRow
	if err := sel(ctx, r.DB, &rows, query, args...); err != nil {
		return nil, err
	}
	return mapTasks(rows)
}

// ReorderTask sets status and order when userID may access the task.
// It reports whether a row was touched.
func (r Repo) ReorderTask(ctx context.Context, id, userID, status string, order int, now string) (bool, error) {
	n, err := exec(ctx, r.DB, `UPDATE tasks SET status=?, sort_order=?, updated_at=? WHERE id=? AND (assigned_to=? OR created_by=?)`,
		status, order, now, id, userID, userID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) DeleteTask(ctx context.Context, q Exec, id string) error {
	n, err := exec(ctx, q, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// OverdueTasks lists tasks due before now that are not done.
func (r Repo) OverdueTasks(ctx context.Context, now string) ([]domain.Task, error) {
	var rows []taskRow
	err := sel(ctx, r.DB, &rows, taskSelect+` WHERE t.due_date IS NOT NULL AND t.due_date<? AND t.status<>? ORDER BY t.due_date ASC, t.id ASC`,
		now, string(domain.StatusDone))
	if err != nil {
		return nil, err
	}
	return mapTasks(rows)
}

func mapTasks(rows []taskRow) ([]domain.Task, error) {
	res := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		t, err := row.domain()
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}
