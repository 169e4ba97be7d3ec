package repo

import (
	"context"
	"database/sql"

	"taskboard/internal/domain"
)

type notificationRow struct {
	ID           string         `db:"id"`
	RecipientID  string         `db:"recipient_id"`
	SenderID     string         `db:"sender_id"`
	SenderName   string         `db:"sender_name"`
	SenderEmail  string         `db:"sender_email"`
	SenderAvatar string         `db:"sender_avatar"`
	Type         string         `db:"type"`
	Title        string         `db:"title"`
	Message      string         `db:"message"`
	TaskID       sql.NullString `db:"task_id"`
	TaskTitle    sql.NullString `db:"task_title"`
	IsRead       int            `db:"is_read"`
	ReadAt       sql.NullString `db:"read_at"`
	CreatedAt    string         `db:"created_at"`
}

const notificationSelect = `SELECT n.id,n.recipient_id,n.sender_id,
s.name AS sender_name,s.email AS sender_email,s.avatar AS sender_avatar,
n.type,n.title,n.message,n.task_id,t.title AS task_title,n.is_read,n.read_at,n.created_at
FROM notifications n
JOIN users s ON s.id=n.sender_id
LEFT JOIN tasks t ON t.id=n.task_id`

func (row notificationRow) domain() domain.Notification {
	n := domain.Notification{
		ID:        row.ID,
		Recipient: row.RecipientID,
		Sender:    domain.UserRef{ID: row.SenderID, Name: row.SenderName, Email: row.SenderEmail, Avatar: row.SenderAvatar},
		Type:      domain.NotificationType(row.Type),
		Title:     row.Title,
		Message:   row.Message,
		Read:      row.IsRead != 0,
		ReadAt:    stringPtr(row.ReadAt),
		CreatedAt: row.CreatedAt,
	}
	if row.TaskID.Valid && row.TaskID.String != "" {
		n.Task = &domain.TaskRef{ID: row.TaskID.String, Title: row.TaskTitle.String}
	}
	return n
}

func (r Repo) InsertNotification(ctx context.Context, q Exec, n domain.Notification) error {
	var taskID any
	if n.Task != nil {
		taskID = nullable(n.Task.ID)
	}
	_, err := exec(ctx, q, `INSERT INTO notifications(id,recipient_id,sender_id,type,title,message,task_id,is_read,read_at,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.Recipient, n.Sender.ID, string(n.Type), n.Title, n.Message, taskID, boolInt(n.Read), nullableStringPtr(n.ReadAt), n.CreatedAt)
	return err
}

func (r Repo) GetNotification(ctx context.Context, q Exec, id string) (domain.Notification, error) {
	var row notificationRow
	if err := get(ctx, q, &row, notificationSelect+` WHERE n.id=?`, id); err != nil {
		return domain.Notification{}, err
	}
	return row.domain(), nil
}

// ListNotifications returns the newest notifications addressed to recipientID.
func (r Repo) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	var rows []notificationRow
	err := sel(ctx, r.DB, &rows, notificationSelect+` WHERE n.recipient_id=? ORDER BY n.created_at DESC, n.id DESC LIMIT ?`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Notification, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.domain())
	}
	return res, nil
}

// MarkNotificationRead flips an unread notification owned by recipientID.
// Already-read rows keep their read_at; the returned flag reports whether a row changed.
func (r Repo) MarkNotificationRead(ctx context.Context, q Exec, id, recipientID, readAt string) (bool, error) {
	n, err := exec(ctx, q, `UPDATE notifications SET is_read=1, read_at=? WHERE id=? AND recipient_id=? AND is_read=0`, readAt, id, recipientID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, recipientID, readAt string) (int64, error) {
	return exec(ctx, r.DB, `UPDATE notifications SET is_read=1, read_at=? WHERE recipient_id=? AND is_read=0`, readAt, recipientID)
}

func (r Repo) DeleteNotification(ctx context.Context, id, recipientID string) error {
	n, err := exec(ctx, r.DB, `DELETE FROM notifications WHERE id=? AND recipient_id=?`, id, recipientID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTaskNotifications removes every notification referencing taskID.
func (r Repo) DeleteTaskNotifications(ctx context.Context, q Exec, taskID string) (int64, error) {
	return exec(ctx, q, `DELETE FROM notifications WHERE task_id=?`, taskID)
}

func (r Repo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	if err := get(ctx, r.DB, &count, `SELECT COUNT(*) FROM notifications WHERE recipient_id=? AND is_read=0`, recipientID); err != nil {
		return 0, err
	}
	return count, nil
}

// HasNotification reports whether recipientID already has a notification of type for taskID.
func (r Repo) HasNotification(ctx context.Context, q Exec, recipientID, taskID string, typ domain.NotificationType) (bool, error) {
	var count int
	if err := get(ctx, q, &count, `SELECT COUNT(*) FROM notifications WHERE recipient_id=? AND task_id=? AND type=?`, recipientID, taskID, string(typ)); err != nil {
		return false, err
	}
	return count > 0, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
