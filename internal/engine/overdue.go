package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"taskboard/internal/domain"
)

// SweepOverdue creates one task_overdue notification for each task that is
// past due, not done, and whose current assignee has not been told yet. The
// task creator is the sender. It returns the notifications created.
func (e Engine) SweepOverdue(ctx context.Context) ([]domain.Notification, error) {
	tasks, err := e.Repo.OverdueTasks(ctx, e.stamp())
	if err != nil {
		return nil, fmt.Errorf("list overdue tasks: %w", err)
	}
	var sent []domain.Notification
	for _, t := range tasks {
		n := overdueNotice(t)
		var note domain.Notification
		created := false
		err := e.Repo.InTx(ctx, func(tx *sqlx.Tx) error {
			exists, err := e.Repo.HasNotification(ctx, tx, n.Recipient, t.ID, domain.NotificationTaskOverdue)
			if err != nil || exists {
				return err
			}
			note, err = e.insertNotice(ctx, tx, n, t.CreatedBy, t)
			created = err == nil
			return err
		})
		if err != nil {
			// Earlier notices are committed; deliver them before giving up.
			e.publishNotifications(ctx, sent)
			return sent, fmt.Errorf("overdue notification for task %s: %w", t.ID, err)
		}
		if created {
			sent = append(sent, note)
		}
	}
	e.publishNotifications(ctx, sent)
	return sent, nil
}

// RunOverdueLoop sweeps every interval until ctx is cancelled.
func (e Engine) RunOverdueLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent, err := e.SweepOverdue(ctx)
			if err != nil {
				e.logger().Error("overdue sweep", "err", err)
				continue
			}
			if len(sent) > 0 {
				e.logger().Info("overdue sweep", "notified", len(sent))
			}
		}
	}
}
