package engine

import (
	"context"
	"errors"

	"taskboard/internal/domain"
	"taskboard/internal/repo"
)

// NotificationListLimit caps the feed returned by ListNotifications.
const NotificationListLimit = 50

func (e Engine) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	return e.Repo.ListNotifications(ctx, userID, NotificationListLimit)
}

// MarkNotificationRead marks one notification read. readAt is set on the first
// transition only; repeating the call returns the notification unchanged.
func (e Engine) MarkNotificationRead(ctx context.Context, userID, id string) (domain.Notification, error) {
	if _, err := e.Repo.MarkNotificationRead(ctx, e.DB, id, userID, e.stamp()); err != nil {
		return domain.Notification{}, err
	}
	n, err := e.Repo.GetNotification(ctx, e.DB, id)
	if err != nil {
		return domain.Notification{}, hide(err)
	}
	if n.Recipient != userID {
		return domain.Notification{}, ErrNotFoundOrForbidden
	}
	return n, nil
}

// MarkAllNotificationsRead returns how many notifications changed state.
func (e Engine) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	return e.Repo.MarkAllNotificationsRead(ctx, userID, e.stamp())
}

func (e Engine) DeleteNotification(ctx context.Context, userID, id string) error {
	if err := e.Repo.DeleteNotification(ctx, id, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFoundOrForbidden
		}
		return err
	}
	return nil
}

func (e Engine) UnreadCount(ctx context.Context, userID string) (int, error) {
	return e.Repo.CountUnread(ctx, userID)
}
