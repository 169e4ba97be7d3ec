package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func registerNotifications(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Latest notifications for the caller",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body NotificationListResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		notes, err := h.eng.ListNotifications(ctx, userID)
		if err != nil {
			return nil, h.fail(ctx, "list notifications", err)
		}
		return &struct {
			Body NotificationListResponse `json:"body"`
		}{Body: NotificationListResponse{Success: true, Notifications: nonNil(notes)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unread-count",
		Method:      http.MethodGet,
		Path:        "/notifications/unread-count",
		Summary:     "Count unread notifications",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UnreadCountResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := h.eng.UnreadCount(ctx, userID)
		if err != nil {
			return nil, h.fail(ctx, "count notifications", err)
		}
		return &struct {
			Body UnreadCountResponse `json:"body"`
		}{Body: UnreadCountResponse{Success: true, Count: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-all-notifications-read",
		Method:      http.MethodPut,
		Path:        "/notifications/mark-all-read",
		Summary:     "Mark every notification read",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MarkAllReadResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := h.eng.MarkAllNotificationsRead(ctx, userID)
		if err != nil {
			return nil, h.fail(ctx, "mark notifications read", err)
		}
		return &struct {
			Body MarkAllReadResponse `json:"body"`
		}{Body: MarkAllReadResponse{Success: true, Message: "All notifications marked as read", Updated: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-notification-read",
		Method:      http.MethodPut,
		Path:        "/notifications/{id}/read",
		Summary:     "Mark one notification read",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body NotificationResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		note, err := h.eng.MarkNotificationRead(ctx, userID, input.ID)
		if err != nil {
			return nil, h.fail(ctx, "mark notification read", err)
		}
		return &struct {
			Body NotificationResponse `json:"body"`
		}{Body: NotificationResponse{Success: true, Notification: note}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-notification",
		Method:      http.MethodDelete,
		Path:        "/notifications/{id}",
		Summary:     "Delete notification",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MessageResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.eng.DeleteNotification(ctx, userID, input.ID); err != nil {
			return nil, h.fail(ctx, "delete notification", err)
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: MessageResponse{Success: true, Message: "Notification deleted"}}, nil
	})
}
