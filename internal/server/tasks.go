package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskboard/internal/engine"
)

func registerTasks(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks visible to the caller",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		View     string `query:"view" doc:"all, assigned or created"`
		Status   string `query:"status"`
		Category string `query:"category"`
		Priority string `query:"priority"`
		DueDate  string `query:"dueDate" doc:"YYYY-MM-DD"`
		Search   string `query:"search"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := h.eng.ListTasks(ctx, userID, engine.TaskListOptions{
			View:     input.View,
			Status:   input.Status,
			Category: input.Category,
			Priority: input.Priority,
			DueDate:  input.DueDate,
			Search:   input.Search,
		})
		if err != nil {
			return nil, h.fail(ctx, "list tasks", err)
		}
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{Success: true, Tasks: nonNil(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := h.eng.CreateTask(ctx, userID, input.Body.options())
		if err != nil {
			return nil, h.fail(ctx, "create task", err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: TaskResponse{Success: true, Task: task}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-tasks",
		Method:      http.MethodPut,
		Path:        "/tasks/bulk/reorder",
		Summary:     "Move tasks between columns and positions",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body ReorderRequest `json:"body"`
	}) (*struct {
		Body ReorderResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items := make([]engine.ReorderItem, 0, len(input.Body.Updates))
		for _, u := range input.Body.Updates {
			items = append(items, engine.ReorderItem{ID: u.ID, Status: u.Status, Order: u.Order})
		}
		res, err := h.eng.ReorderTasks(ctx, userID, items)
		if err != nil {
			return nil, h.fail(ctx, "reorder tasks", err)
		}
		return &struct {
			Body ReorderResponse `json:"body"`
		}{Body: ReorderResponse{
			Success: true,
			Message: "Tasks reordered successfully",
			Updated: nonNil(res.Updated),
			Skipped: nonNil(res.Skipped),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := h.eng.GetTask(ctx, userID, input.ID)
		if err != nil {
			return nil, h.fail(ctx, "get task", err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: TaskResponse{Success: true, Task: task}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		dueCleared := isNullRaw(rawBodyMap(ctx)["dueDate"])
		task, err := h.eng.UpdateTask(ctx, userID, input.ID, input.Body.options(dueCleared))
		if err != nil {
			return nil, h.fail(ctx, "update task", err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: TaskResponse{Success: true, Task: task}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task and its notifications",
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
		if err := h.eng.DeleteTask(ctx, userID, input.ID); err != nil {
			return nil, h.fail(ctx, "delete task", err)
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: MessageResponse{Success: true, Message: "Task deleted successfully"}}, nil
	})
}
