package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskboard/internal/engine"
)

func registerUsers(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register a user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		user, err := h.eng.CreateUser(ctx, engine.UserCreateOptions{
			Name:   input.Body.Name,
			Email:  input.Body.Email,
			Avatar: input.Body.Avatar,
		})
		if err != nil {
			return nil, h.fail(ctx, "create user", err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: UserResponse{Success: true, User: user}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List every other user",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserListResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		users, err := h.eng.ListUsers(ctx, userID)
		if err != nil {
			return nil, h.fail(ctx, "list users", err)
		}
		return &struct {
			Body UserListResponse `json:"body"`
		}{Body: UserListResponse{Success: true, Users: nonNil(users)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/users/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		user, err := h.eng.GetUser(ctx, userID)
		if err != nil {
			return nil, h.fail(ctx, "get user", err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: UserResponse{Success: true, User: user}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-users",
		Method:      http.MethodGet,
		Path:        "/users/search",
		Summary:     "Search users by name or email",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Q string `query:"q" doc:"At least 2 characters"`
	}) (*struct {
		Body UserListResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		users, err := h.eng.SearchUsers(ctx, userID, input.Q)
		if err != nil {
			return nil, h.fail(ctx, "search users", err)
		}
		return &struct {
			Body UserListResponse `json:"body"`
		}{Body: UserListResponse{Success: true, Users: nonNil(users)}}, nil
	})
}
