package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"taskboard/internal/domain"
	"taskboard/internal/repo"
)

const (
	searchMinChars = 2
	searchLimit    = 10
)

type UserCreateOptions struct {
	Name   string
	Email  string
	Avatar string
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	name := strings.TrimSpace(opts.Name)
	email := strings.ToLower(strings.TrimSpace(opts.Email))
	if name == "" {
		return domain.User{}, invalid("name", "name is required")
	}
	if email == "" {
		return domain.User{}, invalid("email", "email is required")
	}
	if at := strings.Index(email, "@"); at <= 0 || at == len(email)-1 {
		return domain.User{}, invalid("email", "email %q is not valid", opts.Email)
	}
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, invalid("email", "email already registered")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	u := domain.User{
		ID:        e.newID(),
		Name:      name,
		Email:     email,
		Avatar:    strings.TrimSpace(opts.Avatar),
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (e Engine) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, e.DB, id)
	if err != nil {
		return domain.User{}, hide(err)
	}
	return u, nil
}

// ListUsers returns every user other than the requester, by name.
func (e Engine) ListUsers(ctx context.Context, requesterID string) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx, requesterID)
}

// SearchUsers matches q against name or email. Queries shorter than two
// characters return an empty list without touching the store.
func (e Engine) SearchUsers(ctx context.Context, requesterID, q string) ([]domain.User, error) {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < searchMinChars {
		return []domain.User{}, nil
	}
	return e.Repo.SearchUsers(ctx, requesterID, q, searchLimit)
}
