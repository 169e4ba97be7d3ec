package repo

import (
	"context"
	"strings"

	"taskboard/internal/domain"
)

type userRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Email     string `db:"email"`
	Avatar    string `db:"avatar"`
	CreatedAt string `db:"created_at"`
}

func (u userRow) domain() domain.User {
	return domain.User{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar, CreatedAt: u.CreatedAt}
}

const userColumns = `id,name,email,avatar,created_at`

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	email := strings.ToLower(u.Email)
	_, err := exec(ctx, r.DB, `INSERT INTO users(id,name,email,avatar,name_fold,email_fold,created_at) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.Name, email, u.Avatar, domain.Fold(u.Name), domain.Fold(email), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, q Exec, id string) (domain.User, error) {
	var row userRow
	if err := get(ctx, q, &row, `SELECT `+userColumns+` FROM users WHERE id=?`, id); err != nil {
		return domain.User{}, err
	}
	return row.domain(), nil
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var row userRow
	if err := get(ctx, r.DB, &row, `SELECT `+userColumns+` FROM users WHERE email=?`, strings.ToLower(strings.TrimSpace(email))); err != nil {
		return domain.User{}, err
	}
	return row.domain(), nil
}

// ListUsers returns all users except exceptID ordered by name.
func (r Repo) ListUsers(ctx context.Context, exceptID string) ([]domain.User, error) {
	var rows []userRow
	if err := sel(ctx, r.DB, &rows, `SELECT `+userColumns+` FROM users WHERE id<>? ORDER BY name ASC, id ASC`, exceptID); err != nil {
		return nil, err
	}
	return mapUsers(rows), nil
}

// SearchUsers matches name or email by case-insensitive substring.
func (r Repo) SearchUsers(ctx context.Context, exceptID, q string, limit int) ([]domain.User, error) {
	pattern := likePattern(q)
	var rows []userRow
	err := sel(ctx, r.DB, &rows, `SELECT `+userColumns+` FROM users
WHERE id<>? AND (name_fold LIKE ? ESCAPE '\' OR email_fold LIKE ? ESCAPE '\')
ORDER BY name ASC, id ASC LIMIT ?`, exceptID, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	return mapUsers(rows), nil
}

func mapUsers(rows []userRow) []domain.User {
	res := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.domain())
	}
	return res
}
