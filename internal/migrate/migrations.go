package migrate

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"taskboard/internal/domain"
)

//go:embed sql/*.sql
var sqlFS embed.FS

// step is one schema version: its SQL plus an optional data backfill that
// runs in the same transaction.
type step struct {
	version  int
	name     string
	sql      string
	backfill func(ctx context.Context, tx *sqlx.Tx) error
}

var backfills = map[int]func(ctx context.Context, tx *sqlx.Tx) error{
	2: foldSearchColumns,
}

func steps() ([]step, error) {
	names, err := sqlFS.ReadDir("sql")
	if err != nil {
		return nil, err
	}
	out := make([]step, 0, len(names))
	for _, entry := range names {
		prefix, _, ok := strings.Cut(entry.Name(), "_")
		v, err := strconv.Atoi(prefix)
		if !ok || err != nil || v <= 0 {
			return nil, fmt.Errorf("migration %s: name must start with a positive version", entry.Name())
		}
		body, err := sqlFS.ReadFile(path.Join("sql", entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, step{version: v, name: entry.Name(), sql: string(body), backfill: backfills[v]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	for i := 1; i < len(out); i++ {
		if out[i].version == out[i-1].version {
			return nil, fmt.Errorf("migrations %s and %s share version %d", out[i-1].name, out[i].name, out[i].version)
		}
	}
	return out, nil
}

// Migrate applies every embedded version newer than the database's. Each
// version commits on its own together with its schema_version row.
func Migrate(db *sqlx.DB) error {
	all, err := steps()
	if err != nil {
		return err
	}
	return apply(context.Background(), db, all)
}

func apply(ctx context.Context, db *sqlx.DB, todo []step) error {
	current, err := Version(db)
	if err != nil {
		return err
	}
	for _, s := range todo {
		if s.version <= current {
			continue
		}
		if err := applyStep(ctx, db, s); err != nil {
			return fmt.Errorf("migration %s: %w", s.name, err)
		}
		current = s.version
	}
	return nil
}

func applyStep(ctx context.Context, db *sqlx.DB, s step) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, s.sql); err != nil {
		return err
	}
	if s.backfill != nil {
		if err := s.backfill(ctx, tx); err != nil {
			return fmt.Errorf("backfill: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_version(version,name,applied_at) VALUES (?,?,?)`),
		s.version, s.name, domain.FormatTime(time.Now()))
	if err != nil {
		return err
	}
	return tx.Commit()
}

var tableExistsQuery = map[string]string{
	"sqlite":   `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`,
	"postgres": `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema=current_schema() AND table_name='schema_version'`,
}

// Version reports the newest applied schema version, 0 for an empty database.
func Version(db *sqlx.DB) (int, error) {
	probe, ok := tableExistsQuery[db.DriverName()]
	if !ok {
		return 0, fmt.Errorf("unsupported driver %q", db.DriverName())
	}
	var n int
	if err := db.Get(&n, probe); err != nil {
		return 0, fmt.Errorf("look up schema_version: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	var v int
	if err := db.Get(&v, `SELECT COALESCE(MAX(version),0) FROM schema_version`); err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return v, nil
}

// foldSearchColumns fills the folded search columns for rows written before
// they existed. Folding happens in Go so every driver sees the same text.
func foldSearchColumns(ctx context.Context, tx *sqlx.Tx) error {
	var users []struct {
		ID    string `db:"id"`
		Name  string `db:"name"`
		Email string `db:"email"`
	}
	if err := tx.SelectContext(ctx, &users, `SELECT id,name,email FROM users`); err != nil {
		return err
	}
	for _, u := range users {
		_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET name_fold=?, email_fold=? WHERE id=?`),
			domain.Fold(u.Name), domain.Fold(u.Email), u.ID)
		if err != nil {
			return err
		}
	}
	var tasks []struct {
		ID          string `db:"id"`
		Title       string `db:"title"`
		Description string `db:"description"`
	}
	if err := tx.SelectContext(ctx, &tasks, `SELECT id,title,description FROM tasks`); err != nil {
		return err
	}
	for _, t := range tasks {
		_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tasks SET title_fold=?, description_fold=? WHERE id=?`),
			domain.Fold(t.Title), domain.Fold(t.Description), t.ID)
		if err != nil {
			return err
		}
	}
	return nil
}
