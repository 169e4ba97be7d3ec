package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"taskboard/internal/domain"
	"taskboard/internal/events"
	"taskboard/internal/repo"
)

// Engine is the task and notification service. It holds no board state of
// its own; every call reads and writes through Repo.
type Engine struct {
	DB     *sqlx.DB
	Repo   repo.Repo
	Events events.Publisher
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

func New(db *sqlx.DB, pub events.Publisher, logger *slog.Logger) Engine {
	if pub == nil {
		pub = events.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: pub,
		Logger: logger,
		Now:    time.Now,
		NewID:  func() string { return uuid.NewString() },
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return domain.FormatTime(e.now())
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// publish hands committed changes to the relay. Delivery is best-effort, so
// failures are logged and never surface to the caller.
func (e Engine) publish(ctx context.Context, evts ...events.Event) {
	if e.Events == nil {
		return
	}
	for _, evt := range evts {
		if err := e.Events.Publish(ctx, evt); err != nil {
			e.logger().Warn("publish event", "type", evt.Type, "err", err)
		}
	}
}
