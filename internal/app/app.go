package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"

	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/engine"
	"taskboard/internal/migrate"
	"taskboard/internal/relay"
	"taskboard/internal/server"
)

// App holds the wired runtime: database, relay broker and engine.
type App struct {
	Config *config.Config
	DB     *sqlx.DB
	Broker relay.Broker
	Relay  *relay.Relay
	Engine engine.Engine
	Logger *slog.Logger
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// OpenDB opens and migrates the configured database.
func OpenDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	conn, err := db.Open(db.Config{Driver: cfg.Driver, DSN: cfg.DSN})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

// NewBroker returns the relay backend selected by cfg.
func NewBroker(ctx context.Context, cfg config.RelayConfig, logger *slog.Logger) (relay.Broker, error) {
	switch cfg.Backend {
	case "", "memory":
		return relay.NewHub(cfg.Buffer), nil
	case "redis":
		client, err := relay.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		return relay.NewRedisBroker(client, cfg.RedisPrefix, cfg.Buffer, logger), nil
	default:
		return nil, fmt.Errorf("unknown relay backend %q", cfg.Backend)
	}
}

// Open wires every component from cfg. Close releases them.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := OpenDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	broker, err := NewBroker(ctx, cfg.Relay, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	rl := relay.New(broker, logger)
	if origins := cfg.Server.CORSOrigins; len(origins) > 0 {
		rl.SetCheckOrigin(func(origin string) bool {
			return origin == "" || slices.Contains(origins, origin) || slices.Contains(origins, "*")
		})
	}
	logger.Debug("runtime wired", "db", cfg.Database.Driver, "relay", cfg.Relay.Backend)
	return &App{
		Config: cfg,
		DB:     conn,
		Broker: broker,
		Relay:  rl,
		Engine: engine.New(conn, rl, logger),
		Logger: logger,
	}, nil
}

// Handler builds the HTTP API for the app.
func (a *App) Handler() (http.Handler, error) {
	return server.New(server.Config{
		Engine:   a.Engine,
		Relay:    a.Relay,
		BasePath: a.Config.Server.BasePath,
		Auth: server.AuthConfig{
			JWTSecret:       a.Config.Auth.JWTSecret,
			AllowUserHeader: a.Config.Auth.AllowUserHeader,
			AllowDevLogin:   a.Config.Auth.AllowDevLogin,
		},
		CORSOrigins: a.Config.Server.CORSOrigins,
		Logger:      a.Logger,
	})
}

// Close releases the broker and database.
func (a *App) Close() error {
	if n := a.Broker.Dropped(); n > 0 {
		a.Logger.Warn("relay dropped messages for slow subscribers", "dropped", n)
	}
	return errors.Join(a.Broker.Close(), a.DB.Close())
}
