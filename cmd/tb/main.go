package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskboard/internal/app"
	"taskboard/internal/config"
	"taskboard/internal/engine"
	"taskboard/internal/migrate"
	"taskboard/internal/server"
)

const shutdownTimeout = 15 * time.Second

var rootCmd = &cobra.Command{
	Use:   "tb",
	Short: "Taskboard server and admin CLI",
	Long: `Taskboard is a shared task board with per-user notifications.
- Users: the directory of people tasks can be assigned to.
- Tasks: cards on the board (todo, inprogress, done), visible to their creator and assignee.
- Notifications: messages created when a task is assigned, reassigned, updated, completed or overdue.
- Relay: pushes task changes and notifications to connected browsers over websockets.
Config lives in taskboard.yml; TASKBOARD_* environment variables (or a .env file) override it.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	viper.SetEnvPrefix("TASKBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("dir", "d", ".", "directory holding taskboard.yml")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (overrides --dir)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("dir", rootCmd.PersistentFlags().Lookup("dir"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(tokenCmd())
}

// loadConfig reads --config, or taskboard.yml under --dir (defaults when
// absent), then applies environment overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.LoadOptional(viper.GetString("dir"))
	}
	if err != nil {
		return nil, err
	}
	overrides := map[string]*string{
		"addr":         &cfg.Server.Addr,
		"base_path":    &cfg.Server.BasePath,
		"db_driver":    &cfg.Database.Driver,
		"db_dsn":       &cfg.Database.DSN,
		"jwt_secret":   &cfg.Auth.JWTSecret,
		"relay":        &cfg.Relay.Backend,
		"redis_addr":   &cfg.Relay.RedisAddr,
		"redis_prefix": &cfg.Relay.RedisPrefix,
		"log_level":    &cfg.Log.Level,
		"log_format":   &cfg.Log.Format,
	}
	for key, dst := range overrides {
		if v := viper.GetString(key); v != "" {
			*dst = v
		}
	}
	if viper.IsSet("allow_user_header") {
		cfg.Auth.AllowUserHeader = viper.GetBool("allow_user_header")
	}
	if viper.IsSet("allow_dev_login") {
		cfg.Auth.AllowDevLogin = viper.GetBool("allow_dev_login")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, cfg, app.NewLogger(cfg.Log, os.Stderr))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage taskboard.yml",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default taskboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("dir"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			redacted := *cfg
			if redacted.Auth.JWTSecret != "" {
				redacted.Auth.JWTSecret = "********"
			}
			return printJSON(redacted)
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and websocket relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowUserHeader {
				return fmt.Errorf("TASKBOARD_JWT_SECRET (or auth.jwt_secret) is required for bearer auth")
			}
			logger := app.NewLogger(cfg.Log, os.Stderr)
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			a, err := app.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			handler, err := a.Handler()
			if err != nil {
				a.Close()
				return err
			}
			if cfg.Overdue.Enabled {
				go a.Engine.RunOverdueLoop(ctx, cfg.Overdue.Interval)
			}

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			serveErr := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()
			logger.Info("serving taskboard API",
				"addr", cfg.Server.Addr,
				"base_path", cfg.Server.BasePath,
				"relay", cfg.Relay.Backend,
				"docs", "/docs",
			)

			wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, map[string]gfshutdown.Operation{
				"taskboard": func(ctx context.Context) error {
					cancel()
					// Drain HTTP before the database and broker go away.
					return errors.Join(srv.Shutdown(ctx), a.Close())
				},
			})
			if err := awaitShutdown(serveErr, wait); err != nil {
				if !errors.Is(err, errShutdown) {
					cancel()
					a.Close()
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("base-path", "", "API base path (overrides server.base_path)")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("base_path", cmd.Flags().Lookup("base-path"))
	return cmd
}

var errShutdown = errors.New("shutdown did not finish cleanly")

// awaitShutdown blocks until the listener fails or the shutdown operations
// have finished. A closed serveErr only means Shutdown has started draining.
func awaitShutdown(serveErr <-chan error, wait <-chan int) error {
	for {
		select {
		case err, ok := <-serveErr:
			if ok && err != nil {
				return err
			}
			serveErr = nil
		case code := <-wait:
			if code != 0 {
				return fmt.Errorf("%w: exit code %d", errShutdown, code)
			}
			return nil
		}
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := app.OpenDB(cfg.Database)
			if err != nil {
				return err
			}
			defer conn.Close()
			v, err := migrate.Version(conn)
			if err != nil {
				return err
			}
			fmt.Printf("schema version %d\n", v)
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage the user directory"}
	usr.AddCommand(userAddCmd())
	usr.AddCommand(userListCmd())
	return usr
}

func userAddCmd() *cobra.Command {
	var opts engine.UserCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Avatar, "avatar", "", "avatar URL")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := a.Engine.ListUsers(ctx, "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Created"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskCmd() *cobra.Command {
	tsk := &cobra.Command{Use: "task", Short: "Inspect tasks"}
	tsk.AddCommand(taskListCmd())
	return tsk
}

func taskListCmd() *cobra.Command {
	var userID string
	var opts engine.TaskListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks visible to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tasks, err := a.Engine.ListTasks(ctx, userID, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Assignee", "Due"})
				for _, t := range tasks {
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, t.AssignedTo.Name, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id whose board to list")
	cmd.Flags().StringVar(&opts.View, "view", "all", "all, assigned or created")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&opts.Search, "search", "", "title/description search")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func notifyCmd() *cobra.Command {
	ntf := &cobra.Command{Use: "notify", Short: "Notification maintenance"}
	ntf.AddCommand(&cobra.Command{
		Use:   "overdue",
		Short: "Notify assignees of overdue tasks once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				notes, err := a.Engine.SweepOverdue(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(notes)
				}
				fmt.Printf("created %d overdue notification(s)\n", len(notes))
				return nil
			})
		},
	})
	return ntf
}

func tokenCmd() *cobra.Command {
	var userID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Engine.GetUser(ctx, userID); err != nil {
					return fmt.Errorf("user %s: %w", userID, err)
				}
				token, err := server.SignToken(a.Config.Auth.JWTSecret, userID, ttl)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime; 0 for no expiry")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
