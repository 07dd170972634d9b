// Package main is the operator CLI: migrations, admin bootstrap, maintenance and exports.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/config"
	"github.com/eventplanner/backend/internal/auth"
	"github.com/eventplanner/backend/internal/events"
	"github.com/eventplanner/backend/internal/invitations"
	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/internal/validation"
	"github.com/eventplanner/backend/pkg/database"
	"github.com/eventplanner/backend/pkg/queue"
	"github.com/eventplanner/backend/pkg/redis"
	"github.com/eventplanner/backend/pkg/utils"
)

func main() {
	app := &cli.App{
		Name:  "eventctl",
		Usage: "Operate the event planner backend.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Debug logging."},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			createAdminCommand(),
			purgeInvitationsCommand(),
			exportICSCommand(),
			queueStatsCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "eventctl:", err)
		os.Exit(1)
	}
}

type env struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// connect loads config and opens the database. Callers must call close.
func connect(c *cli.Context) (*env, func(), error) {
	logger := newLogger(c.Bool("verbose"))
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := database.NewPostgresPool(c.Context, cfg.Database.DSN(), 2, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		pool.Close()
		_ = logger.Sync()
	}
	return &env{cfg: cfg, pool: pool, logger: logger}, closeFn, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations.",
		Action: func(c *cli.Context) error {
			e, closeFn, err := connect(c)
			if err != nil {
				return err
			}
			defer closeFn()
			return database.Migrate(c.Context, e.pool, e.logger)
		},
	}
}

func createAdminCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-admin",
		Usage: "Create an admin account.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", EnvVars: []string{"ADMIN_PASSWORD"}, Required: true},
			&cli.StringFlag{Name: "first-name", Value: "Admin"},
			&cli.StringFlag{Name: "last-name", Value: "User"},
		},
		Action: func(c *cli.Context) error {
			email := validation.NormalizeEmail(c.String("email"))
			if !validation.IsValidEmail(email) {
				return fmt.Errorf("invalid email %q", c.String("email"))
			}
			if !validation.IsStrongPassword(c.String("password")) {
				return errors.New("password must be at least 8 characters with upper, lower, digit and special characters")
			}
			e, closeFn, err := connect(c)
			if err != nil {
				return err
			}
			defer closeFn()

			hash, err := utils.HashPassword(c.String("password"))
			if err != nil {
				return err
			}
			u, err := auth.NewRepository(e.pool).Create(c.Context, auth.CreateUserParams{
				Email:        email,
				PasswordHash: hash,
				FirstName:    c.String("first-name"),
				LastName:     c.String("last-name"),
				Role:         models.RoleAdmin,
			})
			if errors.Is(err, auth.ErrEmailTaken) {
				return fmt.Errorf("a user with email %s already exists", email)
			}
			if err != nil {
				return err
			}
			e.logger.Info("admin created", zap.String("user_id", u.ID.String()), zap.String("email", u.Email))
			return nil
		},
	}
}

func purgeInvitationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge-invitations",
		Usage: "Delete organization invitations that expired before a cutoff.",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "older-than", Value: 30 * 24 * time.Hour, Usage: "Keep invitations that expired within this window."},
		},
		Action: func(c *cli.Context) error {
			e, closeFn, err := connect(c)
			if err != nil {
				return err
			}
			defer closeFn()
			cutoff := time.Now().UTC().Add(-c.Duration("older-than"))
			n, err := invitations.NewRepository(e.pool).DeleteExpiredBefore(c.Context, cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "deleted %d invitation(s) expired before %s\n", n, cutoff.Format(time.RFC3339))
			return nil
		},
	}
}

func exportICSCommand() *cli.Command {
	return &cli.Command{
		Name:  "export-ics",
		Usage: "Write events as an iCalendar file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "org", Usage: "Only events of this organization id."},
			&cli.BoolFlag{Name: "public", Usage: "Only public events."},
			&cli.StringFlag{Name: "from", Usage: "Earliest date, YYYY-MM-DD."},
			&cli.StringFlag{Name: "to", Usage: "Latest date, YYYY-MM-DD."},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file; stdout when empty."},
		},
		Action: func(c *cli.Context) error {
			params := events.ListParams{Filter: events.FilterAll, DateFrom: c.String("from"), DateTo: c.String("to")}
			if c.Bool("public") {
				params.Filter = events.FilterPublic
			}
			if raw := c.String("org"); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid --org: %w", err)
				}
				if c.Bool("public") {
					return errors.New("--org and --public are exclusive")
				}
				params.Filter, params.OrgID = events.FilterMyOrg, &id
			}

			e, closeFn, err := connect(c)
			if err != nil {
				return err
			}
			defer closeFn()

			var w io.Writer = c.App.Writer
			if path := c.String("out"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := exportCalendar(c.Context, events.NewRepository(e.pool), params, w, e.cfg.App.Location(), time.Now())
			if err != nil {
				return err
			}
			e.logger.Info("calendar exported", zap.Int("events", n))
			return nil
		},
	}
}

func queueStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue-stats",
		Usage: "Show email queue and dead-letter queue lengths.",
		Action: func(c *cli.Context) error {
			logger := newLogger(c.Bool("verbose"))
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			rdb, err := redis.NewClient(c.Context, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
			if err != nil {
				return err
			}
			defer rdb.Close()
			q := queue.NewQueue(rdb, logger)
			for _, name := range []string{queue.QueueEmails, queue.QueueDLQ} {
				n, err := q.Len(c.Context, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%-16s %d\n", name, n)
			}
			return nil
		},
	}
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// eventLister is the part of the events repository the export pages through.
type eventLister interface {
	List(ctx context.Context, p events.ListParams) ([]models.EventView, int, error)
}

const exportPageSize = 100

// exportCalendar writes every event matching params as one calendar and returns the count.
func exportCalendar(ctx context.Context, store eventLister, params events.ListParams, w io.Writer, loc *time.Location, now time.Time) (int, error) {
	var all []models.EventView
	params.Limit, params.Offset = exportPageSize, 0
	for {
		page, total, err := store.List(ctx, params)
		if err != nil {
			return 0, err
		}
		all = append(all, page...)
		params.Offset += len(page)
		if len(page) == 0 || params.Offset >= total {
			break
		}
	}
	if err := events.WriteCalendar(w, all, loc, now); err != nil {
		return 0, fmt.Errorf("write calendar: %w", err)
	}
	return len(all), nil
}
