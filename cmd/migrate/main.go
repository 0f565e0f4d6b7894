package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/groupescapehouses/escape-backend/pkg/config"
	"github.com/groupescapehouses/escape-backend/pkg/db"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
	"github.com/groupescapehouses/escape-backend/pkg/migrate"
)

// migrator is the goose surface the commands drive.
type migrator interface {
	Run(ctx context.Context, command string, args ...string) error
	MigrateTo(ctx context.Context, version string) error
}

type connector func(ctx context.Context) (migrator, func() error, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	_ = godotenv.Load()

	var dir string
	root := newRootCmd(&dir, func(ctx context.Context) (migrator, func() error, error) {
		return connect(ctx, dir)
	}, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(dir *string, connect connector, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply and inspect goose schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(dir, "dir", migrate.DefaultDir, "goose migrations directory")

	withDB := func(fn func(cmd *cobra.Command, m migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()
			return fn(cmd, m, args)
		}
	}
	gooseCmd := func(use, short string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, m migrator, _ []string) error {
				return m.Run(cmd.Context(), use)
			}),
		}
	}

	root.AddCommand(
		gooseCmd("up", "Apply every pending migration"),
		gooseCmd("down", "Roll back the most recent migration"),
		gooseCmd("status", "Print applied and pending migrations"),
		&cobra.Command{
			Use:   "to <version>",
			Short: "Migrate up or down to an exact YYYYMMDDHHMMSS version",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(cmd *cobra.Command, m migrator, args []string) error {
				return m.MigrateTo(cmd.Context(), args[0])
			}),
		},
		&cobra.Command{
			Use:   "create <name>",
			Short: "Write an empty timestamped SQL migration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := migrate.CreateSQLMigration(*dir, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check migration filenames and goose annotations without a database",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := migrate.ValidateDir(*dir); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations valid")
				return nil
			},
		},
	)
	return root
}

type gooseMigrator struct {
	sqlDB *sql.DB
	dir   string
}

func (g gooseMigrator) Run(ctx context.Context, command string, args ...string) error {
	return migrate.Run(ctx, g.sqlDB, g.dir, command, args...)
}

func (g gooseMigrator) MigrateTo(ctx context.Context, version string) error {
	return migrate.MigrateToVersion(ctx, g.sqlDB, g.dir, version)
}

func connect(ctx context.Context, dir string) (migrator, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		_ = dbClient.Close()
		return nil, nil, fmt.Errorf("sql handle: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": dir}), "migrate ready")
	return gooseMigrator{sqlDB: sqlDB, dir: dir}, dbClient.Close, nil
}
