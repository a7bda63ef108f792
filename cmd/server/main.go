/*
main.go - Application entry point

PURPOSE:
  Starts the leave engine HTTP server and hosts the operational
  subcommands. Configuration comes from .env and the environment
  (config package); every subcommand shares the same logger and store.

COMMANDS:
  serve             Run the HTTP API (default store: SQLite)
  migrate           Apply PostgreSQL migrations
  holidays import   Expand a YAML holiday calendar into the store
  token             Issue a development JWT

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reminder scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the notifier, the rate limiter and the store

EXAMPLES:
  JWT_SECRET=dev ./server serve
  JWT_SECRET=dev DATABASE_DRIVER=postgres PGSQL_URL=postgres://... ./server migrate
  JWT_SECRET=dev ./server holidays import --file holidays.yaml --year 2026
  JWT_SECRET=dev ./server token --user admin-1 --role admin

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/logging"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/sqlite"
)

// App holds what every subcommand needs.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	ctx    context.Context
}

var (
	envFile string
	app     *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Leave engine - leave requests, balances and crew capacity",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil && app.logger != nil {
				app.logger.Sync()
			}
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file loaded before the environment")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(holidaysCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp loads configuration and installs the global logger.
func initApp() error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, logging.Format(cfg.LogFormat))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app = &App{cfg: cfg, logger: logger, ctx: context.Background()}
	app.logger.Debug("configuration loaded",
		zap.String("driver", cfg.DatabaseDriver),
		zap.String("week_mode", cfg.WeekMode),
		zap.String("minimum_stay", cfg.MinimumStay))
	return nil
}

// openStore connects the configured backend. The returned func closes it.
func (a *App) openStore() (leave.Store, func(), error) {
	switch a.cfg.DatabaseDriver {
	case config.DriverPostgres:
		s, err := postgres.New(a.ctx, a.cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := sqlite.New(a.cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				a.logger.Warn("failed to close database", zap.Error(err))
			}
		}, nil
	}
}

// newService builds the leave service over store with the configured rules.
func (a *App) newService(store leave.Store, opts ...leave.Option) (*leave.Service, error) {
	rules, err := a.cfg.Rules()
	if err != nil {
		return nil, err
	}
	opts = append(opts, leave.WithLogger(a.logger.Named("leave.service")))
	return leave.NewService(store, rules, opts...), nil
}
