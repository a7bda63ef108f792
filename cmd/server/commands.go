package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/ratelimit"
	"github.com/warp/leave-engine/store/postgres"
)

// cliActor is the identity used by operator commands.
var cliActor = leave.Actor{UserID: "cli", Role: leave.RoleAdmin}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(app)
		},
	}
}

func serve(a *App) error {
	cfg := a.cfg
	logger := a.logger

	store, closeStore, err := a.openStore()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeStore()

	// Events go to the log, and to Kafka when brokers are configured
	var notifier leave.Notifier = notify.NewLogNotifier(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafka := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer kafka.Close()
		notifier = notify.Fanout{notifier, kafka}
		logger.Info("publishing leave events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic))
	}

	svc, err := a.newService(store, leave.WithNotifier(notifier))
	if err != nil {
		return err
	}

	if cfg.HolidayFile != "" {
		year := time.Now().Year()
		if cfg.TargetYear != 0 {
			year = cfg.TargetYear
		}
		if _, err := importHolidays(a.ctx, svc, cfg.HolidayFile, year); err != nil {
			return err
		}
	}

	limiter, err := newLimiter(a.ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	defer limiter.Close()

	enforcer, err := api.NewEnforcer()
	if err != nil {
		return err
	}

	handler := api.NewHandler(svc, limiter, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:   []byte(cfg.JWTSecret),
		CORSOrigins: cfg.CORSOrigins,
		Enforcer:    enforcer,
		Scenarios:   cfg.DemoScenarios,
	})

	scheduler := api.NewReminderScheduler(svc, logger)
	scheduler.Enabled = cfg.RemindersEnabled
	scheduler.Interval = cfg.ReminderInterval
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listen failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-serverErr:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newLimiter keeps submission counters in Redis when REDIS_URL is set so
// every instance shares them.
func newLimiter(ctx context.Context, cfg *config.Config) (*ratelimit.WindowLimiter, error) {
	if cfg.RedisURL != "" {
		return ratelimit.NewRedis(ctx, cfg.SubmitRateLimit, cfg.RedisURL)
	}
	return ratelimit.New(cfg.SubmitRateLimit)
}

// =============================================================================
// MIGRATE
// =============================================================================

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL migrations",
		Long:  "Applies pending migrations to PGSQL_URL. SQLite databases create their schema on open.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.cfg.DatabaseDriver != config.DriverPostgres {
				return fmt.Errorf("migrate requires DATABASE_DRIVER=%s", config.DriverPostgres)
			}
			if err := postgres.Migrate(app.cfg.PostgresURL); err != nil {
				return err
			}
			fmt.Println("Migrations applied")
			return nil
		},
	}
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func holidaysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holidays",
		Short: "Manage the holiday calendar",
	}
	cmd.AddCommand(holidaysImportCmd())
	return cmd
}

func holidaysImportCmd() *cobra.Command {
	var (
		file string
		year int
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Expand a YAML holiday calendar for a year and store it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := app.openStore()
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer closeStore()

			svc, err := app.newService(store)
			if err != nil {
				return err
			}
			added, err := importHolidays(app.ctx, svc, file, year)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d holidays for %d\n", added, year)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML holiday calendar")
	cmd.Flags().IntVar(&year, "year", time.Now().Year(), "Year to expand recurrences for")
	cmd.MarkFlagRequired("file")
	return cmd
}

func importHolidays(ctx context.Context, svc *leave.Service, path string, year int) (int, error) {
	cal, err := factory.LoadHolidayFile(path)
	if err != nil {
		return 0, err
	}
	holidays, err := cal.Expand(year)
	if err != nil {
		return 0, fmt.Errorf("failed to expand holidays for %d: %w", year, err)
	}
	return svc.ImportHolidays(ctx, cliActor, holidays)
}

// =============================================================================
// TOKEN
// =============================================================================

func tokenCmd() *cobra.Command {
	var (
		user     string
		role     string
		position string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed JWT for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := leave.Actor{UserID: user, Role: leave.Role(role), Position: leave.Position(position)}
			if actor.Role != leave.RoleAdmin && actor.Role != leave.RoleEmployee {
				return fmt.Errorf("role must be %s or %s", leave.RoleAdmin, leave.RoleEmployee)
			}
			token, err := api.IssueToken([]byte(app.cfg.JWTSecret), actor, ttl, time.Now())
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User ID (token subject)")
	cmd.Flags().StringVar(&role, "role", string(leave.RoleEmployee), "admin or employee")
	cmd.Flags().StringVar(&position, "position", "", "Position, e.g. captain")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("user")
	return cmd
}
