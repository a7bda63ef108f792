/*
Package config loads the leave engine's runtime configuration.

PURPOSE:
  Reads a local .env file when present, then environment variables, with a
  default for every key. Environment variables always win over .env.

KEYS:
  PORT, DATABASE_DRIVER (sqlite|postgres), SQLITE_PATH, PGSQL_URL,
  JWT_SECRET, CORS_ORIGINS (comma separated), LOG_LEVEL, LOG_FORMAT,
  KAFKA_BROKERS (comma separated, empty disables Kafka), KAFKA_TOPIC,
  REDIS_URL (empty keeps rate limits in process), SUBMIT_RATE_LIMIT,
  WEEK_MODE, MINIMUM_STAY, MINIMUM_STAY_DAYS, TARGET_YEAR, HOLIDAY_FILE,
  REMINDERS_ENABLED, REMINDER_INTERVAL, DEMO_SCENARIOS

SEE ALSO:
  - factory/policy.go: turns the policy keys into leave.Rules
  - cmd/server/main.go: consumer
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/leave"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration.
type Config struct {
	Port           string
	DatabaseDriver string
	SQLitePath     string
	PostgresURL    string
	JWTSecret      string
	CORSOrigins    []string

	LogLevel  string
	LogFormat string

	KafkaBrokers []string
	KafkaTopic   string

	RedisURL        string
	SubmitRateLimit string

	WeekMode        string
	MinimumStay     string
	MinimumStayDays int
	TargetYear      int
	HolidayFile     string

	RemindersEnabled bool
	ReminderInterval time.Duration
	DemoScenarios    bool
}

// Load reads configuration from the environment, after loading the given
// .env files (".env" when none are named). Missing .env files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Port:             v.GetString("PORT"),
		DatabaseDriver:   strings.ToLower(v.GetString("DATABASE_DRIVER")),
		SQLitePath:       v.GetString("SQLITE_PATH"),
		PostgresURL:      v.GetString("PGSQL_URL"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		CORSOrigins:      splitList(v.GetString("CORS_ORIGINS")),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogFormat:        v.GetString("LOG_FORMAT"),
		KafkaBrokers:     splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:       v.GetString("KAFKA_TOPIC"),
		RedisURL:         v.GetString("REDIS_URL"),
		SubmitRateLimit:  v.GetString("SUBMIT_RATE_LIMIT"),
		WeekMode:         v.GetString("WEEK_MODE"),
		MinimumStay:      v.GetString("MINIMUM_STAY"),
		MinimumStayDays:  v.GetInt("MINIMUM_STAY_DAYS"),
		TargetYear:       v.GetInt("TARGET_YEAR"),
		HolidayFile:      v.GetString("HOLIDAY_FILE"),
		RemindersEnabled: v.GetBool("REMINDERS_ENABLED"),
		ReminderInterval: v.GetDuration("REMINDER_INTERVAL"),
		DemoScenarios:    v.GetBool("DEMO_SCENARIOS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "leave.db")
	v.SetDefault("PGSQL_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "leave-events")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SUBMIT_RATE_LIMIT", "10-M")
	v.SetDefault("WEEK_MODE", string(leave.FiveDayWeek))
	v.SetDefault("MINIMUM_STAY", string(leave.MinimumStayNone))
	v.SetDefault("MINIMUM_STAY_DAYS", leave.DefaultMinimumStayDays)
	v.SetDefault("TARGET_YEAR", 0)
	v.SetDefault("HOLIDAY_FILE", "")
	v.SetDefault("REMINDERS_ENABLED", false)
	v.SetDefault("REMINDER_INTERVAL", "24h")
	v.SetDefault("DEMO_SCENARIOS", false)
}

// Validate checks cross-key requirements.
func (c *Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("PGSQL_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.RemindersEnabled && c.ReminderInterval <= 0 {
		errs = append(errs, errors.New("REMINDER_INTERVAL must be positive when reminders are enabled"))
	}
	if _, err := c.Rules(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Rules converts the policy keys into validated leave rules.
func (c *Config) Rules() (leave.Rules, error) {
	return factory.NewPolicyFactory().FromSettings(c.WeekMode, c.MinimumStay, c.MinimumStayDays, c.TargetYear)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
