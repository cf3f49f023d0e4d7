// Package config loads eventorch's process configuration from environment
// variables (and an optional .env file) via Viper.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Default configuration values, per the external-interfaces configuration
// table.
const (
	DefaultSchedulePromoteIntervalMS  = 5000
	DefaultSchedulePromoteLookaheadMS = 1000
	DefaultSchedulePromoteBatchSize   = 50
	DefaultScheduleSyncIntervalMS     = 60000
	DefaultTimezone                   = "America/Vancouver"
	DefaultServerAddress              = ":8080"
)

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME"`
}

// RedisConfig holds broker connection settings.
type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

// ServerConfig holds the HTTP API's listen settings.
type ServerConfig struct {
	Address string `env:"SERVER_ADDRESS"`
}

// SchedulerConfig holds the Schedule Promoter's tunables (§6 Configuration).
type SchedulerConfig struct {
	PromoteInterval  time.Duration `env:"SCHEDULE_PROMOTE_INTERVAL_MS"`
	PromoteLookahead time.Duration `env:"SCHEDULE_PROMOTE_LOOKAHEAD_MS"`
	PromoteBatchSize int           `env:"SCHEDULE_PROMOTE_BATCH_SIZE"`
	SyncInterval     time.Duration `env:"SCHEDULE_SYNC_INTERVAL_MS"`
	DefaultTimezone  string        `env:"SCHEDULE_DEFAULT_TIMEZONE"`
}

// Config is the root configuration for both eventorch-scheduler and
// eventorch-worker.
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Scheduler SchedulerConfig
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
}

// SetDefaults fills unset fields with the external-interfaces defaults.
func (c *Config) SetDefaults() {
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultServerAddress
	}
	if c.Scheduler.PromoteInterval == 0 {
		c.Scheduler.PromoteInterval = DefaultSchedulePromoteIntervalMS * time.Millisecond
	}
	if c.Scheduler.PromoteLookahead == 0 {
		c.Scheduler.PromoteLookahead = DefaultSchedulePromoteLookaheadMS * time.Millisecond
	}
	if c.Scheduler.PromoteBatchSize == 0 {
		c.Scheduler.PromoteBatchSize = DefaultSchedulePromoteBatchSize
	}
	// Scheduler.SyncInterval is left as is: zero disables the periodic
	// reconciliation loop. Load supplies the default when the variable is
	// unset.
	if c.Scheduler.DefaultTimezone == "" {
		c.Scheduler.DefaultTimezone = DefaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
}

// Validate checks that the settings required to boot are present.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("config: REDIS_URL is required")
	}
	return nil
}

// Load reads an optional .env file then binds environment variables into a
// validated Config, following the teacher's Viper-over-environment pattern.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	bindMillisDefault(v, "SCHEDULE_PROMOTE_INTERVAL_MS", DefaultSchedulePromoteIntervalMS)
	bindMillisDefault(v, "SCHEDULE_PROMOTE_LOOKAHEAD_MS", DefaultSchedulePromoteLookaheadMS)
	v.SetDefault("SCHEDULE_PROMOTE_BATCH_SIZE", DefaultSchedulePromoteBatchSize)
	bindMillisDefault(v, "SCHEDULE_SYNC_INTERVAL_MS", DefaultScheduleSyncIntervalMS)
	v.SetDefault("SCHEDULE_DEFAULT_TIMEZONE", DefaultTimezone)
	v.SetDefault("SERVER_ADDRESS", DefaultServerAddress)

	cfg := &Config{
		Database: DatabaseConfig{
			URL: v.GetString("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: v.GetString("REDIS_URL"),
		},
		Server: ServerConfig{
			Address: v.GetString("SERVER_ADDRESS"),
		},
		Scheduler: SchedulerConfig{
			PromoteInterval:  time.Duration(v.GetInt64("SCHEDULE_PROMOTE_INTERVAL_MS")) * time.Millisecond,
			PromoteLookahead: time.Duration(v.GetInt64("SCHEDULE_PROMOTE_LOOKAHEAD_MS")) * time.Millisecond,
			PromoteBatchSize: v.GetInt("SCHEDULE_PROMOTE_BATCH_SIZE"),
			SyncInterval:     time.Duration(v.GetInt64("SCHEDULE_SYNC_INTERVAL_MS")) * time.Millisecond,
			DefaultTimezone:  v.GetString("SCHEDULE_DEFAULT_TIMEZONE"),
		},
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindMillisDefault(v *viper.Viper, key string, def int) {
	v.SetDefault(key, def)
}
