/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string
	Timezone      string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Cache and cross-process events
	CacheEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	EventBus      string

	// Leader election gates the cleanup job when several instances share a database
	LeaderElectionEnabled bool
	InstanceID            string

	// API rate limiting, per client IP
	RateLimitRPS   float64
	RateLimitBurst int

	// Retention of past placements
	CleanupSchedule string
	RetentionDays   int

	LegacyEnvWarnings []string

	location *time.Location
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnvAny([]string{"DAYPLANNER_ENV", "PLANNER_ENV"}, "development"),
		HTTPBind:      getEnvAny([]string{"DAYPLANNER_HTTP_BIND", "PLANNER_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"DAYPLANNER_HTTP_PORT", "PLANNER_HTTP_PORT"}, 8080),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"DAYPLANNER_DB_BACKEND", "PLANNER_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:         getEnvAny([]string{"DAYPLANNER_DB_DSN", "PLANNER_DB_DSN"}, "dayplanner.db"),
		JWTSigningKey: getEnvAny([]string{"DAYPLANNER_JWT_SIGNING_KEY", "PLANNER_JWT_SIGNING_KEY"}, ""),
		Timezone:      getEnvAny([]string{"DAYPLANNER_TIMEZONE", "PLANNER_TIMEZONE"}, "Local"),

		TracingEnabled:    getEnvBoolAny([]string{"DAYPLANNER_TRACING_ENABLED", "PLANNER_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"DAYPLANNER_OTLP_ENDPOINT", "PLANNER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"DAYPLANNER_TRACING_SAMPLE_RATE", "PLANNER_TRACING_SAMPLE_RATE"}, 1.0),

		CacheEnabled:  getEnvBoolAny([]string{"DAYPLANNER_CACHE_ENABLED", "PLANNER_CACHE_ENABLED"}, true),
		RedisAddr:     getEnvAny([]string{"DAYPLANNER_REDIS_ADDR", "PLANNER_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"DAYPLANNER_REDIS_PASSWORD", "PLANNER_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"DAYPLANNER_REDIS_DB", "PLANNER_REDIS_DB"}, 0),
		NATSURL:       getEnvAny([]string{"DAYPLANNER_NATS_URL", "PLANNER_NATS_URL"}, ""),
		EventBus:      getEnvAny([]string{"DAYPLANNER_EVENTBUS", "PLANNER_EVENTBUS"}, ""),

		LeaderElectionEnabled: getEnvBoolAny([]string{"DAYPLANNER_LEADER_ELECTION", "PLANNER_LEADER_ELECTION"}, false),
		InstanceID:            getEnvAny([]string{"DAYPLANNER_INSTANCE_ID", "PLANNER_INSTANCE_ID"}, ""),

		RateLimitRPS:   getEnvFloatAny([]string{"DAYPLANNER_RATE_LIMIT_RPS", "PLANNER_RATE_LIMIT_RPS"}, 10),
		RateLimitBurst: getEnvIntAny([]string{"DAYPLANNER_RATE_LIMIT_BURST", "PLANNER_RATE_LIMIT_BURST"}, 20),

		CleanupSchedule: getEnvAny([]string{"DAYPLANNER_CLEANUP_SCHEDULE", "PLANNER_CLEANUP_SCHEDULE"}, "@hourly"),
		RetentionDays:   getEnvIntAny([]string{"DAYPLANNER_RETENTION_DAYS", "PLANNER_RETENTION_DAYS"}, 14),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DAYPLANNER_DB_DSN or PLANNER_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("DAYPLANNER_JWT_SIGNING_KEY or PLANNER_JWT_SIGNING_KEY must be provided")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	if _, err := cron.ParseStandard(cfg.CleanupSchedule); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cfg.CleanupSchedule, err)
	}

	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return nil, fmt.Errorf("rate limit must be positive (rps=%v burst=%d)", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	if cfg.EventBus == "" {
		cfg.EventBus = "memory"
		if cfg.NATSURL != "" {
			cfg.EventBus = "nats"
		}
	}
	switch cfg.EventBus {
	case "memory", "nats", "redis":
	default:
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}
	if cfg.EventBus == "nats" && cfg.NATSURL == "" {
		return nil, fmt.Errorf("DAYPLANNER_NATS_URL is required for the nats event bus")
	}

	if cfg.InstanceID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.InstanceID = host
		}
	}

	if cfg.RetentionDays < 1 {
		cfg.RetentionDays = 1
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"JWT_SIGNING_KEY": "use DAYPLANNER_JWT_SIGNING_KEY",
		"DATABASE_URL":    "use DAYPLANNER_DB_DSN",
		"REDIS_URL":       "use DAYPLANNER_REDIS_ADDR",
		"NATS_URL":        "use DAYPLANNER_NATS_URL",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// Location returns the zone planning days are computed in.
func (c *Config) Location() *time.Location {
	if c == nil || c.location == nil {
		return time.Local
	}
	return c.location
}

// Retention is how long past placements are kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
