/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for per-user planner reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KaliNikolova/dayplanner/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for different cache types
const (
	DefaultScheduledTasksTTL = 10 * time.Minute
	DefaultTaskListTTL       = 5 * time.Minute
)

// Key prefixes for Redis cache
const (
	keyRoot           = "dayplanner:cache:"
	KeyScheduledTasks = keyRoot + "scheduled:" // + owner
	KeyTaskList       = keyRoot + "tasks:"     // + owner
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ScheduledTasksTTL time.Duration
	TaskListTTL       time.Duration

	// DisableOnError turns the cache off after the first Redis error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:         "localhost:6379",
		ScheduledTasksTTL: DefaultScheduledTasksTTL,
		TaskListTTL:       DefaultTaskListTTL,
		DisableOnError:    true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. A nil *Cache
// is valid and behaves like a disabled cache.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance. An unreachable Redis yields a disabled
// cache rather than an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.ScheduledTasksTTL <= 0 {
		cfg.ScheduledTasksTTL = DefaultScheduledTasksTTL
	}
	if cfg.TaskListTTL <= 0 {
		cfg.TaskListTTL = DefaultTaskListTTL
	}
	logger = logger.With().Str("component", "cache").Logger()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{logger: logger, config: cfg, disabled: true}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		telemetry.CacheRequestsTotal.WithLabelValues("miss").Inc()
		return false, nil
	}
	if err != nil {
		telemetry.CacheRequestsTotal.WithLabelValues("error").Inc()
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		telemetry.CacheRequestsTotal.WithLabelValues("miss").Inc()
		return false, nil
	}

	telemetry.CacheRequestsTotal.WithLabelValues("hit").Inc()
	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes keys from cache.
func (c *Cache) delete(ctx context.Context, keys ...string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// ScheduledTask is the cached form of a committed placement.
type ScheduledTask struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	TaskID       string    `json:"task"`
	PlannedStart time.Time `json:"planned_start"`
	PlannedEnd   time.Time `json:"planned_end"`
}

// GetScheduledTasks retrieves an owner's cached placements.
func (c *Cache) GetScheduledTasks(ctx context.Context, owner string) ([]ScheduledTask, bool) {
	var tasks []ScheduledTask
	found, err := c.get(ctx, KeyScheduledTasks+owner, &tasks)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("owner", owner).Int("count", len(tasks)).Msg("scheduled tasks cache hit")
	return tasks, true
}

// SetScheduledTasks caches an owner's placements.
func (c *Cache) SetScheduledTasks(ctx context.Context, owner string, tasks []ScheduledTask) error {
	if !c.IsAvailable() {
		return nil
	}
	if tasks == nil {
		tasks = []ScheduledTask{}
	}
	return c.set(ctx, KeyScheduledTasks+owner, tasks, c.config.ScheduledTasksTTL)
}

// CachedTask is the cached form of a task list entry.
type CachedTask struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	EstimatedDuration int        `json:"estimated_duration"`
	Status            string     `json:"status"`
	Position          int        `json:"position"`
}

// GetTaskList retrieves an owner's cached task list.
func (c *Cache) GetTaskList(ctx context.Context, owner string) ([]CachedTask, bool) {
	var tasks []CachedTask
	found, err := c.get(ctx, KeyTaskList+owner, &tasks)
	if err != nil || !found {
		return nil, false
	}
	return tasks, true
}

// SetTaskList caches an owner's task list.
func (c *Cache) SetTaskList(ctx context.Context, owner string, tasks []CachedTask) error {
	if !c.IsAvailable() {
		return nil
	}
	if tasks == nil {
		tasks = []CachedTask{}
	}
	return c.set(ctx, KeyTaskList+owner, tasks, c.config.TaskListTTL)
}

// InvalidateOwner drops every cached entry of an owner.
func (c *Cache) InvalidateOwner(ctx context.Context, owner string) error {
	if owner == "" || !c.IsAvailable() {
		return nil
	}
	c.logger.Debug().Str("owner", owner).Msg("invalidating owner caches")
	return c.delete(ctx, KeyScheduledTasks+owner, KeyTaskList+owner)
}
