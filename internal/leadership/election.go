/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/KaliNikolova/dayplanner/internal/telemetry"
)

const (
	defaultElectionKey     = "dayplanner:leader:maintenance"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
)

// Leader reports whether this instance should run singleton jobs.
type Leader interface {
	IsLeader() bool
}

// Always is a Leader for single-instance deployments.
type Always struct{}

func (Always) IsLeader() bool { return true }

// Config configures the Redis lease.
type Config struct {
	ElectionKey     string
	LeaseDuration   time.Duration
	RenewalInterval time.Duration
	InstanceID      string
}

// DefaultConfig returns default election configuration.
func DefaultConfig() Config {
	return Config{
		ElectionKey:     defaultElectionKey,
		LeaseDuration:   defaultLeaseDuration,
		RenewalInterval: defaultRenewalInterval,
		InstanceID:      uuid.NewString(),
	}
}

// Election holds a Redis lease so only one instance runs maintenance jobs
// such as retention cleanup.
type Election struct {
	client redis.UniversalClient
	config Config
	logger zerolog.Logger

	leader atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewElection creates an election over an existing Redis client.
func NewElection(client redis.UniversalClient, cfg Config, logger zerolog.Logger) *Election {
	def := DefaultConfig()
	if cfg.ElectionKey == "" {
		cfg.ElectionKey = def.ElectionKey
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = def.LeaseDuration
	}
	if cfg.RenewalInterval <= 0 || cfg.RenewalInterval >= cfg.LeaseDuration {
		cfg.RenewalInterval = cfg.LeaseDuration / 3
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = def.InstanceID
	}
	return &Election{
		client: client,
		config: cfg,
		logger: logger.With().Str("component", "leader_election").Str("instance_id", cfg.InstanceID).Logger(),
		done:   make(chan struct{}),
	}
}

// Start campaigns for the lease until Stop or ctx cancellation.
func (e *Election) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.logger.Info().Dur("lease", e.config.LeaseDuration).Msg("starting leader election")

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.config.RenewalInterval)
		defer ticker.Stop()

		e.attempt(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.attempt(ctx)
			}
		}
	}()
}

// Stop ends the campaign and releases the lease if held.
func (e *Election) Stop() {
	e.once.Do(func() {
		if e.cancel == nil {
			return
		}
		e.cancel()
		<-e.done

		if e.leader.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.release(ctx); err != nil {
				e.logger.Error().Err(err).Msg("failed to release leadership lease")
			}
			e.setLeader(false)
		}
	})
}

// IsLeader reports whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	return e.leader.Load()
}

func (e *Election) attempt(ctx context.Context) {
	acquired, err := e.acquire(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn().Err(err).Msg("leadership lease check failed")
		}
		e.setLeader(false)
		return
	}
	e.setLeader(acquired)
}

// acquire takes the lease with SET NX or renews it when already held.
func (e *Election) acquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.config.ElectionKey, e.config.InstanceID, e.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}

	current, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get lease: %w", err)
	}
	if current != e.config.InstanceID {
		return false, nil
	}
	if err := e.client.PExpire(ctx, e.config.ElectionKey, e.config.LeaseDuration).Err(); err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return true, nil
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

func (e *Election) release(ctx context.Context) error {
	if err := e.client.Eval(ctx, releaseScript, []string{e.config.ElectionKey}, e.config.InstanceID).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	e.logger.Info().Msg("released leadership lease")
	return nil
}

func (e *Election) setLeader(isLeader bool) {
	if e.leader.Swap(isLeader) == isLeader {
		return
	}
	instance := e.config.InstanceID
	if isLeader {
		e.logger.Info().Msg("acquired leadership")
		telemetry.LeaderStatus.WithLabelValues(instance).Set(1)
		telemetry.LeaderChangesTotal.WithLabelValues(instance, "acquired").Inc()
		return
	}
	e.logger.Warn().Msg("lost leadership")
	telemetry.LeaderStatus.WithLabelValues(instance).Set(0)
	telemetry.LeaderChangesTotal.WithLabelValues(instance, "lost").Inc()
}
