/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/KaliNikolova/dayplanner/internal/events"
	"github.com/KaliNikolova/dayplanner/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string

	// Circuit breaker
	MaxFailures   int
	RetryInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		ChannelPrefix: "dayplanner:events:",
		MaxFailures:   5,
		RetryInterval: 30 * time.Second,
	}
}

// RedisBus mirrors events over Redis pub/sub. After MaxFailures consecutive
// publish errors it stops publishing remotely until RetryInterval has passed.
type RedisBus struct {
	client *redis.Client
	pubsub *redis.PubSub
	local  *events.Bus
	prefix string
	nodeID string
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	failCount     int
	maxFails      int
	open          bool
	openedAt      time.Time
	retryInterval time.Duration
}

// NewRedisBus connects to Redis and starts receiving remote events.
func NewRedisBus(cfg RedisConfig, logger zerolog.Logger) (*RedisBus, error) {
	defaults := DefaultRedisConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = defaults.ChannelPrefix
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaults.MaxFailures
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaults.RetryInterval
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rb := &RedisBus{
		client:        client,
		local:         events.NewBus(),
		prefix:        cfg.ChannelPrefix,
		nodeID:        newNodeID(),
		logger:        logger.With().Str("component", "eventbus").Str("transport", "redis").Logger(),
		ctx:           ctx,
		cancel:        cancel,
		maxFails:      cfg.MaxFailures,
		retryInterval: cfg.RetryInterval,
	}

	rb.pubsub = client.PSubscribe(ctx, rb.prefix+"*")
	rb.wg.Add(1)
	go rb.receive()

	rb.logger.Info().Str("addr", cfg.Addr).Msg("Redis event bus initialized")
	return rb, nil
}

func (rb *RedisBus) receive() {
	defer rb.wg.Done()
	ch := rb.pubsub.Channel()

	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				rb.logger.Warn().Msg("Redis subscription closed")
				return
			}
			rb.deliver(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (rb *RedisBus) deliver(channel string, data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		rb.logger.Error().Err(err).Str("channel", channel).Msg("dropping malformed Redis message")
		return
	}
	if env.NodeID == rb.nodeID {
		return
	}
	if strings.TrimPrefix(channel, rb.prefix) != string(env.EventType) {
		rb.logger.Warn().Str("channel", channel).Str("event_type", string(env.EventType)).Msg("event type does not match channel")
		return
	}
	rb.local.Publish(env.EventType, env.Payload)
}

// Subscribe registers a subscriber for an event type.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	return rb.local.Subscribe(eventType)
}

// Unsubscribe removes a subscriber.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.local.Unsubscribe(eventType, sub)
}

// Publish delivers locally and then to Redis unless the breaker is open.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)
	if rb.client == nil || !rb.allowRemote() {
		return
	}

	data, err := encodeEnvelope(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Msg("failed to encode Redis message")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()
	if err := rb.client.Publish(ctx, rb.prefix+string(eventType), data).Err(); err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to Redis")
		rb.recordFailure()
		return
	}
	rb.recordSuccess()
	telemetry.EventsPublishedTotal.WithLabelValues(string(eventType), string(BackendRedis)).Inc()
}

func (rb *RedisBus) allowRemote() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if !rb.open {
		return true
	}
	// Half-open: let one publish through after the retry interval.
	if time.Since(rb.openedAt) >= rb.retryInterval {
		rb.openedAt = time.Now()
		return true
	}
	return false
}

func (rb *RedisBus) recordFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.failCount++
	if rb.failCount >= rb.maxFails && !rb.open {
		rb.open = true
		rb.openedAt = time.Now()
		rb.logger.Warn().Int("fail_count", rb.failCount).Msg("Redis failure threshold reached, publishing locally only")
	}
}

func (rb *RedisBus) recordSuccess() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.open {
		rb.logger.Info().Msg("Redis publishing recovered")
	}
	rb.failCount = 0
	rb.open = false
}

// Close stops the receiver and closes the Redis client.
func (rb *RedisBus) Close() error {
	if rb.cancel != nil {
		rb.cancel()
	}
	if rb.pubsub != nil {
		_ = rb.pubsub.Close()
	}
	rb.wg.Wait()
	if rb.client != nil {
		return rb.client.Close()
	}
	return nil
}
