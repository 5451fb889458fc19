/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus carries planner events between processes. Every bus
// delivers to local subscribers through an in-process events.Bus and mirrors
// published events to a remote transport when one is configured.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/KaliNikolova/dayplanner/internal/events"
	"github.com/KaliNikolova/dayplanner/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bus is an event bus that may span processes.
type Bus interface {
	events.Publisher
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Close() error
}

// Backend names a transport.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendNATS   Backend = "nats"
	BackendRedis  Backend = "redis"
)

// Config selects and configures the transport.
type Config struct {
	Backend Backend
	NATS    NATSConfig
	Redis   RedisConfig
}

// New builds the configured bus. Remote transports that cannot connect
// are reported as errors; callers decide whether to fall back to Memory.
func New(cfg Config, logger zerolog.Logger) (Bus, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendNATS:
		return NewNATSBus(cfg.NATS, logger)
	case BackendRedis:
		return NewRedisBus(cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown event bus backend %q", cfg.Backend)
	}
}

// Memory is a single-process bus.
type Memory struct {
	*events.Bus
}

func NewMemory() *Memory {
	return &Memory{Bus: events.NewBus()}
}

func (m *Memory) Publish(eventType events.EventType, payload events.Payload) {
	m.Bus.Publish(eventType, payload)
	telemetry.EventsPublishedTotal.WithLabelValues(string(eventType), string(BackendMemory)).Inc()
}

func (m *Memory) Close() error { return nil }

// envelope is the wire format shared by remote transports.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func encodeEnvelope(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(envelope{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func decodeEnvelope(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("decode event envelope: missing event type")
	}
	return &env, nil
}

func newNodeID() string {
	return uuid.NewString()
}
