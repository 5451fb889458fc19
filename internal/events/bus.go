/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventPlanCreated   EventType = "plan.created"
	EventPlanReplanned EventType = "plan.replanned"
	EventPlanCleared   EventType = "plan.cleared"
	EventFocusChanged  EventType = "focus.changed"

	EventTaskCreated   EventType = "task.created"
	EventTaskUpdated   EventType = "task.updated"
	EventTaskCompleted EventType = "task.completed"
	EventTaskDeleted   EventType = "task.deleted"
	EventTasksReorder  EventType = "task.reordered"

	EventSlotCreated    EventType = "slot.created"
	EventSlotUpdated    EventType = "slot.updated"
	EventSlotDeleted    EventType = "slot.deleted"
	EventCalendarSynced EventType = "slot.calendar_synced"

	EventUserPurged EventType = "user.purged"
)

// PlanEvents are the events after which an owner's cached plan is stale.
var PlanEvents = []EventType{
	EventPlanCreated,
	EventPlanReplanned,
	EventPlanCleared,
	EventTaskUpdated,
	EventTaskDeleted,
	EventUserPurged,
}

// Payload generic event payload.
type Payload map[string]any

// Owner returns the "owner" field of the payload, or "".
func (p Payload) Owner() string {
	owner, _ := p["owner"].(string)
	return owner
}

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is the write side of an event bus.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Bus implements a simple in-process pubsub. Slow subscribers miss events
// rather than blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 32)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(EventType, Payload) {}
