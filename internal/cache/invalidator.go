/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cache

import (
	"context"
	"sync"

	"github.com/KaliNikolova/dayplanner/internal/events"
)

// EventSource is the subscribe side of an event bus.
type EventSource interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

func invalidatingEvents() []events.EventType {
	return append([]events.EventType{
		events.EventTaskCreated,
		events.EventTaskCompleted,
		events.EventTasksReorder,
	}, events.PlanEvents...)
}

// RunInvalidator drops an owner's cache entries whenever an event changes
// their plan or task list, including events relayed from other instances.
// It blocks until ctx is cancelled.
func RunInvalidator(ctx context.Context, c *Cache, source EventSource) {
	if c == nil {
		<-ctx.Done()
		return
	}

	types := invalidatingEvents()
	merged := make(chan events.Payload, 32)
	var wg sync.WaitGroup

	subs := make([]events.Subscriber, len(types))
	for i, et := range types {
		subs[i] = source.Subscribe(et)
		wg.Add(1)
		go func(sub events.Subscriber) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case p, ok := <-sub:
					if !ok {
						return
					}
					select {
					case merged <- p:
					case <-ctx.Done():
						return
					}
				}
			}
		}(subs[i])
	}

	for {
		select {
		case <-ctx.Done():
			for i, et := range types {
				source.Unsubscribe(et, subs[i])
			}
			wg.Wait()
			return
		case p := <-merged:
			if err := c.InvalidateOwner(ctx, p.Owner()); err != nil {
				c.logger.Debug().Err(err).Str("owner", p.Owner()).Msg("cache invalidation failed")
			}
		}
	}
}
