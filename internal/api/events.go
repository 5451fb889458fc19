/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/KaliNikolova/dayplanner/internal/events"
)

// streamedEvents are pushed to clients when no types are requested.
var streamedEvents = []events.EventType{
	events.EventPlanCreated,
	events.EventPlanReplanned,
	events.EventPlanCleared,
	events.EventFocusChanged,
	events.EventTaskCreated,
	events.EventTaskUpdated,
	events.EventTaskCompleted,
	events.EventTaskDeleted,
	events.EventTasksReorder,
	events.EventSlotCreated,
	events.EventSlotUpdated,
	events.EventSlotDeleted,
	events.EventCalendarSynced,
}

type streamMessage struct {
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload,omitempty"`
}

// handleEvents streams the caller's own events over a websocket.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	user := owner(r)
	conn, err := ws.Accept(w, r, nil)
	if err != nil {
		a.logger.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = streamedEvents
	}

	out := make(chan streamMessage, 16)
	for _, eventType := range eventTypes {
		sub := a.bus.Subscribe(eventType)
		defer a.bus.Unsubscribe(eventType, sub)
		go forward(ctx, eventType, sub, user, out)
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		var msg streamMessage
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			msg = streamMessage{Type: "ping"}
		case msg = <-out:
		}

		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := wsjson.Write(writeCtx, conn, msg)
		cancel()
		if err != nil {
			a.logger.Debug().Err(err).Str("owner", user).Msg("websocket write failed")
			return
		}
	}
}

// forward relays payloads that belong to owner until ctx ends or the
// subscription is closed.
func forward(ctx context.Context, eventType events.EventType, sub events.Subscriber, owner string, out chan<- streamMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			if payload.Owner() != owner {
				continue
			}
			select {
			case out <- streamMessage{Type: eventType, Payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	var out []events.EventType
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, events.EventType(part))
		}
	}
	return out
}
