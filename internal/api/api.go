/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/KaliNikolova/dayplanner/internal/auth"
	"github.com/KaliNikolova/dayplanner/internal/events"
	"github.com/KaliNikolova/dayplanner/internal/planner"
	"github.com/KaliNikolova/dayplanner/internal/schedule"
	"github.com/KaliNikolova/dayplanner/internal/scheduler"
	"github.com/KaliNikolova/dayplanner/internal/tasks"
)

const maxBodyBytes = 1 << 20

// EventSource is the subscribe side of the event bus used by the events stream.
type EventSource interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// API exposes HTTP handlers.
type API struct {
	scheduler *scheduler.Service
	tasks     *tasks.Service
	slots     *schedule.Service
	bus       EventSource
	jwtSecret []byte
	limiter   *RateLimiter
	logger    zerolog.Logger
}

// New creates the API router.
func New(sched *scheduler.Service, taskSvc *tasks.Service, slotSvc *schedule.Service, bus EventSource, jwtSecret []byte, logger zerolog.Logger) *API {
	return &API{
		scheduler: sched,
		tasks:     taskSvc,
		slots:     slotSvc,
		bus:       bus,
		jwtSecret: jwtSecret,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// SetRateLimiter enables per-client rate limiting on authenticated routes.
func (a *API) SetRateLimiter(l *RateLimiter) {
	a.limiter = l
}

// Routes registers all API routes.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			if a.limiter != nil {
				pr.Use(a.limiter.Middleware)
			}
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Route("/planner", func(r chi.Router) {
				r.Post("/plan-day", a.handlePlanDay)
				r.Post("/replan", a.handleReplan)
				r.Post("/clear-day", a.handleClearDay)
				r.Post("/delete-all", a.handlePlannerDeleteAll)
				r.Post("/next-task", a.handleNextTask)
				r.Get("/scheduled-tasks", a.handleScheduledTasks)
				r.Get("/ical", a.handleICal)
			})

			pr.Route("/focus", func(r chi.Router) {
				r.Get("/", a.handleFocusGet)
				r.Post("/set", a.handleFocusSet)
				r.Post("/clear", a.handleFocusClear)
			})

			pr.Route("/schedule", func(r chi.Router) {
				r.Get("/slots", a.handleSlotsList)
				r.Post("/block-time", a.handleBlockTime)
				r.Post("/update-slot", a.handleUpdateSlot)
				r.Post("/delete-slot", a.handleDeleteSlot)
				r.Post("/sync-calendar", a.handleSyncCalendar)
				r.Post("/import-ical", a.handleImportICal)
				r.Post("/delete-all", a.handleSlotsDeleteAll)
			})

			pr.Route("/tasks", func(r chi.Router) {
				r.Get("/", a.handleTasksList)
				r.Get("/remaining", a.handleTasksRemaining)
				r.Post("/create", a.handleTaskCreate)
				r.Post("/update", a.handleTaskUpdate)
				r.Post("/reorder", a.handleTasksReorder)
				r.Post("/complete", a.handleTaskComplete)
				r.Post("/delete", a.handleTaskDelete)
				r.Post("/delete-all", a.handleTasksDeleteAll)
			})

			pr.Get("/events", a.handleEvents)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// ValidationError reports a request body that does not match the endpoint schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// decodeJSON reads a single JSON object and rejects unknown fields. An
// empty body leaves dst untouched. Schema mismatches come back as
// *ValidationError.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	var timeErr *time.ParseError
	switch {
	case errors.As(err, &typeErr):
		return &ValidationError{Field: typeErr.Field, Reason: "expected " + typeErr.Type.String()}
	case errors.As(err, &timeErr):
		return &ValidationError{Reason: "instants must be RFC 3339"}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return &ValidationError{Field: field, Reason: "unknown field"}
	default:
		return &ValidationError{Reason: "malformed JSON"}
	}
}

func writeDecodeError(w http.ResponseWriter, err error) {
	resp := map[string]string{"error": "invalid_json", "detail": err.Error()}
	var verr *ValidationError
	if errors.As(err, &verr) && verr.Field != "" {
		resp["field"] = verr.Field
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

func owner(r *http.Request) string {
	return auth.OwnerFromContext(r.Context())
}

// fail maps service errors onto HTTP responses.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case planner.IsInvalidInput(err),
		errors.Is(err, planner.ErrInvalidRange),
		errors.Is(err, tasks.ErrTitleRequired),
		errors.Is(err, tasks.ErrInvalidDuration),
		errors.Is(err, tasks.ErrInvalidStatus),
		errors.Is(err, tasks.ErrInvalidOrder),
		errors.Is(err, schedule.ErrInvalidRRule):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_input", "detail": err.Error()})
	case errors.Is(err, tasks.ErrNotFound),
		errors.Is(err, schedule.ErrNotFound),
		errors.Is(err, scheduler.ErrNotScheduled):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, schedule.ErrSlotNotManual):
		writeError(w, http.StatusConflict, "slot_not_manual")
	default:
		a.logger.Error().Err(err).Str("path", r.URL.Path).Str("owner", owner(r)).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

// timeRangeQuery reads from/to query parameters. Missing values default to
// the current day.
func timeRangeQuery(r *http.Request, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	q := r.URL.Query()
	from := planner.Midnight(now, loc)
	to := from.Add(24 * time.Hour)

	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("from: %w", err)
		}
		from = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("to: %w", err)
		}
		to = t
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, planner.ErrInvalidRange
	}
	return from, to, nil
}
