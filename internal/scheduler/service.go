/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/KaliNikolova/dayplanner/internal/cache"
	"github.com/KaliNikolova/dayplanner/internal/clock"
	"github.com/KaliNikolova/dayplanner/internal/events"
	"github.com/KaliNikolova/dayplanner/internal/models"
	"github.com/KaliNikolova/dayplanner/internal/planner"
	"github.com/KaliNikolova/dayplanner/internal/telemetry"
)

// ErrNotScheduled is returned when a task has no placement.
var ErrNotScheduled = errors.New("task is not scheduled")

// dayHorizon bounds the stored busy time considered for one planning day.
const dayHorizon = 24*time.Hour + planner.TimezoneShiftTolerance

// TaskSource supplies the tasks planned when a request names none.
type TaskSource interface {
	Remaining(ctx context.Context, owner string) ([]models.Task, error)
}

// BusySource supplies an owner's stored busy time.
type BusySource interface {
	BusyRanges(ctx context.Context, owner string, from, to time.Time) ([]planner.TimeRange, error)
}

// Service persists plans computed by the planner engine.
type Service struct {
	db     *gorm.DB
	engine *planner.Engine
	tasks  TaskSource
	busy   BusySource
	clock  clock.Clock
	bus    events.Publisher
	cache  *cache.Cache
	logger zerolog.Logger
}

// New constructs the scheduler service.
func New(db *gorm.DB, engine *planner.Engine, tasks TaskSource, busy BusySource, clk clock.Clock, bus events.Publisher, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if bus == nil {
		bus = events.Nop{}
	}
	return &Service{
		db:     db,
		engine: engine,
		tasks:  tasks,
		busy:   busy,
		clock:  clk,
		bus:    bus,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// SetCache sets the cache instance for the scheduler.
func (s *Service) SetCache(c *cache.Cache) {
	s.cache = c
}

// Location returns the zone planning days are computed in.
func (s *Service) Location() *time.Location {
	return s.engine.Location()
}

// Now returns the current time of the service clock.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// PlanRequest is a request to plan a day. Empty Tasks plans the owner's
// remaining tasks in list order.
type PlanRequest struct {
	Tasks        []planner.Task      `json:"tasks,omitempty"`
	BusySlots    []planner.TimeRange `json:"busy_slots,omitempty"`
	PlanningDate *time.Time          `json:"planning_date,omitempty"`
	WorkingHours *clock.WorkingHours `json:"working_hours,omitempty"`
}

// PlanOutcome is the stored result of a plan or replan.
type PlanOutcome struct {
	RunID     string `json:"run_id"`
	FirstTask string `json:"first_task,omitempty"`
	planner.Result
}

// PlanDay places tasks on the planning day and persists the placements.
func (s *Service) PlanDay(ctx context.Context, owner string, req PlanRequest) (*PlanOutcome, error) {
	return s.plan(ctx, owner, req, models.PlanKindPlan, nil)
}

// Replan drops placements that have not started yet and plans again from now.
func (s *Service) Replan(ctx context.Context, owner string, req PlanRequest) (*PlanOutcome, error) {
	now := s.clock.Now()
	result := s.db.WithContext(ctx).
		Where("owner = ? AND planned_start >= ?", owner, now.UTC()).
		Delete(&models.ScheduledTask{})
	if result.Error != nil {
		return nil, fmt.Errorf("drop upcoming placements: %w", result.Error)
	}
	s.logger.Debug().Str("owner", owner).Int64("dropped", result.RowsAffected).Msg("upcoming placements dropped")

	if req.PlanningDate == nil {
		req.PlanningDate = &now
	}
	return s.plan(ctx, owner, req, models.PlanKindReplan, &now)
}

func (s *Service) plan(ctx context.Context, owner string, req PlanRequest, kind models.PlanKind, hint *time.Time) (*PlanOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler.plan",
		attribute.String("owner", owner),
		attribute.String("kind", string(kind)),
	)
	defer span.End()
	started := time.Now()

	loc := s.engine.Location()
	anchor := s.clock.Now()
	if req.PlanningDate != nil {
		anchor = *req.PlanningDate
	}
	day := planner.Midnight(anchor, loc)

	tasks, err := s.requestTasks(ctx, owner, req.Tasks)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	busy := append([]planner.TimeRange(nil), req.BusySlots...)
	stored, err := s.busy.BusyRanges(ctx, owner, day, day.Add(dayHorizon))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	busy = append(busy, stored...)
	if req.WorkingHours != nil {
		for _, b := range req.WorkingHours.Compile(day, loc) {
			busy = append(busy, planner.TimeRange{Start: b.StartsAt, End: b.EndsAt})
		}
	}

	existing, err := s.placements(ctx, owner)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	scheduled, elsewhere := splitByDay(existing, day)
	tasks, skippedElsewhere := withoutTasks(tasks, elsewhere)

	res, err := s.engine.Plan(planner.Request{
		Tasks:            tasks,
		Busy:             busy,
		AlreadyScheduled: scheduled,
		Day:              &day,
		Start:            &anchor,
		StartHint:        hint,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	res.Skipped = append(res.Skipped, skippedElsewhere...)

	first := firstTask(append(scheduled, res.Placements...), s.clock.Now())
	run := models.PlanRun{
		ID:             uuid.NewString(),
		Owner:          owner,
		Kind:           kind,
		DayStart:       res.Window.DayStart,
		WindowStart:    res.Window.WindowStart,
		WindowEnd:      res.Window.WindowEnd,
		Placed:         len(res.Placements),
		Unplaceable:    len(res.Unplaceable),
		Skipped:        len(res.Skipped),
		UnplaceableIDs: res.UnplaceableIDs(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(res.Placements) > 0 {
			rows := make([]models.ScheduledTask, len(res.Placements))
			for i, p := range res.Placements {
				rows[i] = models.ScheduledTask{
					ID:           uuid.NewString(),
					Owner:        owner,
					TaskID:       p.TaskID,
					PlannedStart: p.Start.UTC(),
					PlannedEnd:   p.End.UTC(),
				}
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("store placements: %w", err)
			}
		}
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("store plan run: %w", err)
		}
		return setFocus(tx, owner, first)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.PlansTotal.WithLabelValues(string(kind)).Inc()
	telemetry.PlanDuration.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())
	telemetry.PlacementsTotal.Add(float64(len(res.Placements)))
	for _, u := range res.Unplaceable {
		telemetry.UnplaceableTotal.WithLabelValues(string(u.Reason)).Inc()
	}
	span.SetAttributes(
		attribute.Int("tasks", len(tasks)),
		attribute.Int("placed", len(res.Placements)),
		attribute.Int("unplaceable", len(res.Unplaceable)),
		attribute.String("day", res.Window.DayStart.Format(time.DateOnly)),
	)

	eventType := events.EventPlanCreated
	if kind == models.PlanKindReplan {
		eventType = events.EventPlanReplanned
	}
	s.changed(ctx, eventType, events.Payload{"owner": owner, "run": run.ID, "placed": len(res.Placements)})
	if first != "" {
		s.bus.Publish(events.EventFocusChanged, events.Payload{"owner": owner, "task": first})
	}

	s.logger.Info().
		Str("owner", owner).
		Str("kind", string(kind)).
		Time("day", res.Window.DayStart).
		Int("placed", len(res.Placements)).
		Int("unplaceable", len(res.Unplaceable)).
		Msg("day planned")

	return &PlanOutcome{RunID: run.ID, FirstTask: first, Result: res}, nil
}

func (s *Service) requestTasks(ctx context.Context, owner string, requested []planner.Task) ([]planner.Task, error) {
	if len(requested) > 0 {
		return requested, nil
	}
	remaining, err := s.tasks.Remaining(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load remaining tasks: %w", err)
	}
	out := make([]planner.Task, len(remaining))
	for i, t := range remaining {
		out[i] = planner.Task{ID: t.ID, Duration: t.EstimatedDuration}
	}
	return out, nil
}

func (s *Service) placements(ctx context.Context, owner string) ([]planner.Placement, error) {
	var rows []models.ScheduledTask
	if err := s.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("planned_start ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load placements: %w", err)
	}
	out := make([]planner.Placement, len(rows))
	for i, r := range rows {
		out[i] = planner.Placement{TaskID: r.TaskID, Start: r.PlannedStart, End: r.PlannedEnd}
	}
	return out, nil
}

// splitByDay separates placements overlapping the planning day from the rest.
func splitByDay(placements []planner.Placement, day time.Time) (onDay, elsewhere []planner.Placement) {
	span := planner.TimeRange{Start: day, End: day.Add(dayHorizon)}
	for _, p := range placements {
		if p.Range().Overlaps(span) {
			onDay = append(onDay, p)
		} else {
			elsewhere = append(elsewhere, p)
		}
	}
	return onDay, elsewhere
}

// withoutTasks drops tasks already placed on another day.
func withoutTasks(tasks []planner.Task, placed []planner.Placement) ([]planner.Task, []string) {
	if len(placed) == 0 {
		return tasks, nil
	}
	ids := make(map[string]bool, len(placed))
	for _, p := range placed {
		ids[p.TaskID] = true
	}
	kept := make([]planner.Task, 0, len(tasks))
	var dropped []string
	for _, t := range tasks {
		if ids[t.ID] {
			dropped = append(dropped, t.ID)
			continue
		}
		kept = append(kept, t)
	}
	return kept, dropped
}

// firstTask picks the earliest placement that has not ended by now, or the
// earliest placement when all of them are over.
func firstTask(placements []planner.Placement, now time.Time) string {
	if len(placements) == 0 {
		return ""
	}
	sorted := append([]planner.Placement(nil), placements...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
	for _, p := range sorted {
		if p.End.After(now) {
			return p.TaskID
		}
	}
	return sorted[0].TaskID
}

// ClearDay removes the placements starting on the current day and clears
// the focus.
func (s *Service) ClearDay(ctx context.Context, owner string) (int64, error) {
	day := planner.Midnight(s.clock.Now(), s.engine.Location())

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("owner = ? AND planned_start >= ? AND planned_start < ?", owner, day.UTC(), day.Add(24*time.Hour).UTC()).
			Delete(&models.ScheduledTask{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return setFocus(tx, owner, "")
	})
	if err != nil {
		return 0, fmt.Errorf("clear day: %w", err)
	}

	s.logger.Info().Str("owner", owner).Int64("deleted", deleted).Msg("day cleared")
	s.changed(ctx, events.EventPlanCleared, events.Payload{"owner": owner, "deleted": deleted})
	return deleted, nil
}

// DeleteAllForUser removes every placement, plan run and focus of the owner.
func (s *Service) DeleteAllForUser(ctx context.Context, owner string) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("owner = ?", owner).Delete(&models.ScheduledTask{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		if err := tx.Where("owner = ?", owner).Delete(&models.PlanRun{}).Error; err != nil {
			return err
		}
		return tx.Where("owner = ?", owner).Delete(&models.FocusState{}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete plan data: %w", err)
	}

	s.logger.Info().Str("owner", owner).Int64("deleted", deleted).Msg("plan data purged")
	s.changed(ctx, events.EventUserPurged, events.Payload{"owner": owner})
	return deleted, nil
}

// NextTask returns the task placed after completed, or "" when completed
// was the last one, and moves the focus to it.
func (s *Service) NextTask(ctx context.Context, owner, completed string) (string, error) {
	placements, err := s.placements(ctx, owner)
	if err != nil {
		return "", err
	}

	idx := -1
	for i, p := range placements {
		if p.TaskID == completed {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", ErrNotScheduled
	}

	next := ""
	if idx+1 < len(placements) {
		next = placements[idx+1].TaskID
	}
	if err := s.setCurrent(ctx, owner, next); err != nil {
		return "", err
	}
	return next, nil
}

// ScheduledTasks returns the owner's placements ordered by start.
func (s *Service) ScheduledTasks(ctx context.Context, owner string) ([]models.ScheduledTask, error) {
	if cached, ok := s.cache.GetScheduledTasks(ctx, owner); ok {
		out := make([]models.ScheduledTask, len(cached))
		for i, c := range cached {
			out[i] = models.ScheduledTask{
				ID:           c.ID,
				Owner:        c.Owner,
				TaskID:       c.TaskID,
				PlannedStart: c.PlannedStart,
				PlannedEnd:   c.PlannedEnd,
			}
		}
		return out, nil
	}

	var rows []models.ScheduledTask
	if err := s.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("planned_start ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list placements: %w", err)
	}

	cached := make([]cache.ScheduledTask, len(rows))
	for i, r := range rows {
		cached[i] = cache.ScheduledTask{
			ID:           r.ID,
			Owner:        r.Owner,
			TaskID:       r.TaskID,
			PlannedStart: r.PlannedStart,
			PlannedEnd:   r.PlannedEnd,
		}
	}
	if err := s.cache.SetScheduledTasks(ctx, owner, cached); err != nil {
		s.logger.Debug().Err(err).Str("owner", owner).Msg("failed to cache placements")
	}
	return rows, nil
}

func (s *Service) changed(ctx context.Context, eventType events.EventType, payload events.Payload) {
	if err := s.cache.InvalidateOwner(ctx, payload.Owner()); err != nil {
		s.logger.Debug().Err(err).Msg("cache invalidation failed")
	}
	s.bus.Publish(eventType, payload)
}
