/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/KaliNikolova/dayplanner/internal/clock"
	"github.com/KaliNikolova/dayplanner/internal/db/dbtest"
	"github.com/KaliNikolova/dayplanner/internal/events"
	"github.com/KaliNikolova/dayplanner/internal/models"
	"github.com/KaliNikolova/dayplanner/internal/planner"
	"github.com/KaliNikolova/dayplanner/internal/schedule"
	"github.com/KaliNikolova/dayplanner/internal/tasks"
)

var day = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type fixture struct {
	db    *gorm.DB
	svc   *Service
	tasks *tasks.Service
	slots *schedule.Service
	bus   *events.Bus
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: dbtest.Open(t), bus: events.NewBus(), now: at(7, 0)}
	clk := clock.Func(func() time.Time { return f.now })
	logger := zerolog.Nop()

	f.tasks = tasks.NewService(f.db, f.bus, logger)
	f.slots = schedule.NewService(f.db, f.bus, time.UTC, logger)
	engine := planner.NewEngine(clk, time.UTC, logger)
	f.svc = New(f.db, engine, f.tasks, f.slots, clk, f.bus, logger)
	return f
}

func workday() *clock.WorkingHours {
	return &clock.WorkingHours{StartHour: 9, EndHour: 17}
}

func assertPlaced(t *testing.T, got planner.Placement, id string, start, end time.Time) {
	t.Helper()
	if got.TaskID != id || !got.Start.Equal(start) || !got.End.Equal(end) {
		t.Fatalf("placement = %s %s-%s, want %s %s-%s",
			got.TaskID, got.Start.Format("15:04"), got.End.Format("15:04"),
			id, start.Format("15:04"), end.Format("15:04"))
	}
}

func TestPlanDayWithRequestTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	planned := f.bus.Subscribe(events.EventPlanCreated)

	out, err := f.svc.PlanDay(ctx, "u1", PlanRequest{
		Tasks:        []planner.Task{{ID: "A", Duration: 60}, {ID: "B", Duration: 30}},
		BusySlots:    []planner.TimeRange{{Start: at(10, 0), End: at(11, 0)}},
		WorkingHours: workday(),
	})
	if err != nil {
		t.Fatalf("PlanDay: %v", err)
	}
	if len(out.Placements) != 2 {
		t.Fatalf("expected 2 placements, got %+v", out.Placements)
	}
	assertPlaced(t, out.Placements[0], "A", at(9, 0), at(10, 0))
	assertPlaced(t, out.Placements[1], "B", at(11, 0), at(11, 30))
	if out.FirstTask != "A" {
		t.Fatalf("expected first task A, got %q", out.FirstTask)
	}

	current, err := f.svc.CurrentTask(ctx, "u1")
	if err != nil || current != "A" {
		t.Fatalf("CurrentTask = %q, %v; want A", current, err)
	}

	var runs []models.PlanRun
	if err := f.db.Find(&runs).Error; err != nil {
		t.Fatalf("load runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Placed != 2 || runs[0].Kind != models.PlanKindPlan {
		t.Fatalf("unexpected plan runs %+v", runs)
	}

	select {
	case p := <-planned:
		if p.Owner() != "u1" {
			t.Fatalf("unexpected event owner %q", p.Owner())
		}
	default:
		t.Fatal("expected plan.created event")
	}
}

func TestPlanDayUsesStoredTasksAndSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	long, err := f.tasks.Create(ctx, "u1", tasks.CreateInput{Title: "report", EstimatedDuration: 90})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	short, err := f.tasks.Create(ctx, "u1", tasks.CreateInput{Title: "email"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	done, err := f.tasks.Create(ctx, "u1", tasks.CreateInput{Title: "done"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.tasks.MarkComplete(ctx, "u1", done.ID); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	if _, err := f.slots.BlockTime(ctx, "u1", schedule.SlotInput{Start: at(9, 30), End: at(10, 0)}); err != nil {
		t.Fatalf("BlockTime: %v", err)
	}

	out, err := f.svc.PlanDay(ctx, "u1", PlanRequest{WorkingHours: workday()})
	if err != nil {
		t.Fatalf("PlanDay: %v", err)
	}
	if len(out.Placements) != 2 {
		t.Fatalf("expected 2 placements, got %+v", out.Placements)
	}
	// Newest task is first in the list; a zero estimate takes an hour.
	assertPlaced(t, out.Placements[0], short.ID, at(10, 0), at(11, 0))
	assertPlaced(t, out.Placements[1], long.ID, at(11, 0), at(12, 30))
}

func TestPlanDayStaysOnDayAfterOvernightSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.slots.BlockTime(ctx, "u1", schedule.SlotInput{Start: at(-2, 0), End: at(1, 0)}); err != nil {
		t.Fatalf("BlockTime: %v", err)
	}

	out, err := f.svc.PlanDay(ctx, "u1", PlanRequest{
		Tasks:        []planner.Task{{ID: "A", Duration: 60}},
		BusySlots:    []planner.TimeRange{{Start: at(-20, 0), End: at(-19, 0)}},
		WorkingHours: workday(),
	})
	if err != nil {
		t.Fatalf("PlanDay: %v", err)
	}
	if !out.Window.DayStart.Equal(day) {
		t.Fatalf("planning day = %v, want %v", out.Window.DayStart, day)
	}
	if len(out.Placements) != 1 {
		t.Fatalf("expected 1 placement, got %+v", out.Placements)
	}
	assertPlaced(t, out.Placements[0], "A", at(9, 0), at(10, 0))
}

func TestPlanDayRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PlanDay(context.Background(), "u1", PlanRequest{
		Tasks:     []planner.Task{{ID: "A", Duration: 30}},
		BusySlots: []planner.TimeRange{{Start: at(11, 0), End: at(10, 0)}},
	})
	if !planner.IsInvalidInput(err) || !errors.Is(err, planner.ErrInvalidRange) {
		t.Fatalf("expected invalid range error, got %v", err)
	}
	var count int64
	f.db.Model(&models.PlanRun{}).Count(&count)
	if count != 0 {
		t.Fatalf("rejected plan must not be recorded, got %d runs", count)
	}
}

func TestPlanDaySkipsTasksScheduledOnOtherDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	earlier := models.ScheduledTask{
		ID: "1f0e3c2a-5b6d-4e7f-8a9b-0c1d2e3f4a5b", Owner: "u1", TaskID: "A",
		PlannedStart: at(10, 0).AddDate(0, 0, -3), PlannedEnd: at(11, 0).AddDate(0, 0, -3),
	}
	if err := f.db.Create(&earlier).Error; err != nil {
		t.Fatalf("create placement: %v", err)
	}

	out, err := f.svc.PlanDay(ctx, "u1", PlanRequest{
		Tasks:        []planner.Task{{ID: "A", Duration: 30}, {ID: "B", Duration: 30}},
		PlanningDate: &f.now,
		WorkingHours: workday(),
	})
	if err != nil {
		t.Fatalf("PlanDay: %v", err)
	}
	if len(out.Placements) != 1 {
		t.Fatalf("expected only B placed, got %+v", out.Placements)
	}
	assertPlaced(t, out.Placements[0], "B", at(9, 0), at(9, 30))
	if len(out.Skipped) != 1 || out.Skipped[0] != "A" {
		t.Fatalf("expected A skipped, got %v", out.Skipped)
	}
}

func TestReplanKeepsStartedPlacements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := PlanRequest{
		Tasks:        []planner.Task{{ID: "A", Duration: 60}, {ID: "B", Duration: 30}},
		BusySlots:    []planner.TimeRange{{Start: at(10, 0), End: at(11, 0)}},
		WorkingHours: workday(),
	}
	if _, err := f.svc.PlanDay(ctx, "u1", req); err != nil {
		t.Fatalf("PlanDay: %v", err)
	}

	f.now = at(10, 10)
	req.BusySlots = append(req.BusySlots, planner.TimeRange{Start: at(11, 0), End: at(12, 0)})
	out, err := f.svc.Replan(ctx, "u1", req)
	if err != nil {
		t.Fatalf("Replan: %v", err)
	}
	if len(out.Placements) != 1 {
		t.Fatalf("expected B to be placed again, got %+v", out.Placements)
	}
	assertPlaced(t, out.Placements[0], "B", at(12, 0), at(12, 30))
	if len(out.Skipped) != 1 || out.Skipped[0] != "A" {
		t.Fatalf("expected A skipped, got %v", out.Skipped)
	}
	if out.FirstTask != "B" {
		t.Fatalf("expected focus on B after A ended, got %q", out.FirstTask)
	}

	stored, err := f.svc.ScheduledTasks(ctx, "u1")
	if err != nil {
		t.Fatalf("ScheduledTasks: %v", err)
	}
	if len(stored) != 2 || stored[0].TaskID != "A" || stored[1].TaskID != "B" {
		t.Fatalf("unexpected stored placements %+v", stored)
	}
	if !stored[1].PlannedStart.Equal(at(12, 0)) {
		t.Fatalf("expected B stored at 12:00, got %s", stored[1].PlannedStart)
	}
}

func TestNextTaskAndFocus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.PlanDay(ctx, "u1", PlanRequest{
		Tasks:        []planner.Task{{ID: "A", Duration: 30}, {ID: "B", Duration: 30}},
		WorkingHours: workday(),
	}); err != nil {
		t.Fatalf("PlanDay: %v", err)
	}

	next, err := f.svc.NextTask(ctx, "u1", "A")
	if err != nil || next != "B" {
		t.Fatalf("NextTask(A) = %q, %v; want B", next, err)
	}
	if current, _ := f.svc.CurrentTask(ctx, "u1"); current != "B" {
		t.Fatalf("expected focus on B, got %q", current)
	}

	next, err = f.svc.NextTask(ctx, "u1", "B")
	if err != nil || next != "" {
		t.Fatalf("NextTask(B) = %q, %v; want empty", next, err)
	}
	if _, err := f.svc.NextTask(ctx, "u1", "missing"); !errors.Is(err, ErrNotScheduled) {
		t.Fatalf("expected ErrNotScheduled, got %v", err)
	}

	if err := f.svc.SetCurrentTask(ctx, "u1", "A"); err != nil {
		t.Fatalf("SetCurrentTask: %v", err)
	}
	if err := f.svc.ClearCurrentTask(ctx, "u1"); err != nil {
		t.Fatalf("ClearCurrentTask: %v", err)
	}
	if current, _ := f.svc.CurrentTask(ctx, "u1"); current != "" {
		t.Fatalf("expected cleared focus, got %q", current)
	}
	if current, err := f.svc.CurrentTask(ctx, "nobody"); err != nil || current != "" {
		t.Fatalf("CurrentTask for unknown owner = %q, %v", current, err)
	}
}

func TestClearDayAndDeleteAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tomorrow := at(8, 0).AddDate(0, 0, 1)
	for _, req := range []PlanRequest{
		{Tasks: []planner.Task{{ID: "A", Duration: 30}}, WorkingHours: workday()},
		{Tasks: []planner.Task{{ID: "B", Duration: 30}}, WorkingHours: workday(), PlanningDate: &tomorrow},
	} {
		if _, err := f.svc.PlanDay(ctx, "u1", req); err != nil {
			t.Fatalf("PlanDay: %v", err)
		}
	}

	cleared, err := f.svc.ClearDay(ctx, "u1")
	if err != nil {
		t.Fatalf("ClearDay: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected today's placement cleared, got %d", cleared)
	}
	if current, _ := f.svc.CurrentTask(ctx, "u1"); current != "" {
		t.Fatalf("expected focus cleared, got %q", current)
	}

	deleted, err := f.svc.DeleteAllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteAllForUser: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected tomorrow's placement deleted, got %d", deleted)
	}
	var runs int64
	f.db.Model(&models.PlanRun{}).Where("owner = ?", "u1").Count(&runs)
	if runs != 0 {
		t.Fatalf("expected plan runs purged, got %d", runs)
	}
}

func TestCleanerRunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rows := []models.ScheduledTask{
		{ID: "7a1b2c3d-0000-4000-8000-000000000001", Owner: "u1", TaskID: "old", PlannedStart: at(9, 0).AddDate(0, 0, -20), PlannedEnd: at(10, 0).AddDate(0, 0, -20)},
		{ID: "7a1b2c3d-0000-4000-8000-000000000002", Owner: "u1", TaskID: "recent", PlannedStart: at(9, 0).AddDate(0, 0, -2), PlannedEnd: at(10, 0).AddDate(0, 0, -2)},
	}
	if err := f.db.Create(&rows).Error; err != nil {
		t.Fatalf("create placements: %v", err)
	}

	clk := clock.Func(func() time.Time { return f.now })
	cleaner, err := NewCleaner(f.db, "@hourly", 14*24*time.Hour, time.UTC, nil, clk, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCleaner: %v", err)
	}
	deleted, err := cleaner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 expired placement, got %d", deleted)
	}

	if _, err := NewCleaner(f.db, "every tuesday", time.Hour, time.UTC, nil, clk, zerolog.Nop()); err == nil {
		t.Fatal("expected invalid schedule to fail")
	}
}
