/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"errors"
	"testing"
	"time"

	"github.com/KaliNikolova/dayplanner/internal/clock"
	"github.com/rs/zerolog"
)

func newTestEngine() *Engine {
	return NewEngine(clock.Fixed(time.Date(2026, 8, 20, 7, 30, 0, 0, time.UTC)), time.UTC, zerolog.Nop())
}

func sentinels() []TimeRange {
	return []TimeRange{rng(0, 0, 9, 0), rng(17, 0, 24, 0)}
}

func TestPlanSentinelDay(t *testing.T) {
	res, err := newTestEngine().Plan(Request{
		Tasks: []Task{{ID: "A", Duration: 60}, {ID: "B", Duration: 30}},
		Busy:  sentinels(),
	})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if !res.Window.WindowStart.Equal(hm(9, 0)) || !res.Window.WindowEnd.Equal(hm(17, 0)) {
		t.Fatalf("unexpected window %v-%v", res.Window.WindowStart, res.Window.WindowEnd)
	}
	if len(res.Placements) != 2 {
		t.Fatalf("expected 2 placements, got %+v", res.Placements)
	}
	assertPlacement(t, res.Placements[0], "A", hm(9, 0), hm(10, 0))
	assertPlacement(t, res.Placements[1], "B", hm(10, 0), hm(10, 30))
}

func TestPlanAdvancesPastConflict(t *testing.T) {
	res, err := newTestEngine().Plan(Request{
		Tasks: []Task{{ID: "C", Duration: 60}},
		Busy:  append(sentinels(), rng(9, 30, 10, 15)),
	})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	assertPlacement(t, res.Placements[0], "C", hm(10, 15), hm(11, 15))
}

func TestPlanRejectsTaskLongerThanWindow(t *testing.T) {
	res, err := newTestEngine().Plan(Request{
		Tasks: []Task{{ID: "D", Duration: 600}},
		Busy:  sentinels(),
	})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(res.Placements) != 0 {
		t.Fatalf("task must not be truncated into the window: %+v", res.Placements)
	}
	if ids := res.UnplaceableIDs(); len(ids) != 1 || ids[0] != "D" {
		t.Fatalf("UnplaceableIDs() = %v", ids)
	}
}

func TestPlanFallsBackToClockDay(t *testing.T) {
	res, err := newTestEngine().Plan(Request{Tasks: []Task{{ID: "A", Duration: 45}}})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	if !res.Window.DayStart.Equal(day) {
		t.Fatalf("DayStart = %v, want %v", res.Window.DayStart, day)
	}
	want := day.Add(9 * time.Hour)
	assertPlacement(t, res.Placements[0], "A", want, want.Add(45*time.Minute))
}

func TestPlanUsesExplicitStartDay(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	res, err := newTestEngine().Plan(Request{Tasks: []Task{{ID: "A"}}, Start: &start})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if !res.Placements[0].Start.Equal(start.Add(9 * time.Hour)) {
		t.Fatalf("placement start = %v", res.Placements[0].Start)
	}
}

func TestPlanReentryKeepsPriorPlacements(t *testing.T) {
	engine := newTestEngine()
	tasks := []Task{{ID: "A", Duration: 60}, {ID: "B", Duration: 30}}

	first, err := engine.Plan(Request{Tasks: tasks, Busy: sentinels()})
	if err != nil {
		t.Fatalf("first Plan() error: %v", err)
	}
	second, err := engine.Plan(Request{Tasks: tasks, Busy: sentinels(), AlreadyScheduled: first.Placements})
	if err != nil {
		t.Fatalf("second Plan() error: %v", err)
	}
	if len(second.Placements) != 0 || len(second.Skipped) != len(tasks) {
		t.Fatalf("re-entry must not move or duplicate placements: %+v", second)
	}
}

func TestPlanInvalidRange(t *testing.T) {
	_, err := newTestEngine().Plan(Request{
		Tasks: []Task{{ID: "A"}},
		Busy:  []TimeRange{{Start: hm(12, 0), End: hm(11, 0)}},
	})
	if !errors.Is(err, ErrInvalidRange) || !IsInvalidInput(err) {
		t.Fatalf("expected invalid range error, got %v", err)
	}
}

func TestPlanPinnedDayIgnoresOvernightRange(t *testing.T) {
	day := hm(0, 0)
	tests := []struct {
		name      string
		busy      []TimeRange
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "overnight slot alone",
			busy:      []TimeRange{rng(-2, 0, 1, 0)},
			wantStart: hm(9, 0),
			wantEnd:   hm(17, 0),
		},
		{
			name:      "overnight slot touching the start sentinel",
			busy:      []TimeRange{rng(-2, 0, 1, 0), rng(0, 0, 8, 0), rng(18, 0, 24, 0)},
			wantStart: hm(8, 0),
			wantEnd:   hm(18, 0),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestEngine().Plan(Request{
				Tasks: []Task{{ID: "A", Duration: 60}},
				Busy:  tt.busy,
				Day:   &day,
			})
			if err != nil {
				t.Fatalf("Plan() error: %v", err)
			}
			if !res.Window.DayStart.Equal(day) {
				t.Fatalf("planning day moved to %v", res.Window.DayStart)
			}
			if !res.Window.WindowStart.Equal(tt.wantStart) || !res.Window.WindowEnd.Equal(tt.wantEnd) {
				t.Fatalf("window %v-%v, want %v-%v", res.Window.WindowStart, res.Window.WindowEnd, tt.wantStart, tt.wantEnd)
			}
			assertPlacement(t, res.Placements[0], "A", tt.wantStart, tt.wantStart.Add(time.Hour))
		})
	}
}

func TestPlanPinnedDayKeepsOvernightRangeBusy(t *testing.T) {
	day := hm(0, 0)
	res, err := newTestEngine().Plan(Request{
		Tasks: []Task{{ID: "A", Duration: 60}},
		Busy:  []TimeRange{rng(-2, 0, 1, 0), rng(0, 0, 0, 30), rng(17, 0, 24, 0)},
		Day:   &day,
	})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	// The start sentinel ends at 00:30 but the overnight slot still blocks until 01:00.
	assertPlacement(t, res.Placements[0], "A", hm(1, 0), hm(2, 0))
}
