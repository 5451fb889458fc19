/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"testing"
	"time"

	"github.com/KaliNikolova/dayplanner/internal/clock"
)

func TestInferWindowFromSentinels(t *testing.T) {
	merged := Merge([]TimeRange{rng(0, 0, 8, 30), rng(18, 0, 24, 0), rng(12, 0, 13, 0)})

	w := InferWindow(merged, testDay)
	if !w.WindowStart.Equal(hm(8, 30)) || !w.StartInferred {
		t.Fatalf("window start = %v inferred=%v", w.WindowStart, w.StartInferred)
	}
	if !w.WindowEnd.Equal(hm(18, 0)) || !w.EndInferred {
		t.Fatalf("window end = %v inferred=%v", w.WindowEnd, w.EndInferred)
	}
}

func TestInferWindowDefaultsWithoutSentinels(t *testing.T) {
	merged := Merge([]TimeRange{rng(10, 0, 11, 0), rng(14, 0, 15, 0)})

	w := InferWindow(merged, testDay)
	if !w.WindowStart.Equal(hm(9, 0)) || !w.WindowEnd.Equal(hm(17, 0)) {
		t.Fatalf("expected 09:00-17:00, got %v-%v", w.WindowStart, w.WindowEnd)
	}
	if w.StartInferred || w.EndInferred {
		t.Fatalf("defaults must not be flagged as inferred")
	}
}

func TestInferWindowTolerances(t *testing.T) {
	dayEnd := testDay.Add(24 * time.Hour)
	tests := []struct {
		name      string
		ranges    []TimeRange
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "start sentinel within a minute of midnight",
			ranges:    []TimeRange{{Start: testDay.Add(45 * time.Second), End: hm(7, 0)}},
			wantStart: hm(7, 0),
			wantEnd:   hm(17, 0),
		},
		{
			name:      "start sentinel beyond tolerance",
			ranges:    []TimeRange{{Start: testDay.Add(2 * time.Minute), End: hm(7, 0)}},
			wantStart: hm(9, 0),
			wantEnd:   hm(17, 0),
		},
		{
			name:      "end sentinel stops a minute short of midnight",
			ranges:    []TimeRange{{Start: hm(16, 0), End: dayEnd.Add(-time.Minute)}},
			wantStart: hm(9, 0),
			wantEnd:   hm(16, 0),
		},
		{
			name:      "end sentinel stops too early",
			ranges:    []TimeRange{{Start: hm(16, 0), End: dayEnd.Add(-5 * time.Minute)}},
			wantStart: hm(9, 0),
			wantEnd:   hm(17, 0),
		},
		{
			name:      "end sentinel shifted into next day",
			ranges:    []TimeRange{{Start: dayEnd.Add(3 * time.Hour), End: dayEnd.Add(10 * time.Hour)}},
			wantStart: hm(9, 0),
			wantEnd:   dayEnd.Add(3 * time.Hour),
		},
		{
			name:      "first end candidate wins",
			ranges:    Merge([]TimeRange{rng(15, 0, 15, 30), {Start: hm(19, 0), End: dayEnd}, {Start: dayEnd.Add(3 * time.Hour), End: dayEnd.Add(4 * time.Hour)}}),
			wantStart: hm(9, 0),
			wantEnd:   hm(19, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := InferWindow(tt.ranges, testDay)
			if !w.WindowStart.Equal(tt.wantStart) {
				t.Fatalf("window start = %v, want %v", w.WindowStart, tt.wantStart)
			}
			if !w.WindowEnd.Equal(tt.wantEnd) {
				t.Fatalf("window end = %v, want %v", w.WindowEnd, tt.wantEnd)
			}
		})
	}
}

func TestInferWindowWholeDaySentinelIsStartOnly(t *testing.T) {
	w := InferWindow([]TimeRange{{Start: testDay, End: testDay.Add(24 * time.Hour)}}, testDay)
	if !w.StartInferred || w.EndInferred {
		t.Fatalf("a single range cannot be both sentinels: %+v", w)
	}
}

func TestPlanningDay(t *testing.T) {
	now := time.Date(2026, 7, 1, 15, 20, 0, 0, time.UTC)
	clk := clock.Fixed(now)
	explicit := time.Date(2026, 6, 12, 11, 0, 0, 0, time.UTC)

	busy := Merge([]TimeRange{rng(13, 0, 14, 0), rng(10, 0, 11, 0)})
	if got := PlanningDay(busy, &explicit, clk, time.UTC); !got.Equal(testDay) {
		t.Fatalf("busy ranges should select the day, got %v", got)
	}
	if got := PlanningDay(nil, &explicit, clk, time.UTC); !got.Equal(time.Date(2026, 6, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("explicit start should select the day, got %v", got)
	}
	if got := PlanningDay(nil, nil, clk, time.UTC); !got.Equal(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("clock should select the day, got %v", got)
	}
}

func TestPlanningDayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	instant := time.Date(2026, 7, 2, 2, 0, 0, 0, time.UTC)

	got := PlanningDay(nil, &instant, clock.System{}, loc)
	want := time.Date(2026, 7, 1, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("PlanningDay() = %v, want %v", got, want)
	}
}
