/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"time"

	"github.com/KaliNikolova/dayplanner/internal/clock"
)

const (
	// SentinelTolerance is how far a sentinel edge may sit from midnight.
	SentinelTolerance = 60 * time.Second
	// TimezoneShiftTolerance admits after-end sentinels whose start was
	// pushed past the end of the day by a calendar sync.
	TimezoneShiftTolerance = 12 * time.Hour

	DefaultWindowStartHour = 9
	DefaultWindowEndHour   = 17
)

// WorkingWindow bounds where tasks may be placed on the planning day.
type WorkingWindow struct {
	DayStart    time.Time `json:"day_start"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	StartInferred bool `json:"start_inferred"`
	EndInferred   bool `json:"end_inferred"`
}

// DayEnd is the instant 24 hours after DayStart.
func (w WorkingWindow) DayEnd() time.Time {
	return w.DayStart.Add(24 * time.Hour)
}

// Range returns the window as [WindowStart, WindowEnd).
func (w WorkingWindow) Range() TimeRange {
	return TimeRange{Start: w.WindowStart, End: w.WindowEnd}
}

// InferWindow derives the working window from merged busy ranges.
//
// A range starting within SentinelTolerance of dayStart marks the hours
// before work; its end is the window start. The first other range ending at
// or after dayEnd (less SentinelTolerance) whose start is after dayStart, or
// no more than TimezoneShiftTolerance past dayEnd, marks the hours after
// work; its start is the window end. Missing sentinels fall back to 09:00
// and 17:00 on the planning day.
func InferWindow(merged []TimeRange, dayStart time.Time) WorkingWindow {
	dayEnd := dayStart.Add(24 * time.Hour)
	w := WorkingWindow{
		DayStart:    dayStart,
		WindowStart: atHour(dayStart, DefaultWindowStartHour),
		WindowEnd:   atHour(dayStart, DefaultWindowEndHour),
	}

	before := -1
	for i, r := range merged {
		if within(r.Start, dayStart, SentinelTolerance) {
			w.WindowStart = r.End
			w.StartInferred = true
			before = i
			break
		}
	}

	for i, r := range merged {
		if i == before {
			continue
		}
		if r.End.Before(dayEnd.Add(-SentinelTolerance)) {
			continue
		}
		shifted := !r.Start.Before(dayEnd) && r.Start.Sub(dayEnd) <= TimezoneShiftTolerance
		if r.Start.After(dayStart) || shifted {
			w.WindowEnd = r.Start
			w.EndInferred = true
			break
		}
	}

	return w
}

// PlanningDay returns local midnight of the day being planned: the day of the
// earliest busy range, else the day of start, else today according to clk.
func PlanningDay(merged []TimeRange, start *time.Time, clk clock.Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	switch {
	case len(merged) > 0:
		return Midnight(merged[0].Start, loc)
	case start != nil:
		return Midnight(*start, loc)
	default:
		return Midnight(clk.Now(), loc)
	}
}

// startingWithin keeps the ranges whose start lies in [from, to).
func startingWithin(ranges []TimeRange, from, to time.Time) []TimeRange {
	out := make([]TimeRange, 0, len(ranges))
	for _, r := range ranges {
		if !r.Start.Before(from) && r.Start.Before(to) {
			out = append(out, r)
		}
	}
	return out
}

// Midnight returns the start of t's calendar day in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func atHour(day time.Time, hour int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
}

func within(t, ref time.Time, tolerance time.Duration) bool {
	d := t.Sub(ref)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}
