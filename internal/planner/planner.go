/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"time"

	"github.com/KaliNikolova/dayplanner/internal/clock"
	"github.com/rs/zerolog"
)

// Request is one planning call.
type Request struct {
	Tasks            []Task
	Busy             []TimeRange
	AlreadyScheduled []Placement
	// Day pins the planning day. When nil the day is chosen by PlanningDay.
	Day *time.Time
	// Start selects the planning day when there are no busy ranges.
	Start     *time.Time
	StartHint *time.Time
}

// Engine runs merge, window inference and placement for a request.
type Engine struct {
	clock  clock.Clock
	loc    *time.Location
	placer *Placer
	logger zerolog.Logger
}

// NewEngine builds an engine. A nil clock uses the system clock and a nil
// location uses time.Local.
func NewEngine(clk clock.Clock, loc *time.Location, logger zerolog.Logger) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		clock:  clk,
		loc:    loc,
		placer: NewPlacer(logger),
		logger: logger.With().Str("component", "planner").Logger(),
	}
}

// Location returns the zone planning days are computed in.
func (e *Engine) Location() *time.Location { return e.loc }

// Window merges busy and already scheduled ranges and infers the working
// window of the planning day.
func (e *Engine) Window(req Request) (WorkingWindow, error) {
	if err := validateRanges("busy", req.Busy); err != nil {
		return WorkingWindow{}, err
	}
	if err := validatePlacements(req.AlreadyScheduled); err != nil {
		return WorkingWindow{}, err
	}

	ranges := make([]TimeRange, 0, len(req.Busy)+len(req.AlreadyScheduled))
	ranges = append(ranges, req.Busy...)
	for _, p := range req.AlreadyScheduled {
		ranges = append(ranges, p.Range())
	}
	merged := Merge(ranges)

	var day time.Time
	if req.Day != nil {
		day = Midnight(*req.Day, e.loc)
	} else {
		day = PlanningDay(merged, req.Start, e.clock, e.loc)
	}
	// Ranges starting outside the day's horizon stay busy time for the
	// placer but never shape the window, not even by merging into a sentinel.
	horizon := day.Add(24*time.Hour + TimezoneShiftTolerance)
	return InferWindow(Merge(startingWithin(ranges, day, horizon)), day), nil
}

// Plan computes placements for the request.
func (e *Engine) Plan(req Request) (Result, error) {
	window, err := e.Window(req)
	if err != nil {
		return Result{}, err
	}

	res, err := e.placer.Place(PlaceInput{
		Tasks:            req.Tasks,
		Busy:             req.Busy,
		AlreadyScheduled: req.AlreadyScheduled,
		Window:           window,
		StartHint:        req.StartHint,
	})
	if err != nil {
		return Result{}, err
	}

	e.logger.Debug().
		Time("day", window.DayStart).
		Time("window_start", window.WindowStart).
		Time("window_end", window.WindowEnd).
		Int("placed", len(res.Placements)).
		Int("unplaceable", len(res.Unplaceable)).
		Int("skipped", len(res.Skipped)).
		Msg("plan computed")
	return res, nil
}
