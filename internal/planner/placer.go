/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"math"
	"time"

	"github.com/rs/zerolog"
)

const (
	// SlotGranularity is the boundary the cursor snaps to after a conflict.
	SlotGranularity = 15 * time.Minute
	// MaxAdvances caps how many conflicts a single task may skip past.
	MaxAdvances = 100
	// DefaultTaskDuration applies to tasks without a duration, in minutes.
	DefaultTaskDuration = 60
	// MaxTaskDuration is the longest duration, in minutes, a time.Duration can hold.
	MaxTaskDuration = math.MaxInt64 / int64(time.Minute)
)

// Task is a unit of work to place. Duration is in minutes.
type Task struct {
	ID       string `json:"id" yaml:"id"`
	Duration int    `json:"duration" yaml:"duration"`
}

func (t Task) length() time.Duration {
	minutes := t.Duration
	if minutes == 0 {
		minutes = DefaultTaskDuration
	}
	return time.Duration(minutes) * time.Minute
}

// Placement is a committed slot for a task.
type Placement struct {
	TaskID string    `json:"task_id" yaml:"task_id"`
	Start  time.Time `json:"start" yaml:"start"`
	End    time.Time `json:"end" yaml:"end"`
}

func (p Placement) Range() TimeRange {
	return TimeRange{Start: p.Start, End: p.End}
}

// UnplaceableReason explains why a task was left out of the plan.
type UnplaceableReason string

const (
	ReasonExceedsWindow      UnplaceableReason = "exceeds_window"
	ReasonIterationBudget    UnplaceableReason = "iteration_budget"
	ReasonInvariantViolation UnplaceableReason = "invariant_violation"
)

type Unplaceable struct {
	TaskID string            `json:"task_id"`
	Reason UnplaceableReason `json:"reason"`
}

// Result is the outcome of one placement call.
type Result struct {
	Placements  []Placement   `json:"placements"`
	Unplaceable []Unplaceable `json:"unplaceable"`
	// Skipped lists tasks that were already scheduled and left untouched.
	Skipped []string      `json:"skipped"`
	Window  WorkingWindow `json:"window"`
}

// UnplaceableIDs returns the ids of tasks that could not be placed.
func (r Result) UnplaceableIDs() []string {
	ids := make([]string, 0, len(r.Unplaceable))
	for _, u := range r.Unplaceable {
		ids = append(ids, u.TaskID)
	}
	return ids
}

// PlaceInput is the full input of a placement call.
type PlaceInput struct {
	Tasks            []Task
	Busy             []TimeRange
	AlreadyScheduled []Placement
	Window           WorkingWindow
	// StartHint moves the scan start to the hint's time of day on the
	// planning day, never earlier than the window start.
	StartHint *time.Time
}

// Placer assigns tasks to the earliest free slots of a working window.
type Placer struct {
	logger zerolog.Logger
}

func NewPlacer(logger zerolog.Logger) *Placer {
	return &Placer{logger: logger.With().Str("component", "placer").Logger()}
}

// Place walks tasks in order and places each one at the earliest gap that
// fits inside the window. Malformed input is rejected with an
// *InvalidInputError; tasks that do not fit are reported in the result.
func (p *Placer) Place(in PlaceInput) (Result, error) {
	if err := validateTasks(in.Tasks); err != nil {
		return Result{}, err
	}
	if err := validateRanges("busy", in.Busy); err != nil {
		return Result{}, err
	}
	if err := validatePlacements(in.AlreadyScheduled); err != nil {
		return Result{}, err
	}

	scheduled := make(map[string]struct{}, len(in.AlreadyScheduled))
	ranges := make([]TimeRange, 0, len(in.Busy)+len(in.AlreadyScheduled))
	ranges = append(ranges, in.Busy...)
	for _, pl := range in.AlreadyScheduled {
		scheduled[pl.TaskID] = struct{}{}
		ranges = append(ranges, pl.Range())
	}
	busy := NewRangeSet(ranges...)

	res := Result{
		Placements:  []Placement{},
		Unplaceable: []Unplaceable{},
		Skipped:     []string{},
		Window:      in.Window,
	}
	cursor := scanStart(in.Window, in.StartHint)

	for _, task := range in.Tasks {
		if _, ok := scheduled[task.ID]; ok {
			res.Skipped = append(res.Skipped, task.ID)
			continue
		}

		slot, reason, ok := findSlot(busy, cursor, task.length(), in.Window)
		if !ok {
			p.logger.Debug().Str("task_id", task.ID).Str("reason", string(reason)).Msg("task not placed")
			res.Unplaceable = append(res.Unplaceable, Unplaceable{TaskID: task.ID, Reason: reason})
			continue
		}

		if conflicts := busy.Overlapping(slot); len(conflicts) > 0 {
			p.logger.Error().
				Str("task_id", task.ID).
				Time("start", slot.Start).
				Time("end", slot.End).
				Int("conflicts", len(conflicts)).
				Msg("accepted slot overlaps busy time, dropping task")
			res.Unplaceable = append(res.Unplaceable, Unplaceable{TaskID: task.ID, Reason: ReasonInvariantViolation})
			continue
		}

		busy = busy.With(slot)
		cursor = slot.End
		res.Placements = append(res.Placements, Placement{TaskID: task.ID, Start: slot.Start, End: slot.End})
		p.logger.Debug().Str("task_id", task.ID).Time("start", slot.Start).Time("end", slot.End).Msg("task placed")
	}

	return res, nil
}

// findSlot scans forward from cursor for a conflict-free slot of length d.
func findSlot(busy RangeSet, cursor time.Time, d time.Duration, w WorkingWindow) (TimeRange, UnplaceableReason, bool) {
	current := cursor
	for advances := 0; ; advances++ {
		// Compare lengths before adding so huge durations cannot wrap.
		if d > w.WindowEnd.Sub(current) {
			return TimeRange{}, ReasonExceedsWindow, false
		}
		candidate := TimeRange{Start: current, End: current.Add(d)}

		conflicts := busy.Overlapping(candidate)
		if len(conflicts) == 0 {
			return candidate, "", true
		}
		if advances == MaxAdvances {
			return TimeRange{}, ReasonIterationBudget, false
		}

		latest := conflicts[0].End
		for _, c := range conflicts[1:] {
			if c.End.After(latest) {
				latest = c.End
			}
		}
		current = ceilToSlot(latest)
	}
}

func scanStart(w WorkingWindow, hint *time.Time) time.Time {
	if hint == nil {
		return w.WindowStart
	}
	loc := w.DayStart.Location()
	local := hint.In(loc)
	projected := time.Date(w.DayStart.Year(), w.DayStart.Month(), w.DayStart.Day(),
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), loc)
	if projected.Before(w.WindowStart) {
		return w.WindowStart
	}
	return projected
}

// ceilToSlot rounds t up to the next SlotGranularity boundary of its local
// wall clock. Times already on a boundary are returned unchanged.
func ceilToSlot(t time.Time) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	rem := t.Sub(midnight) % SlotGranularity
	if rem == 0 {
		return t
	}
	return t.Add(SlotGranularity - rem)
}

func validateTasks(tasks []Task) error {
	seen := make(map[string]struct{}, len(tasks))
	for i, t := range tasks {
		if t.ID == "" {
			return invalid("tasks", i, ErrEmptyTaskID)
		}
		if t.Duration < 0 || int64(t.Duration) > MaxTaskDuration {
			return invalid("tasks", i, ErrInvalidDuration)
		}
		if _, dup := seen[t.ID]; dup {
			return invalid("tasks", i, ErrDuplicateTask)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

func validateRanges(field string, ranges []TimeRange) error {
	for i, r := range ranges {
		if !r.Valid() {
			return invalid(field, i, ErrInvalidRange)
		}
	}
	return nil
}

func validatePlacements(placements []Placement) error {
	for i, p := range placements {
		if p.TaskID == "" {
			return invalid("already_scheduled", i, ErrEmptyTaskID)
		}
		if !p.Range().Valid() {
			return invalid("already_scheduled", i, ErrInvalidRange)
		}
	}
	return nil
}
