/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package clock

import (
	"time"
)

// BlockKind identifies which edge of the working day a block covers.
type BlockKind string

const (
	BlockBeforeStart BlockKind = "before_start"
	BlockAfterEnd    BlockKind = "after_end"
)

// Block is a busy block covering time outside working hours.
type Block struct {
	Kind        BlockKind
	StartsAt    time.Time
	EndsAt      time.Time
	Description string
}

// WorkingHours is a daily [StartHour, EndHour) window in local time.
type WorkingHours struct {
	StartHour int `json:"start_hour" yaml:"start_hour"`
	EndHour   int `json:"end_hour" yaml:"end_hour"`
}

// Normalized clamps hours into range. An empty or inverted window is
// replaced by 09:00-17:00.
func (h WorkingHours) Normalized() WorkingHours {
	start, end := h.StartHour, h.EndHour
	if start < 0 || start > 23 {
		start = 0
	}
	if end < 1 || end > 24 {
		end = 24
	}
	if start >= end {
		return WorkingHours{StartHour: 9, EndHour: 17}
	}
	return WorkingHours{StartHour: start, EndHour: end}
}

// Compile emits the blocks bracketing working hours on the day containing
// day, in loc. Hours touching midnight produce no block on that side.
func (h WorkingHours) Compile(day time.Time, loc *time.Location) []Block {
	if loc == nil {
		loc = time.Local
	}
	hours := h.Normalized()
	local := day.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	next := midnight.Add(24 * time.Hour)

	blocks := make([]Block, 0, 2)
	if hours.StartHour > 0 {
		blocks = append(blocks, Block{
			Kind:        BlockBeforeStart,
			StartsAt:    midnight,
			EndsAt:      hourOf(midnight, hours.StartHour, loc),
			Description: "Before working hours",
		})
	}
	if hours.EndHour < 24 {
		blocks = append(blocks, Block{
			Kind:        BlockAfterEnd,
			StartsAt:    hourOf(midnight, hours.EndHour, loc),
			EndsAt:      next,
			Description: "After working hours",
		})
	}
	return blocks
}

// CompileRange expands working hours day by day over [start, start+horizon).
func (h WorkingHours) CompileRange(start time.Time, horizon time.Duration, loc *time.Location) []Block {
	if loc == nil {
		loc = time.Local
	}
	if horizon <= 0 {
		horizon = 24 * time.Hour
	}
	end := start.Add(horizon)
	local := start.In(loc)
	cursor := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var blocks []Block
	for cursor.Before(end) {
		blocks = append(blocks, h.Compile(cursor, loc)...)
		cursor = cursor.AddDate(0, 0, 1)
	}
	return blocks
}

func hourOf(midnight time.Time, hour int, loc *time.Location) time.Time {
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), hour, 0, 0, 0, loc)
}
