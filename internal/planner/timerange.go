/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"sort"
	"time"
)

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// NewTimeRange returns a range, or an *InvalidInputError wrapping
// ErrInvalidRange when end is not after start.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	r := TimeRange{Start: start, End: end}
	if !r.Valid() {
		return TimeRange{}, invalid("range", -1, ErrInvalidRange)
	}
	return r, nil
}

// Valid reports whether End is strictly after Start.
func (r TimeRange) Valid() bool {
	return r.End.After(r.Start)
}

// Overlaps reports whether two half-open ranges share any instant.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Merge sorts ranges by start and coalesces overlapping or touching ranges.
// The input slice is not modified.
func Merge(ranges []TimeRange) []TimeRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := make([]TimeRange, 0, len(sorted))
	last := sorted[0]
	for _, next := range sorted[1:] {
		if !next.Start.After(last.End) {
			if next.End.After(last.End) {
				last.End = next.End
			}
			continue
		}
		merged = append(merged, last)
		last = next
	}
	return append(merged, last)
}

// RangeSet is an immutable merged set of busy ranges.
type RangeSet struct {
	ranges []TimeRange
}

// NewRangeSet merges the given ranges into a set.
func NewRangeSet(ranges ...TimeRange) RangeSet {
	return RangeSet{ranges: Merge(ranges)}
}

// With returns a new set that also covers r. The receiver is unchanged.
func (s RangeSet) With(r TimeRange) RangeSet {
	next := make([]TimeRange, 0, len(s.ranges)+1)
	next = append(next, s.ranges...)
	next = append(next, r)
	return RangeSet{ranges: Merge(next)}
}

// Overlapping returns the ranges in the set that overlap r.
func (s RangeSet) Overlapping(r TimeRange) []TimeRange {
	var out []TimeRange
	for _, busy := range s.ranges {
		if !busy.Start.Before(r.End) {
			break
		}
		if busy.Overlaps(r) {
			out = append(out, busy)
		}
	}
	return out
}

// Ranges returns a copy of the merged ranges.
func (s RangeSet) Ranges() []TimeRange {
	out := make([]TimeRange, len(s.ranges))
	copy(out, s.ranges)
	return out
}

func (s RangeSet) Len() int { return len(s.ranges) }

// Covered is the total time covered by the set.
func (s RangeSet) Covered() time.Duration {
	var total time.Duration
	for _, r := range s.ranges {
		total += r.Duration()
	}
	return total
}
