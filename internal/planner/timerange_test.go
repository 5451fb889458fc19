/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

var testDay = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

func hm(h, m int) time.Time {
	return testDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func rng(h1, m1, h2, m2 int) TimeRange {
	return TimeRange{Start: hm(h1, m1), End: hm(h2, m2)}
}

func TestNewTimeRangeRejectsEmptyAndInverted(t *testing.T) {
	if _, err := NewTimeRange(hm(10, 0), hm(10, 0)); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for empty range, got %v", err)
	}
	_, err := NewTimeRange(hm(11, 0), hm(10, 0))
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for inverted range, got %v", err)
	}
	if !IsInvalidInput(err) || err.Error() != "invalid range: range end must be after start" {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	r, err := NewTimeRange(hm(10, 0), hm(10, 30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Duration() != 30*time.Minute {
		t.Fatalf("Duration() = %v", r.Duration())
	}
}

func TestOverlapsIsHalfOpen(t *testing.T) {
	a := rng(9, 0, 10, 0)
	tests := []struct {
		name string
		b    TimeRange
		want bool
	}{
		{name: "touching after", b: rng(10, 0, 11, 0), want: false},
		{name: "touching before", b: rng(8, 0, 9, 0), want: false},
		{name: "inside", b: rng(9, 15, 9, 45), want: true},
		{name: "straddling end", b: rng(9, 59, 10, 30), want: true},
		{name: "covering", b: rng(8, 0, 12, 0), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Overlaps(tt.b); got != tt.want {
				t.Fatalf("Overlaps() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(a); got != tt.want {
				t.Fatalf("Overlaps() not symmetric")
			}
		})
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		in   []TimeRange
		want []TimeRange
	}{
		{name: "empty", in: nil, want: nil},
		{name: "single", in: []TimeRange{rng(9, 0, 10, 0)}, want: []TimeRange{rng(9, 0, 10, 0)}},
		{
			name: "unsorted disjoint",
			in:   []TimeRange{rng(13, 0, 14, 0), rng(9, 0, 10, 0)},
			want: []TimeRange{rng(9, 0, 10, 0), rng(13, 0, 14, 0)},
		},
		{
			name: "adjacent fuse",
			in:   []TimeRange{rng(9, 0, 10, 0), rng(10, 0, 11, 0)},
			want: []TimeRange{rng(9, 0, 11, 0)},
		},
		{
			name: "contained",
			in:   []TimeRange{rng(9, 0, 12, 0), rng(10, 0, 11, 0), rng(11, 30, 13, 0)},
			want: []TimeRange{rng(9, 0, 13, 0)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Merge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func randomRanges(r *rand.Rand, n int) []TimeRange {
	out := make([]TimeRange, n)
	for i := range out {
		start := hm(0, r.Intn(24*60))
		out[i] = TimeRange{Start: start, End: start.Add(time.Duration(1+r.Intn(180)) * time.Minute)}
	}
	return out
}

// coverage counts the distinct minutes covered by ranges.
func coverage(ranges []TimeRange) int {
	minutes := make(map[int64]struct{})
	for _, r := range ranges {
		for t := r.Start; t.Before(r.End); t = t.Add(time.Minute) {
			minutes[t.Unix()] = struct{}{}
		}
	}
	return len(minutes)
}

func TestMergeProperties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		in := randomRanges(r, 1+r.Intn(12))
		merged := Merge(in)

		if again := Merge(merged); !reflect.DeepEqual(again, merged) {
			t.Fatalf("merge not idempotent: %v vs %v", again, merged)
		}

		shuffled := make([]TimeRange, len(in))
		copy(shuffled, in)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := Merge(shuffled); !reflect.DeepEqual(got, merged) {
			t.Fatalf("merge depends on input order")
		}

		for j := 1; j < len(merged); j++ {
			if !merged[j-1].End.Before(merged[j].Start) {
				t.Fatalf("merged ranges touch or overlap: %v %v", merged[j-1], merged[j])
			}
		}

		if coverage(in) != coverage(merged) {
			t.Fatalf("coverage changed: %d vs %d", coverage(in), coverage(merged))
		}
		if int(NewRangeSet(in...).Covered()/time.Minute) != coverage(in) {
			t.Fatalf("Covered() disagrees with input coverage")
		}
	}
}

func TestRangeSetWithLeavesReceiverUnchanged(t *testing.T) {
	base := NewRangeSet(rng(9, 0, 10, 0))
	next := base.With(rng(10, 0, 10, 30))

	if base.Len() != 1 || !base.Ranges()[0].End.Equal(hm(10, 0)) {
		t.Fatalf("receiver mutated: %v", base.Ranges())
	}
	if next.Len() != 1 || !next.Ranges()[0].End.Equal(hm(10, 30)) {
		t.Fatalf("unexpected merged set: %v", next.Ranges())
	}
}

func TestRangeSetOverlapping(t *testing.T) {
	set := NewRangeSet(rng(9, 0, 9, 30), rng(10, 0, 11, 0), rng(12, 0, 13, 0))

	got := set.Overlapping(rng(9, 15, 10, 15))
	want := []TimeRange{rng(9, 0, 9, 30), rng(10, 0, 11, 0)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Overlapping() = %v, want %v", got, want)
	}
	if got := set.Overlapping(rng(11, 0, 12, 0)); len(got) != 0 {
		t.Fatalf("expected gap to be free, got %v", got)
	}
}
