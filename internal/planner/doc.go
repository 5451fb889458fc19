/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package planner places tasks into the free time of a working day.
//
// Planning runs in three steps. Busy ranges are merged into a sorted,
// non-overlapping set. The working window is inferred from sentinel ranges
// that mark the hours before and after the working day. Tasks are then placed
// greedily in priority order, each placement folded back into the busy set
// before the next task is considered.
//
// Every function in this package is pure apart from Engine, which reads its
// injected clock when a request carries neither busy ranges nor a start time.
package planner
