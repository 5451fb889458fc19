/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRange    = errors.New("range end must be after start")
	ErrInvalidDuration = errors.New("task duration is negative or too long")
	ErrEmptyTaskID     = errors.New("task id is required")
	ErrDuplicateTask   = errors.New("duplicate task id")
)

// InvalidInputError reports which input element was rejected. Index is -1
// when the field is not a list.
type InvalidInputError struct {
	Field string
	Index int
	Err   error
}

func (e *InvalidInputError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s[%d]: %v", e.Field, e.Index, e.Err)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

func invalid(field string, index int, err error) error {
	return &InvalidInputError{Field: field, Index: index, Err: err}
}

// IsInvalidInput reports whether err was caused by malformed planner input.
func IsInvalidInput(err error) bool {
	var target *InvalidInputError
	return errors.As(err, &target)
}
