/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
	"time"
)

// TaskStatus tracks progress of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
)

// ParseTaskStatus accepts any casing of a known status.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch TaskStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case TaskStatusTodo:
		return TaskStatusTodo, true
	case TaskStatusInProgress:
		return TaskStatusInProgress, true
	case TaskStatusDone:
		return TaskStatusDone, true
	}
	return "", false
}

// Task is an item on a user's prioritized task list.
// EstimatedDuration is in minutes; zero means the planner default.
type Task struct {
	ID                string     `gorm:"type:uuid;primaryKey" json:"id"`
	Owner             string     `gorm:"type:varchar(64);index:idx_tasks_owner_position,priority:1;not null" json:"owner"`
	Title             string     `gorm:"type:varchar(255);not null" json:"title"`
	Description       string     `gorm:"type:text" json:"description"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	EstimatedDuration int        `json:"estimated_duration"`
	Status            TaskStatus `gorm:"type:varchar(16);not null;default:TODO" json:"status"`
	Position          int        `gorm:"index:idx_tasks_owner_position,priority:2" json:"position"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SlotOrigin says where a busy slot came from.
type SlotOrigin string

const (
	SlotOriginManual   SlotOrigin = "manual"
	SlotOriginExternal SlotOrigin = "external"
)

// BusySlot is time the planner must keep free of tasks.
type BusySlot struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	Owner       string     `gorm:"type:varchar(64);index:idx_busy_slots_owner_start,priority:1;not null" json:"owner"`
	StartTime   time.Time  `gorm:"index:idx_busy_slots_owner_start,priority:2;not null" json:"start_time"`
	EndTime     time.Time  `gorm:"not null" json:"end_time"`
	Description string     `gorm:"type:varchar(512)" json:"description"`
	Origin      SlotOrigin `gorm:"type:varchar(16);index;not null" json:"origin"`
	// RRule optionally repeats the slot, anchored at StartTime (RFC 5545 RRULE body).
	RRule     string    `gorm:"column:rrule;type:varchar(255)" json:"rrule,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recurring reports whether the slot carries a recurrence rule.
func (s BusySlot) Recurring() bool {
	return s.RRule != ""
}

// ScheduledTask is a committed placement of a task.
type ScheduledTask struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Owner        string    `gorm:"type:varchar(64);uniqueIndex:idx_scheduled_owner_task,priority:1;index:idx_scheduled_owner_start,priority:1;not null" json:"owner"`
	TaskID       string    `gorm:"type:varchar(64);uniqueIndex:idx_scheduled_owner_task,priority:2;not null" json:"task"`
	PlannedStart time.Time `gorm:"index:idx_scheduled_owner_start,priority:2;not null" json:"planned_start"`
	PlannedEnd   time.Time `gorm:"index;not null" json:"planned_end"`
	CreatedAt    time.Time `json:"created_at"`
}

// PlanKind distinguishes a fresh plan from a replan.
type PlanKind string

const (
	PlanKindPlan   PlanKind = "plan"
	PlanKindReplan PlanKind = "replan"
)

// PlanRun records the outcome of one planning call.
type PlanRun struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	Owner          string    `gorm:"type:varchar(64);index;not null" json:"owner"`
	Kind           PlanKind  `gorm:"type:varchar(16);not null" json:"kind"`
	DayStart       time.Time `json:"day_start"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	Placed         int       `json:"placed"`
	Unplaceable    int       `json:"unplaceable"`
	Skipped        int       `json:"skipped"`
	UnplaceableIDs []string  `gorm:"type:text;serializer:json" json:"unplaceable_ids"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// TableName returns the table name for GORM.
func (PlanRun) TableName() string {
	return "plan_runs"
}

// FocusState holds the task a user is currently working on.
type FocusState struct {
	Owner     string    `gorm:"type:varchar(64);primaryKey" json:"owner"`
	TaskID    string    `gorm:"type:varchar(64)" json:"task"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (FocusState) TableName() string {
	return "focus_states"
}
