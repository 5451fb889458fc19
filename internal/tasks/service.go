/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/KaliNikolova/dayplanner/internal/cache"
	"github.com/KaliNikolova/dayplanner/internal/events"
	"github.com/KaliNikolova/dayplanner/internal/models"
	"github.com/KaliNikolova/dayplanner/internal/planner"
)

var (
	ErrNotFound        = errors.New("task not found")
	ErrTitleRequired   = errors.New("title is required")
	ErrInvalidDuration = errors.New("estimated duration is negative or too long")
	ErrInvalidStatus   = errors.New("unknown task status")
	ErrInvalidOrder    = errors.New("order must list every task of the owner exactly once")
)

// Service manages a user's prioritized task list.
type Service struct {
	db     *gorm.DB
	bus    events.Publisher
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewService creates a task service. A nil bus disables event publishing.
func NewService(db *gorm.DB, bus events.Publisher, logger zerolog.Logger) *Service {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "tasks").Logger(),
	}
}

// SetCache sets the cache used for task list reads.
func (s *Service) SetCache(c *cache.Cache) {
	s.cache = c
}

// CreateInput holds the fields of a new task.
type CreateInput struct {
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	EstimatedDuration int        `json:"estimated_duration"`
}

// Create adds a task to the front of the owner's list.
func (s *Service) Create(ctx context.Context, owner string, in CreateInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if !validDuration(in.EstimatedDuration) {
		return nil, ErrInvalidDuration
	}

	task := &models.Task{
		ID:                uuid.NewString(),
		Owner:             owner,
		Title:             title,
		Description:       in.Description,
		DueDate:           in.DueDate,
		EstimatedDuration: in.EstimatedDuration,
		Status:            models.TaskStatusTodo,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var front int
		if err := tx.Model(&models.Task{}).
			Where("owner = ?", owner).
			Select("COALESCE(MIN(position), 1)").
			Scan(&front).Error; err != nil {
			return err
		}
		task.Position = front - 1
		return tx.Create(task).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	s.logger.Info().Str("owner", owner).Str("task", task.ID).Msg("task created")
	s.changed(ctx, events.EventTaskCreated, events.Payload{"owner": owner, "task": task.ID})
	return task, nil
}

// UpdateInput holds optional changes to a task. Nil fields are left alone.
type UpdateInput struct {
	Title             *string    `json:"title,omitempty"`
	Description       *string    `json:"description,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	ClearDueDate      bool       `json:"clear_due_date,omitempty"`
	EstimatedDuration *int       `json:"estimated_duration,omitempty"`
	Status            *string    `json:"status,omitempty"`
}

// Update applies in to the owner's task.
func (s *Service) Update(ctx context.Context, owner, id string, in UpdateInput) (*models.Task, error) {
	updates := map[string]any{}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, ErrTitleRequired
		}
		updates["title"] = title
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.ClearDueDate {
		updates["due_date"] = nil
	} else if in.DueDate != nil {
		updates["due_date"] = *in.DueDate
	}
	if in.EstimatedDuration != nil {
		if !validDuration(*in.EstimatedDuration) {
			return nil, ErrInvalidDuration
		}
		updates["estimated_duration"] = *in.EstimatedDuration
	}
	if in.Status != nil {
		status, ok := models.ParseTaskStatus(*in.Status)
		if !ok {
			return nil, ErrInvalidStatus
		}
		updates["status"] = status
	}

	task, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return task, nil
	}

	if err := s.db.WithContext(ctx).Model(task).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	s.changed(ctx, events.EventTaskUpdated, events.Payload{"owner": owner, "task": id})
	return s.Get(ctx, owner, id)
}

// MarkComplete sets the task's status to DONE.
func (s *Service) MarkComplete(ctx context.Context, owner, id string) error {
	result := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("owner = ? AND id = ?", owner, id).
		Update("status", models.TaskStatusDone)
	if result.Error != nil {
		return fmt.Errorf("complete task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	s.changed(ctx, events.EventTaskCompleted, events.Payload{"owner": owner, "task": id})
	return nil
}

// Delete removes the task and any placement of it.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("owner = ? AND id = ?", owner, id).Delete(&models.Task{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("owner = ? AND task_id = ?", owner, id).Delete(&models.ScheduledTask{}).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete task: %w", err)
	}
	s.logger.Info().Str("owner", owner).Str("task", id).Msg("task deleted")
	s.changed(ctx, events.EventTaskDeleted, events.Payload{"owner": owner, "task": id})
	return nil
}

// Reorder rewrites positions so the list follows order. order must be a
// permutation of the owner's task ids.
func (s *Service) Reorder(ctx context.Context, owner string, order []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.Task{}).Where("owner = ?", owner).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if !isPermutation(ids, order) {
			return ErrInvalidOrder
		}
		for i, id := range order {
			if err := tx.Model(&models.Task{}).
				Where("owner = ? AND id = ?", owner, id).
				Update("position", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidOrder) {
			return err
		}
		return fmt.Errorf("reorder tasks: %w", err)
	}
	s.changed(ctx, events.EventTasksReorder, events.Payload{"owner": owner, "count": len(order)})
	return nil
}

// changed drops the owner's cached list before telling other components.
func (s *Service) changed(ctx context.Context, eventType events.EventType, payload events.Payload) {
	if err := s.cache.InvalidateOwner(ctx, payload.Owner()); err != nil {
		s.logger.Debug().Err(err).Msg("cache invalidation failed")
	}
	s.bus.Publish(eventType, payload)
}

func isPermutation(ids, order []string) bool {
	if len(ids) != len(order) {
		return false
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, id := range order {
		if !want[id] {
			return false
		}
		delete(want, id)
	}
	return true
}

// Get returns one of the owner's tasks.
func (s *Service) Get(ctx context.Context, owner, id string) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).Where("owner = ? AND id = ?", owner, id).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return &task, nil
}

// List returns the owner's tasks in list order.
func (s *Service) List(ctx context.Context, owner string) ([]models.Task, error) {
	if cached, ok := s.cache.GetTaskList(ctx, owner); ok {
		return fromCache(owner, cached), nil
	}

	var tasks []models.Task
	if err := s.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("position ASC, created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	if err := s.cache.SetTaskList(ctx, owner, toCache(tasks)); err != nil {
		s.logger.Debug().Err(err).Str("owner", owner).Msg("failed to cache task list")
	}
	return tasks, nil
}

// Remaining returns the owner's tasks that are not DONE, in list order.
func (s *Service) Remaining(ctx context.Context, owner string) ([]models.Task, error) {
	all, err := s.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	remaining := make([]models.Task, 0, len(all))
	for _, t := range all {
		if t.Status != models.TaskStatusDone {
			remaining = append(remaining, t)
		}
	}
	return remaining, nil
}

// DeleteAllForUser removes every task of the owner.
func (s *Service) DeleteAllForUser(ctx context.Context, owner string) (int64, error) {
	result := s.db.WithContext(ctx).Where("owner = ?", owner).Delete(&models.Task{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete tasks: %w", result.Error)
	}
	s.logger.Info().Str("owner", owner).Int64("deleted", result.RowsAffected).Msg("tasks purged")
	s.changed(ctx, events.EventTaskDeleted, events.Payload{"owner": owner, "count": result.RowsAffected})
	return result.RowsAffected, nil
}

func toCache(tasks []models.Task) []cache.CachedTask {
	out := make([]cache.CachedTask, len(tasks))
	for i, t := range tasks {
		out[i] = cache.CachedTask{
			ID:                t.ID,
			Title:             t.Title,
			Description:       t.Description,
			DueDate:           t.DueDate,
			EstimatedDuration: t.EstimatedDuration,
			Status:            string(t.Status),
			Position:          t.Position,
		}
	}
	return out
}

func fromCache(owner string, cached []cache.CachedTask) []models.Task {
	out := make([]models.Task, len(cached))
	for i, t := range cached {
		out[i] = models.Task{
			ID:                t.ID,
			Owner:             owner,
			Title:             t.Title,
			Description:       t.Description,
			DueDate:           t.DueDate,
			EstimatedDuration: t.EstimatedDuration,
			Status:            models.TaskStatus(t.Status),
			Position:          t.Position,
		}
	}
	return out
}

func validDuration(minutes int) bool {
	return minutes >= 0 && int64(minutes) <= planner.MaxTaskDuration
}
