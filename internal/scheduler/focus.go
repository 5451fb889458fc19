/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/KaliNikolova/dayplanner/internal/events"
	"github.com/KaliNikolova/dayplanner/internal/models"
)

// SetCurrentTask records the task the owner is working on.
func (s *Service) SetCurrentTask(ctx context.Context, owner, taskID string) error {
	return s.setCurrent(ctx, owner, taskID)
}

// ClearCurrentTask forgets the owner's current task.
func (s *Service) ClearCurrentTask(ctx context.Context, owner string) error {
	return s.setCurrent(ctx, owner, "")
}

// CurrentTask returns the owner's current task, or "" when none is set.
func (s *Service) CurrentTask(ctx context.Context, owner string) (string, error) {
	var state models.FocusState
	err := s.db.WithContext(ctx).Where("owner = ?", owner).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load focus: %w", err)
	}
	return state.TaskID, nil
}

func (s *Service) setCurrent(ctx context.Context, owner, taskID string) error {
	if err := setFocus(s.db.WithContext(ctx), owner, taskID); err != nil {
		return err
	}
	s.bus.Publish(events.EventFocusChanged, events.Payload{"owner": owner, "task": taskID})
	return nil
}

func setFocus(tx *gorm.DB, owner, taskID string) error {
	state := models.FocusState{Owner: owner, TaskID: taskID, UpdatedAt: time.Now().UTC()}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}},
		DoUpdates: clause.AssignmentColumns([]string{"task_id", "updated_at"}),
	}).Create(&state).Error
	if err != nil {
		return fmt.Errorf("store focus: %w", err)
	}
	return nil
}
