/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/KaliNikolova/dayplanner/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Task{},
		&models.BusySlot{},
		&models.ScheduledTask{},
		&models.PlanRun{},
		&models.FocusState{},
	); err != nil {
		return err
	}

	if err := applyPostgresRangeGuards(database); err != nil {
		return err
	}
	if err := normalizeLegacyTaskStatuses(database); err != nil {
		return err
	}

	return nil
}

// normalizeLegacyTaskStatuses upper-cases statuses written by older clients.
func normalizeLegacyTaskStatuses(database *gorm.DB) error {
	return database.Exec(
		"UPDATE tasks SET status = UPPER(status) WHERE status <> UPPER(status)",
	).Error
}

// applyPostgresRangeGuards rejects inverted ranges and overlapping
// placements for the same owner at the storage layer.
func applyPostgresRangeGuards(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
CREATE OR REPLACE FUNCTION prevent_scheduled_task_overlap()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
  IF NEW.planned_end <= NEW.planned_start THEN
    RAISE EXCEPTION 'planned end must be after planned start'
      USING ERRCODE = '23514';
  END IF;

  IF EXISTS (
    SELECT 1
    FROM scheduled_tasks st
    WHERE st.owner = NEW.owner
      AND st.id <> NEW.id
      AND tstzrange(st.planned_start, st.planned_end, '[)') && tstzrange(NEW.planned_start, NEW.planned_end, '[)')
  ) THEN
    RAISE EXCEPTION 'overlapping placements are not allowed for owner %', NEW.owner
      USING ERRCODE = '23514';
  END IF;

  RETURN NEW;
END;
$$;

DROP TRIGGER IF EXISTS trg_prevent_scheduled_task_overlap ON scheduled_tasks;

CREATE TRIGGER trg_prevent_scheduled_task_overlap
BEFORE INSERT OR UPDATE OF owner, planned_start, planned_end
ON scheduled_tasks
FOR EACH ROW
EXECUTE FUNCTION prevent_scheduled_task_overlap();

ALTER TABLE busy_slots DROP CONSTRAINT IF EXISTS chk_busy_slots_range;
ALTER TABLE busy_slots ADD CONSTRAINT chk_busy_slots_range CHECK (end_time > start_time);
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres range guards: %w", err)
	}

	return nil
}
