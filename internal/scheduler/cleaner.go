/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/KaliNikolova/dayplanner/internal/clock"
	"github.com/KaliNikolova/dayplanner/internal/leadership"
	"github.com/KaliNikolova/dayplanner/internal/models"
	"github.com/KaliNikolova/dayplanner/internal/telemetry"
)

// Cleaner periodically deletes placements and plan runs older than the
// retention period.
type Cleaner struct {
	db        *gorm.DB
	cron      *cron.Cron
	retention time.Duration
	leader    leadership.Leader
	clock     clock.Clock
	logger    zerolog.Logger
}

// NewCleaner schedules the cleanup job. A nil leader runs it on every instance.
func NewCleaner(db *gorm.DB, schedule string, retention time.Duration, loc *time.Location, leader leadership.Leader, clk clock.Clock, logger zerolog.Logger) (*Cleaner, error) {
	if leader == nil {
		leader = leadership.Always{}
	}
	if clk == nil {
		clk = clock.System{}
	}
	if loc == nil {
		loc = time.Local
	}
	c := &Cleaner{
		db:        db,
		cron:      cron.New(cron.WithLocation(loc)),
		retention: retention,
		leader:    leader,
		clock:     clk,
		logger:    logger.With().Str("component", "cleaner").Logger(),
	}
	if _, err := c.cron.AddFunc(schedule, c.run); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return c, nil
}

// Start runs the cron scheduler in the background.
func (c *Cleaner) Start() {
	c.logger.Info().Dur("retention", c.retention).Msg("cleanup job started")
	c.cron.Start()
}

// Stop stops the scheduler and waits for a running job.
func (c *Cleaner) Stop() {
	<-c.cron.Stop().Done()
	c.logger.Info().Msg("cleanup job stopped")
}

func (c *Cleaner) run() {
	if !c.leader.IsLeader() {
		c.logger.Debug().Msg("not leader, skipping cleanup")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := c.RunOnce(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("cleanup failed")
	}
}

// RunOnce deletes expired rows and returns how many placements went.
func (c *Cleaner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := c.clock.Now().Add(-c.retention).UTC()

	result := c.db.WithContext(ctx).Where("planned_end < ?", cutoff).Delete(&models.ScheduledTask{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete expired placements: %w", result.Error)
	}
	if err := c.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.PlanRun{}).Error; err != nil {
		return result.RowsAffected, fmt.Errorf("delete expired plan runs: %w", err)
	}

	telemetry.CleanupDeletedTotal.Add(float64(result.RowsAffected))
	if result.RowsAffected > 0 {
		c.logger.Info().Int64("deleted", result.RowsAffected).Time("cutoff", cutoff).Msg("expired placements removed")
	}
	return result.RowsAffected, nil
}
