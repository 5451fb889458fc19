/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"
	"gorm.io/gorm"

	"github.com/KaliNikolova/dayplanner/internal/events"
	"github.com/KaliNikolova/dayplanner/internal/models"
	"github.com/KaliNikolova/dayplanner/internal/planner"
)

var (
	ErrNotFound      = errors.New("busy slot not found")
	ErrSlotNotManual = errors.New("only manually blocked slots can be changed")
	ErrInvalidRRule  = errors.New("invalid recurrence rule")
)

// Service manages the busy slots of each user.
type Service struct {
	db     *gorm.DB
	bus    events.Publisher
	loc    *time.Location
	logger zerolog.Logger
}

// NewService creates a busy slot service. Recurrences are expanded in loc.
func NewService(db *gorm.DB, bus events.Publisher, loc *time.Location, logger zerolog.Logger) *Service {
	if bus == nil {
		bus = events.Nop{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		db:     db,
		bus:    bus,
		loc:    loc,
		logger: logger.With().Str("component", "schedule").Logger(),
	}
}

// SlotInput describes a busy period. RRule is optional.
type SlotInput struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description"`
	RRule       string    `json:"rrule,omitempty"`
}

func (in SlotInput) rule() string {
	return strings.TrimPrefix(strings.TrimSpace(in.RRule), "RRULE:")
}

func (in SlotInput) validate() error {
	if _, err := planner.NewTimeRange(in.Start, in.End); err != nil {
		return err
	}
	if rule := in.rule(); rule != "" {
		if _, err := rrule.StrToRRule(rule); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRRule, err)
		}
	}
	return nil
}

// BlockTime stores a manual busy slot.
func (s *Service) BlockTime(ctx context.Context, owner string, in SlotInput) (*models.BusySlot, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	slot := &models.BusySlot{
		ID:          uuid.NewString(),
		Owner:       owner,
		StartTime:   in.Start.UTC(),
		EndTime:     in.End.UTC(),
		Description: strings.TrimSpace(in.Description),
		Origin:      models.SlotOriginManual,
		RRule:       in.rule(),
	}
	if err := s.db.WithContext(ctx).Create(slot).Error; err != nil {
		return nil, fmt.Errorf("create busy slot: %w", err)
	}

	s.logger.Info().Str("owner", owner).Str("slot", slot.ID).Bool("recurring", slot.Recurring()).Msg("time blocked")
	s.bus.Publish(events.EventSlotCreated, events.Payload{"owner": owner, "slot": slot.ID})
	return slot, nil
}

// UpdateSlot replaces the times and description of a manual slot.
func (s *Service) UpdateSlot(ctx context.Context, owner, id string, in SlotInput) (*models.BusySlot, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	slot, err := s.get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if slot.Origin != models.SlotOriginManual {
		return nil, ErrSlotNotManual
	}

	slot.StartTime = in.Start.UTC()
	slot.EndTime = in.End.UTC()
	slot.Description = strings.TrimSpace(in.Description)
	slot.RRule = in.rule()
	if err := s.db.WithContext(ctx).Save(slot).Error; err != nil {
		return nil, fmt.Errorf("update busy slot: %w", err)
	}

	s.bus.Publish(events.EventSlotUpdated, events.Payload{"owner": owner, "slot": id})
	return slot, nil
}

// DeleteSlot removes one of the owner's slots.
func (s *Service) DeleteSlot(ctx context.Context, owner, id string) error {
	result := s.db.WithContext(ctx).Where("owner = ? AND id = ?", owner, id).Delete(&models.BusySlot{})
	if result.Error != nil {
		return fmt.Errorf("delete busy slot: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	s.bus.Publish(events.EventSlotDeleted, events.Payload{"owner": owner, "slot": id})
	return nil
}

// CalendarEvent is a busy period reported by an external calendar.
type CalendarEvent = SlotInput

// SyncCalendar replaces every external slot of the owner with evs.
func (s *Service) SyncCalendar(ctx context.Context, owner string, evs []CalendarEvent) (int, error) {
	for i, ev := range evs {
		if err := ev.validate(); err != nil {
			return 0, fmt.Errorf("calendar event %d: %w", i, err)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner = ? AND origin = ?", owner, models.SlotOriginExternal).
			Delete(&models.BusySlot{}).Error; err != nil {
			return err
		}
		if len(evs) == 0 {
			return nil
		}
		slots := make([]models.BusySlot, len(evs))
		for i, ev := range evs {
			slots[i] = models.BusySlot{
				ID:          uuid.NewString(),
				Owner:       owner,
				StartTime:   ev.Start.UTC(),
				EndTime:     ev.End.UTC(),
				Description: strings.TrimSpace(ev.Description),
				Origin:      models.SlotOriginExternal,
				RRule:       ev.rule(),
			}
		}
		return tx.CreateInBatches(slots, 100).Error
	})
	if err != nil {
		return 0, fmt.Errorf("sync calendar: %w", err)
	}

	s.logger.Info().Str("owner", owner).Int("events", len(evs)).Msg("calendar synced")
	s.bus.Publish(events.EventCalendarSynced, events.Payload{"owner": owner, "count": len(evs)})
	return len(evs), nil
}

// Slots returns every slot of the owner ordered by start.
func (s *Service) Slots(ctx context.Context, owner string) ([]models.BusySlot, error) {
	var slots []models.BusySlot
	if err := s.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("start_time ASC").
		Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("list busy slots: %w", err)
	}
	return slots, nil
}

// SlotsBetween returns the owner's slots that overlap [from, to), with
// recurring slots expanded into one entry per occurrence.
func (s *Service) SlotsBetween(ctx context.Context, owner string, from, to time.Time) ([]models.BusySlot, error) {
	var stored []models.BusySlot
	if err := s.db.WithContext(ctx).
		Where("owner = ? AND start_time < ?", owner, to.UTC()).
		Where("(end_time > ? OR (rrule IS NOT NULL AND rrule <> ''))", from.UTC()).
		Order("start_time ASC").
		Find(&stored).Error; err != nil {
		return nil, fmt.Errorf("query busy slots: %w", err)
	}

	var out []models.BusySlot
	for _, slot := range stored {
		if !slot.Recurring() {
			out = append(out, slot)
			continue
		}
		occurrences, err := s.expand(slot, from, to)
		if err != nil {
			s.logger.Warn().Err(err).Str("slot", slot.ID).Msg("skipping slot with bad recurrence")
			continue
		}
		out = append(out, occurrences...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// BusyRanges returns the owner's busy time overlapping [from, to).
func (s *Service) BusyRanges(ctx context.Context, owner string, from, to time.Time) ([]planner.TimeRange, error) {
	slots, err := s.SlotsBetween(ctx, owner, from, to)
	if err != nil {
		return nil, err
	}
	ranges := make([]planner.TimeRange, 0, len(slots))
	for _, slot := range slots {
		ranges = append(ranges, planner.TimeRange{Start: slot.StartTime, End: slot.EndTime})
	}
	return ranges, nil
}

// expand lists the occurrences of a recurring slot that overlap [from, to).
// The rule is evaluated in the service location so wall-clock times survive
// daylight saving changes.
func (s *Service) expand(slot models.BusySlot, from, to time.Time) ([]models.BusySlot, error) {
	rr, err := rrule.StrToRRule(slot.RRule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRRule, err)
	}
	length := slot.EndTime.Sub(slot.StartTime)
	rr.DTStart(slot.StartTime.In(s.loc))

	var out []models.BusySlot
	for _, start := range rr.Between(from.Add(-length), to, true) {
		end := start.Add(length)
		if !start.Before(to) || !end.After(from) {
			continue
		}
		occ := slot
		occ.StartTime = start
		occ.EndTime = end
		out = append(out, occ)
	}
	return out, nil
}

// DeleteAllForUser removes every slot of the owner.
func (s *Service) DeleteAllForUser(ctx context.Context, owner string) (int64, error) {
	result := s.db.WithContext(ctx).Where("owner = ?", owner).Delete(&models.BusySlot{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete busy slots: %w", result.Error)
	}
	s.logger.Info().Str("owner", owner).Int64("deleted", result.RowsAffected).Msg("busy slots purged")
	return result.RowsAffected, nil
}

func (s *Service) get(ctx context.Context, owner, id string) (*models.BusySlot, error) {
	var slot models.BusySlot
	err := s.db.WithContext(ctx).Where("owner = ? AND id = ?", owner, id).First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load busy slot: %w", err)
	}
	return &slot, nil
}
