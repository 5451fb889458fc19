/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// ICalExport contains a rendered calendar.
type ICalExport struct {
	Data        []byte
	Filename    string
	ContentType string
}

type scheduledRow struct {
	ID           string
	TaskID       string
	Title        string
	Description  string
	PlannedStart time.Time
	PlannedEnd   time.Time
}

// ExportICal renders the owner's planned tasks and busy slots in [from, to)
// as a VCALENDAR document.
func (s *Service) ExportICal(ctx context.Context, owner string, from, to time.Time) (*ICalExport, error) {
	var planned []scheduledRow
	if err := s.db.WithContext(ctx).
		Table("scheduled_tasks").
		Select("scheduled_tasks.id, scheduled_tasks.task_id, tasks.title, tasks.description, scheduled_tasks.planned_start, scheduled_tasks.planned_end").
		Joins("LEFT JOIN tasks ON tasks.id = scheduled_tasks.task_id AND tasks.owner = scheduled_tasks.owner").
		Where("scheduled_tasks.owner = ? AND scheduled_tasks.planned_start < ? AND scheduled_tasks.planned_end > ?", owner, to.UTC(), from.UTC()).
		Order("scheduled_tasks.planned_start ASC").
		Scan(&planned).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch scheduled tasks: %w", err)
	}

	slots, err := s.SlotsBetween(ctx, owner, from, to)
	if err != nil {
		return nil, err
	}

	stamp := formatICalTime(time.Now())
	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Day Planner//Plan Export//EN\r\n")
	buf.WriteString("X-WR-CALNAME:Day Plan\r\n")
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	for _, row := range planned {
		title := row.Title
		if title == "" {
			title = "Task " + row.TaskID
		}
		writeEvent(&buf, row.ID+"@dayplanner", stamp, row.PlannedStart, row.PlannedEnd, title, row.Description, "TASK")
	}
	for _, slot := range slots {
		summary := slot.Description
		if summary == "" {
			summary = "Busy"
		}
		uid := fmt.Sprintf("%s-%d@dayplanner", slot.ID, slot.StartTime.Unix())
		writeEvent(&buf, uid, stamp, slot.StartTime, slot.EndTime, summary, "", "BUSY")
	}

	buf.WriteString("END:VCALENDAR\r\n")

	s.logger.Debug().Str("owner", owner).Int("tasks", len(planned)).Int("slots", len(slots)).Msg("plan exported")

	return &ICalExport{
		Data:        buf.Bytes(),
		Filename:    fmt.Sprintf("plan-%s-to-%s.ics", from.Format("2006-01-02"), to.Format("2006-01-02")),
		ContentType: "text/calendar; charset=utf-8",
	}, nil
}

func writeEvent(buf *bytes.Buffer, uid, stamp string, start, end time.Time, summary, description, category string) {
	buf.WriteString("BEGIN:VEVENT\r\n")
	fmt.Fprintf(buf, "UID:%s\r\n", uid)
	fmt.Fprintf(buf, "DTSTAMP:%s\r\n", stamp)
	fmt.Fprintf(buf, "DTSTART:%s\r\n", formatICalTime(start))
	fmt.Fprintf(buf, "DTEND:%s\r\n", formatICalTime(end))
	fmt.Fprintf(buf, "SUMMARY:%s\r\n", escapeICalText(summary))
	if description != "" {
		fmt.Fprintf(buf, "DESCRIPTION:%s\r\n", escapeICalText(description))
	}
	fmt.Fprintf(buf, "CATEGORIES:%s\r\n", category)
	if category == "BUSY" {
		buf.WriteString("TRANSP:OPAQUE\r\n")
	}
	buf.WriteString("END:VEVENT\r\n")
}

// ImportResult summarizes a calendar import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// SyncICal replaces the owner's external slots with the events of an
// iCalendar document. Events without a usable time range are skipped.
func (s *Service) SyncICal(ctx context.Context, owner string, data io.Reader) (*ImportResult, error) {
	parsed, err := parseICalEvents(data, s.loc)
	if err != nil {
		return nil, fmt.Errorf("failed to read iCal data: %w", err)
	}

	result := &ImportResult{}
	evs := make([]CalendarEvent, 0, len(parsed))
	for _, ev := range parsed {
		if err := ev.validate(); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ev.Description, err))
			continue
		}
		evs = append(evs, ev)
	}

	n, err := s.SyncCalendar(ctx, owner, evs)
	if err != nil {
		return nil, err
	}
	result.Imported = n
	return result, nil
}

// parseICalEvents reads VEVENT blocks. Floating times are read in loc.
func parseICalEvents(r io.Reader, loc *time.Location) ([]CalendarEvent, error) {
	lines, err := unfoldICal(r)
	if err != nil {
		return nil, err
	}

	var out []CalendarEvent
	var current *CalendarEvent
	for _, line := range lines {
		line = strings.TrimSpace(line)

		switch {
		case line == "BEGIN:VEVENT":
			current = &CalendarEvent{}
		case line == "END:VEVENT" && current != nil:
			out = append(out, *current)
			current = nil
		case current == nil:
		case strings.HasPrefix(line, "SUMMARY"):
			current.Description = unescapeICalText(propertyValue(line))
		case strings.HasPrefix(line, "DTSTART"):
			current.Start = parseICalTime(line, loc)
		case strings.HasPrefix(line, "DTEND"):
			current.End = parseICalTime(line, loc)
		case strings.HasPrefix(line, "RRULE:"):
			current.RRule = strings.TrimPrefix(line, "RRULE:")
		}
	}
	return out, nil
}

// unfoldICal joins continuation lines, which start with a space or tab,
// onto the content line before them.
func unfoldICal(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if len(lines) > 0 && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func propertyValue(line string) string {
	if idx := strings.Index(line, ":"); idx >= 0 {
		return line[idx+1:]
	}
	return ""
}

// parseICalTime parses a DTSTART/DTEND line, honoring a TZID parameter.
func parseICalTime(line string, loc *time.Location) time.Time {
	name, value, _ := strings.Cut(line, ":")
	if _, tzid, ok := strings.Cut(name, "TZID="); ok {
		if zone, err := time.LoadLocation(strings.Trim(tzid, `"`)); err == nil {
			loc = zone
		}
	}

	if t, err := time.Parse("20060102T150405Z", value); err == nil {
		return t
	}
	for _, layout := range []string{"20060102T150405", "20060102"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func unescapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\,", ",")
	s = strings.ReplaceAll(s, "\\;", ";")
	s = strings.ReplaceAll(s, "\\\\", "\\")
	return s
}
