/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/KaliNikolova/dayplanner/internal/scheduler"
)

type nextTaskRequest struct {
	CompletedTask string `json:"completed_task"`
}

func (a *API) handlePlanDay(w http.ResponseWriter, r *http.Request) {
	a.plan(w, r, a.scheduler.PlanDay)
}

func (a *API) handleReplan(w http.ResponseWriter, r *http.Request) {
	a.plan(w, r, a.scheduler.Replan)
}

type planFunc func(ctx context.Context, owner string, req scheduler.PlanRequest) (*scheduler.PlanOutcome, error)

func (a *API) plan(w http.ResponseWriter, r *http.Request, run planFunc) {
	var req scheduler.PlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	out, err := run(r.Context(), owner(r), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleClearDay(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.scheduler.ClearDay(r.Context(), owner(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (a *API) handlePlannerDeleteAll(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.scheduler.DeleteAllForUser(r.Context(), owner(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (a *API) handleNextTask(w http.ResponseWriter, r *http.Request) {
	var req nextTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.CompletedTask == "" {
		writeError(w, http.StatusBadRequest, "completed_task_required")
		return
	}

	next, err := a.scheduler.NextTask(r.Context(), owner(r), req.CompletedTask)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"next_task": next})
}

func (a *API) handleScheduledTasks(w http.ResponseWriter, r *http.Request) {
	placements, err := a.scheduler.ScheduledTasks(r.Context(), owner(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, placements)
}

func (a *API) handleICal(w http.ResponseWriter, r *http.Request) {
	from, to, err := timeRangeQuery(r, a.scheduler.Now(), a.scheduler.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range")
		return
	}

	export, err := a.slots.ExportICal(r.Context(), owner(r), from, to)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func (a *API) handleFocusGet(w http.ResponseWriter, r *http.Request) {
	current, err := a.scheduler.CurrentTask(r.Context(), owner(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task": current})
}

func (a *API) handleFocusSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Task string `json:"task"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Task == "" {
		writeError(w, http.StatusBadRequest, "task_required")
		return
	}
	if err := a.scheduler.SetCurrentTask(r.Context(), owner(r), req.Task); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task": req.Task})
}

func (a *API) handleFocusClear(w http.ResponseWriter, r *http.Request) {
	if err := a.scheduler.ClearCurrentTask(r.Context(), owner(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task": ""})
}
