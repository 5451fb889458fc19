/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/KaliNikolova/dayplanner/internal/tasks"
)

type taskUpdateRequest struct {
	ID string `json:"id"`
	tasks.UpdateInput
}

type reorderRequest struct {
	Order []string `json:"order"`
}

func (a *API) handleTasksList(w http.ResponseWriter, r *http.Request) {
	list, err := a.tasks.List(r.Context(), owner(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleTasksRemaining(w http.ResponseWriter, r *http.Request) {
	list, err := a.tasks.Remaining(r.Context(), owner(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req tasks.CreateInput
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	task, err := a.tasks.Create(r.Context(), owner(r), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (a *API) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	var req taskUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id_required")
		return
	}

	task, err := a.tasks.Update(r.Context(), owner(r), req.ID, req.UpdateInput)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *API) handleTasksReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := a.tasks.Reorder(r.Context(), owner(r), req.Order); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTaskComplete(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decodeJSON(r, &req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "id_required")
		return
	}
	if err := a.tasks.MarkComplete(r.Context(), owner(r), req.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decodeJSON(r, &req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "id_required")
		return
	}
	if err := a.tasks.Delete(r.Context(), owner(r), req.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTasksDeleteAll(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.tasks.DeleteAllForUser(r.Context(), owner(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
