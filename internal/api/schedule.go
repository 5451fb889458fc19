/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"io"
	"net/http"

	"github.com/KaliNikolova/dayplanner/internal/schedule"
)

type slotUpdateRequest struct {
	ID string `json:"id"`
	schedule.SlotInput
}

type idRequest struct {
	ID string `json:"id"`
}

type syncCalendarRequest struct {
	Events []schedule.CalendarEvent `json:"events"`
}

func (a *API) handleSlotsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("from") == "" && q.Get("to") == "" {
		slots, err := a.slots.Slots(r.Context(), owner(r))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, slots)
		return
	}

	from, to, err := timeRangeQuery(r, a.scheduler.Now(), a.scheduler.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range")
		return
	}
	slots, err := a.slots.SlotsBetween(r.Context(), owner(r), from, to)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (a *API) handleBlockTime(w http.ResponseWriter, r *http.Request) {
	var req schedule.SlotInput
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	slot, err := a.slots.BlockTime(r.Context(), owner(r), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (a *API) handleUpdateSlot(w http.ResponseWriter, r *http.Request) {
	var req slotUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id_required")
		return
	}

	slot, err := a.slots.UpdateSlot(r.Context(), owner(r), req.ID, req.SlotInput)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (a *API) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id_required")
		return
	}
	if err := a.slots.DeleteSlot(r.Context(), owner(r), req.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSyncCalendar(w http.ResponseWriter, r *http.Request) {
	var req syncCalendarRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	n, err := a.slots.SyncCalendar(r.Context(), owner(r), req.Events)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"synced": n})
}

func (a *API) handleImportICal(w http.ResponseWriter, r *http.Request) {
	result, err := a.slots.SyncICal(r.Context(), owner(r), io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleSlotsDeleteAll(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.slots.DeleteAllForUser(r.Context(), owner(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
