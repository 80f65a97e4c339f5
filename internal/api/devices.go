package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
)

// deviceView is a device plus whether an optimistic write still masks it.
type deviceView struct {
	device.Device
	Pending bool `json:"pending"`
}

// ToggleRequest is the body of POST /devices/{id}/toggle.
type ToggleRequest struct {
	IsOn *bool `json:"isOn"`
}

// BatchToggleRequest is the body of POST /devices/batch-toggle.
type BatchToggleRequest struct {
	IDs  []string `json:"ids"`
	IsOn *bool    `json:"isOn"`
}

// handleState returns the full store state as subscribers see it.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sync.State())
}

// handleListDevices returns the current view, with optional query filters.
//
// Query parameters:
//   - type: comma-separated device types (light, switch, ...)
//   - room: exact room name, case-insensitive
//   - online: "true" keeps only online devices
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter device.Filter
	if raw := q.Get("type"); raw != "" {
		types, err := device.ParseTypes(strings.Split(raw, ","))
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		filter.Types = types
	}
	filter.OnlineOnly = q.Get("online") == "true"
	room := q.Get("room")

	st := s.sync.State()
	views := make([]deviceView, 0, len(st.Devices))
	for _, d := range filter.Apply(st.Devices) {
		if room != "" && !strings.EqualFold(d.Room, room) {
			continue
		}
		views = append(views, deviceView{Device: d, Pending: s.sync.IsPending(d.ID)})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices":   views,
		"count":     len(views),
		"isLoading": st.IsLoading,
	})
}

// handleGetDevice returns one device by id.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, ok := s.sync.Device(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, deviceView{Device: d, Pending: s.sync.IsPending(id)})
}

// handleToggleDevice sets one device on or off and returns the settled
// device once the backend has answered.
func (s *Server) handleToggleDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.IsOn == nil {
		writeBadRequest(w, "isOn is required")
		return
	}

	if err := s.sync.ToggleDevice(r.Context(), id, *req.IsOn); err != nil {
		s.writeSyncError(w, err)
		return
	}

	d, ok := s.sync.Device(id)
	if !ok {
		// Removed by a poll that landed after the write settled.
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "isOn": *req.IsOn})
		return
	}
	writeJSON(w, http.StatusOK, deviceView{Device: d, Pending: s.sync.IsPending(id)})
}

// handleBatchToggle sets several devices to the same state in one request.
func (s *Server) handleBatchToggle(w http.ResponseWriter, r *http.Request) {
	var req BatchToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.IsOn == nil {
		writeBadRequest(w, "isOn is required")
		return
	}

	if err := s.sync.BatchToggle(r.Context(), req.IDs, *req.IsOn); err != nil {
		s.writeSyncError(w, err)
		return
	}

	views := make([]deviceView, 0, len(req.IDs))
	for _, id := range req.IDs {
		if d, ok := s.sync.Device(id); ok {
			views = append(views, deviceView{Device: d, Pending: s.sync.IsPending(id)})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}
