package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-dashsync/internal/journal"
)

func (s *Server) handleListScenes(w http.ResponseWriter, _ *http.Request) {
	scenes := s.sync.Catalog().Scenes
	writeJSON(w, http.StatusOK, map[string]any{"scenes": scenes, "count": len(scenes)})
}

func (s *Server) handleListRoutines(w http.ResponseWriter, _ *http.Request) {
	routines := s.sync.Catalog().Routines
	writeJSON(w, http.StatusOK, map[string]any{"routines": routines, "count": len(routines)})
}

// handleExecuteScene triggers a scene. Device changes it causes arrive with
// the forced refresh that follows and are pushed over the WebSocket.
func (s *Server) handleExecuteScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sync.ExecuteScene(r.Context(), id); err != nil {
		s.writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"scene_id": id, "status": "executed"})
}

func (s *Server) handleExecuteRoutine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sync.ExecuteRoutine(r.Context(), id); err != nil {
		s.writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"routine_id": id, "status": "executed"})
}

// handleRefresh runs a poll now and returns the resulting state.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.sync.RefreshNow(r.Context()); err != nil {
		s.writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sync.State())
}

// handleSync asks the backend to re-import its devices.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.sync.SyncBackend(r.Context())
	if err != nil {
		s.writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLastSync(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "journal is disabled")
		return
	}

	rec, err := s.history.LastSync(r.Context())
	if errors.Is(err, journal.ErrNoSync) {
		writeNotFound(w, "no sync has been recorded")
		return
	}
	if err != nil {
		s.logger.Error("reading last sync failed", "error", err)
		writeInternalError(w, "failed to read sync history")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleListMutations returns the newest journal entries. The repository
// applies its own default and cap to limit.
func (s *Server) handleListMutations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "journal is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.history.ListMutations(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing mutations failed", "error", err)
		writeInternalError(w, "failed to read mutation history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mutations": records, "count": len(records)})
}
