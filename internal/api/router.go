package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-dashsync/internal/panel"
)

const panelPrefix = "/panel"

// defaultMetricsPath is used when metrics are enabled without a path.
const defaultMetricsPath = "/metrics"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metricsCfg.Enabled {
		path := s.metricsCfg.Path
		if path == "" {
			path = defaultMetricsPath
		}
		r.Handle(path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	if s.cfg.Panel.Enabled {
		r.Handle(panelPrefix+"/*", http.StripPrefix(panelPrefix, panel.Handler(s.cfg.Panel.Dir)))
		r.Get(panelPrefix, redirectTo(panelPrefix+"/"))
		r.Get("/", redirectTo(panelPrefix+"/"))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/state", s.handleState)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/batch-toggle", s.handleBatchToggle)
				r.Get("/{id}", s.handleGetDevice)
				r.Post("/{id}/toggle", s.handleToggleDevice)
			})

			r.Get("/scenes", s.handleListScenes)
			r.Post("/scenes/{id}/execute", s.handleExecuteScene)
			r.Get("/routines", s.handleListRoutines)
			r.Post("/routines/{id}/execute", s.handleExecuteRoutine)

			r.Post("/refresh", s.handleRefresh)
			r.Post("/sync", s.handleSync)
			r.Get("/sync/last", s.handleLastSync)
			r.Get("/mutations", s.handleListMutations)

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

func redirectTo(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.sync.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"devices":   len(st.Devices),
		"isLoading": st.IsLoading,
		"clients":   s.hub.ClientCount(),
	})
}
