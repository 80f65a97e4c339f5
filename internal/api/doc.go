// Package api serves the synchronizer over a local HTTP API and WebSocket.
//
// It lets wall panels, scripts and other dashboards that cannot embed the
// Go library read the merged device view and issue mutations through the
// same optimistic path the TUI uses:
//
//	GET  /api/v1/state                 full store state
//	GET  /api/v1/devices               current devices (?type=&room=&online=)
//	POST /api/v1/devices/{id}/toggle   {"isOn": true}
//	POST /api/v1/devices/batch-toggle  {"ids": [...], "isOn": false}
//	POST /api/v1/scenes/{id}/execute
//	POST /api/v1/routines/{id}/execute
//	POST /api/v1/refresh | /api/v1/sync
//	GET  /api/v1/sync/last | /api/v1/mutations?limit=
//	GET  /api/v1/ws                    live "state.changed" events
//
// Synchronizer errors map to status codes in one place (writeSyncError):
// validation failures are 400 (404 for an unknown device), refused
// credentials 401, backend failures 502 and a closed synchronizer 503.
//
// When api.auth_token is set every route except /health requires it as a
// bearer token, or as ?token= on the WebSocket handshake. The browser
// dashboard under /panel/ is static and public; it asks for the token
// itself.
//
// Lifecycle follows the other infrastructure components:
//
//	srv, err := api.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package api
