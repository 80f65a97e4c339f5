// Package device defines the dashboard's view of a home-automation device
// and the catalog entries (scenes, routines) that act on several devices.
//
// The types mirror the backend's JSON so they can be decoded directly from
// the REST API and re-encoded unchanged for MQTT, WebSocket and CLI output.
//
// # Key Types
//
//   - Device: one entity, identified by ID, replaced wholesale on update
//   - Filter: selects which backend devices appear on the dashboard
//   - Scene, Routine: catalog entries executed by ID
//   - SyncReport: result of asking the backend to re-import devices
//
// Device values held by the synchronizer are shared between readers, so
// mutate a DeepCopy, never the original.
package device
