// Package remote is the REST client for the device backend.
//
// Every request carries the session's bearer token. Responses with status
// 401 or 403 become *devicesync.AuthError; any other status of 400 or more,
// transport failures and undecodable bodies become *devicesync.NetworkError
// carrying at most 256 bytes of the response body.
//
// Endpoints, relative to the configured base URL:
//
//	GET   devices/                      list devices
//	PATCH devices/{id}/                 {"isOn": bool}
//	POST  devices/batch_toggle/         {"ids": [...], "isOn": bool}
//	POST  devices/sync/                 re-import from the upstream hub
//	GET   {scenes}/                     list scenes
//	POST  {scenes}/{id}/execute/        run a scene
//	GET   {routines}/                   list routines
//	POST  {routines}/{id}/execute/      run a routine
package remote
