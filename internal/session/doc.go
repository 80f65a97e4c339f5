// Package session holds the bearer credential used to talk to the device
// backend and runs the logout flow when the backend refuses it.
//
// Logging in is out of scope: the token comes from configuration or the
// environment (DASHSYNC_BACKEND_TOKEN).
package session
