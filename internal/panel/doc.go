// Package panel serves the browser dashboard embedded in the binary.
//
// The page is plain HTML and JavaScript. It reads the device view from the
// local API, follows state.changed over the WebSocket and posts toggles
// back, so a browser behaves like the terminal dashboard. Unknown paths
// are answered with index.html.
package panel
