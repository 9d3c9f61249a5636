// Package server is the HTTP and WebSocket surface of the portal: session
// start/stop/attach, the application catalog, the sidebar pages and the
// operational endpoints.
package server
