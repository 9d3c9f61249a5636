// Package app is the application layer. It orchestrates the session
// lifecycle: admission and start, attaching signaling connections, stopping
// and terminating sessions, and the background reapers.
package app
