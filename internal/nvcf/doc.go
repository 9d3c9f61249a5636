// Package nvcf talks to the compute endpoint. It starts and stops streaming
// instances over the control plane, dials the upstream signaling WebSocket,
// and caches the deployed function inventory.
package nvcf
