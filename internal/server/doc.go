// Package server implements the WebSocket ingest endpoint for capture clients and
// the HTTP API for monitoring and management, including Prometheus metrics,
// system inventory, and buffer-duration recommendation endpoints.
package server
