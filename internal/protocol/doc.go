// Package protocol defines the WebSocket wire protocol between capture clients
// and the service: JSON control envelopes, binary PCM frame decoding, and the
// server-side event payloads pushed back to clients.
package protocol
