// Package server provides the HTTP and WebSocket surfaces of the capture
// service.
package server

import "time"

// Server configuration constants
const (
	// Per-connection WebSocket rate limit
	RateLimitMessages = 10          // burst of inbound messages per connection
	RateLimitWindow   = time.Second // window the burst refills over

	// Server-wide limit on REST capture requests
	CaptureRequestsPerSecond = 2
	CaptureRequestBurst      = 4

	// Write timeout for a single WebSocket message
	WriteTimeout = 5 * time.Second

	// Outbound messages queued per connection before new ones are dropped
	SendBuffer = 256
)
