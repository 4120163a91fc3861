// Package orchestrator drives capture requests from a UI trigger through
// authorization, a countdown and the capture coordinator, and turns relay
// outcomes into UI events and notifications.
package orchestrator

import "time"

// Orchestrator configuration constants
const (
	// Countdown between authorization and capture
	DefaultCountdown = 3 * time.Second
	CountdownTick    = time.Second

	// Buffered UI events before new ones are dropped
	EventBuffer = 64

	// Subscription name in relay logs
	subscriberName = "orchestrator"
)

// Status texts shown to the UI.
const (
	StatusIdle       = "Ready"
	StatusCapturing  = "Capturing..."
	StatusDenied     = "Screen capture permission denied"
	statusCountdownF = "Preparing capture, %d s..."
)
