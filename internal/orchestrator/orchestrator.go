package orchestrator

import (
	"time"

	"github.com/GriffinCanCode/oneshot/internal/relay"
)

// EventType classifies UI events.
type EventType string

const (
	EventStatus  EventType = "status"
	EventTrigger EventType = "trigger"
	EventOutcome EventType = "outcome"
	EventToast   EventType = "toast"
)

// Event is a single UI update. Only the fields relevant to Type are set.
type Event struct {
	Type     EventType
	Message  string        // status / toast text
	Enabled  bool          // trigger state
	Record   relay.Record  // outcome
	Duration time.Duration // toast duration
}

// Snapshot is the externally visible orchestrator state.
type Snapshot struct {
	TriggerEnabled bool   `json:"triggerEnabled"`
	Busy           bool   `json:"busy"`
	Foreground     bool   `json:"foreground"`
	Status         string `json:"status"`
	Permission     string `json:"permission,omitempty"`
}

type triggerState struct {
	enabled bool
	status  string
}
