package resilience

import "time"

// Circuit breaker presets.
const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Desktop notifier: an absent notify-send fails on every call, so give
	// up quickly and probe rarely.
	NotifierThreshold         = 2
	NotifierResetTimeout      = 5 * time.Minute
	NotifierHalfOpenSuccesses = 1

	// Health probes against a local server.
	ProbeThreshold         = 3
	ProbeResetTimeout      = 10 * time.Second
	ProbeHalfOpenSuccesses = 2
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string        // used in log lines
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// DefaultConfig returns general-purpose defaults.
func DefaultConfig() Config {
	return Config{
		Name:              "default",
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// NotifierConfig guards shell-out notification backends.
func NotifierConfig() Config {
	return Config{
		Name:              "notifier",
		Threshold:         NotifierThreshold,
		ResetTimeout:      NotifierResetTimeout,
		HalfOpenSuccesses: NotifierHalfOpenSuccesses,
	}
}

// ProbeConfig guards health probes from the CLI.
func ProbeConfig() Config {
	return Config{
		Name:              "probe",
		Threshold:         ProbeThreshold,
		ResetTimeout:      ProbeResetTimeout,
		HalfOpenSuccesses: ProbeHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
