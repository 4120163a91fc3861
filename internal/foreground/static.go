package foreground

import "context"

// StaticSampler always reports the same application. Used when no window
// system is reachable and in tests.
type StaticSampler string

func (s StaticSampler) Active(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoUsage
	}
	return string(s), nil
}

func (StaticSampler) Close() error { return nil }
