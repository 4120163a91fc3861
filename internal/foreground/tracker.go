// Package foreground keeps a short usage history of focused applications so a
// capture can be labelled with whatever the user was last looking at.
package foreground

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

const (
	DefaultSampleInterval = time.Second
	// History older than this is pruned on each sample.
	retention = 10 * time.Minute
)

// ErrNoUsage is returned when no application was seen inside the window.
var ErrNoUsage = apperrors.New(apperrors.CodeNotFound, "no foreground application in window")

// Sampler reports the currently focused application.
type Sampler interface {
	Active(ctx context.Context) (string, error)
	Close() error
}

// Tracker samples the focused application and remembers when each was last
// used.
type Tracker struct {
	sampler  Sampler
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu       sync.RWMutex
	lastUsed map[string]time.Time
}

// NewTracker wraps sampler. interval <= 0 uses DefaultSampleInterval.
func NewTracker(sampler Sampler, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Tracker{
		sampler:  sampler,
		interval: interval,
		now:      time.Now,
		log:      slog.Default().With("component", "foreground"),
		lastUsed: make(map[string]time.Time),
	}
}

// Run samples until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		t.Sample(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sample records the current foreground application once.
func (t *Tracker) Sample(ctx context.Context) {
	name, err := t.sampler.Active(ctx)
	if err != nil || name == "" {
		if err != nil {
			t.log.Debug("foreground sample failed", "error", err)
		}
		return
	}
	t.Touch(name, t.now())
}

// Touch marks name as used at ts.
func (t *Tracker) Touch(name string, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.lastUsed[name]; !ok || ts.After(prev) {
		t.lastUsed[name] = ts
	}
	cutoff := ts.Add(-retention)
	for n, last := range t.lastUsed {
		if last.Before(cutoff) {
			delete(t.lastUsed, n)
		}
	}
}

// MostRecent returns the application with the latest use inside the
// trailing window. It samples first so the current focus is included.
func (t *Tracker) MostRecent(ctx context.Context, window time.Duration) (string, error) {
	t.Sample(ctx)

	now := t.now()
	since := now.Add(-window)

	t.mu.RLock()
	defer t.mu.RUnlock()
	var (
		best     string
		bestTime time.Time
	)
	for name, last := range t.lastUsed {
		if last.Before(since) {
			continue
		}
		if best == "" || last.After(bestTime) {
			best, bestTime = name, last
		}
	}
	if best == "" {
		return "", ErrNoUsage
	}
	return best, nil
}

// Close releases the sampler.
func (t *Tracker) Close() error {
	return t.sampler.Close()
}
