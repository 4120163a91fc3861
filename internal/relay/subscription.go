package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// SubscriptionState is the polling lifecycle of a Subscription.
type SubscriptionState int

const (
	Idle SubscriptionState = iota
	Polling
)

func (s SubscriptionState) String() string {
	if s == Polling {
		return "polling"
	}
	return "idle"
}

// SubscribeOption customises a subscription.
type SubscribeOption func(*Subscription)

// Since sets the initial watermark: records stamped at or before ts are
// never delivered.
func Since(ts int64) SubscribeOption {
	return func(s *Subscription) { s.watermark.Store(ts) }
}

// Named labels the subscription in logs.
func Named(name string) SubscribeOption {
	return func(s *Subscription) { s.name = name }
}

// Subscription polls the mailbox and hands each record newer than its
// watermark to the handler exactly once. Handler calls are serialised.
type Subscription struct {
	relay    *Relay
	interval time.Duration
	handler  func(Record)
	name     string

	watermark atomic.Int64

	mu     sync.Mutex
	state  SubscriptionState
	cancel context.CancelFunc
	done   chan struct{}
}

// Start resumes polling. No-op while already polling or once the relay is
// closed.
func (s *Subscription) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Polling {
		return
	}

	s.relay.mu.Lock()
	if s.relay.closed {
		s.relay.mu.Unlock()
		return
	}
	s.relay.subs[s] = struct{}{}
	s.relay.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = Polling

	go s.loop(ctx, s.done)
}

// Cancel stops polling and waits for the loop to exit; no handler call
// starts after it returns. Safe to call repeatedly. Must not be called from
// inside the handler.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return
	}
	s.state = Idle
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.relay.forget(s)
}

// State reports whether the subscription is polling.
func (s *Subscription) State() SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Watermark is the timestamp of the newest record this subscription has seen.
func (s *Subscription) Watermark() int64 {
	return s.watermark.Load()
}

func (s *Subscription) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		// Arm before checking so a write between the check and the select
		// still wakes us.
		wake := s.relay.signal.Wait()
		s.check(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

func (s *Subscription) check(ctx context.Context) {
	log := s.relay.log.With("subscription", s.name)

	e, err := s.relay.store.Load(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("mailbox read failed", "error", err)
		}
		return
	}
	if e.Timestamp <= s.watermark.Load() {
		return
	}
	s.watermark.Store(e.Timestamp)

	rec, err := Decode(e.Result)
	if err != nil {
		log.Warn("skipping malformed outcome", "timestamp", e.Timestamp, "error", err)
		return
	}
	rec.Timestamp = e.Timestamp

	if ctx.Err() != nil {
		return
	}
	s.handler(rec)
}
