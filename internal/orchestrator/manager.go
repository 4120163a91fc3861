package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GriffinCanCode/oneshot/internal/capture"
	"github.com/GriffinCanCode/oneshot/internal/notify"
	"github.com/GriffinCanCode/oneshot/internal/permissions"
	"github.com/GriffinCanCode/oneshot/internal/relay"
	"github.com/GriffinCanCode/oneshot/internal/syncx"
	"github.com/GriffinCanCode/oneshot/internal/trace"
)

// Authorizer obtains an authorization grant for a capture.
type Authorizer interface {
	Authorize(ctx context.Context) capture.Grant
}

type prober interface {
	Probe() permissions.ProbeResult
}

// Capturer runs a capture session for a grant.
type Capturer interface {
	Capture(ctx context.Context, grant capture.Grant) (relay.Record, error)
	Busy() bool
}

// Deps are the manager's collaborators. Background may be nil.
type Deps struct {
	Authorizer Authorizer
	Capturer   Capturer
	Relay      *relay.Relay
	Background notify.Presenter
}

// Options tune the request flow.
type Options struct {
	Countdown    time.Duration // negative disables the countdown
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Manager coordinates capture requests and outcome presentation.
type Manager struct {
	deps       Deps
	opts       Options
	log        *slog.Logger
	dispatcher *notify.Dispatcher

	trigger *syncx.Guard[triggerState]

	eventsMu     sync.Mutex // guards sends against close
	events       chan Event
	eventsClosed bool

	mu      sync.Mutex
	sub     *relay.Subscription
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// New creates a manager. The trigger starts enabled.
func New(deps Deps, opts Options) *Manager {
	if opts.Countdown == 0 {
		opts.Countdown = DefaultCountdown
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Manager{
		deps:    deps,
		opts:    opts,
		log:     opts.Logger.With("component", "orchestrator"),
		trigger: syncx.NewGuard(triggerState{enabled: true, status: StatusIdle}),
		events:  make(chan Event, EventBuffer),
		stopCh:  make(chan struct{}),
	}
	m.dispatcher = notify.NewDispatcher(uiPresenter{m}, deps.Background)
	return m
}

// Events returns the UI event stream. A single consumer is expected. The
// channel is closed once Stop returns.
func (m *Manager) Events() <-chan Event { return m.events }

// emit sends an event (non-blocking). Events after Stop are discarded.
func (m *Manager) emit(ev Event) {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()
	if m.eventsClosed {
		return
	}
	select {
	case m.events <- ev:
	default:
		m.log.Debug("ui event dropped", "type", ev.Type)
	}
}

// Start subscribes to the relay. Outcomes written before Start are not
// presented.
func (m *Manager) Start(ctx context.Context) error {
	var since int64
	if rec, ok, err := m.deps.Relay.Latest(ctx); err != nil {
		trace.Logger(ctx).Warn("read latest outcome failed", "error", err)
	} else if ok {
		since = rec.Timestamp
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub == nil {
		m.sub = m.deps.Relay.Subscribe(m.opts.PollInterval, m.handleOutcome,
			relay.Since(since), relay.Named(subscriberName))
	}
	return nil
}

// Stop cancels any pending countdown, stops the subscription, waits for
// in-flight requests to finish and closes the event stream.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.stopCh)
	sub := m.sub
	m.mu.Unlock()

	m.wg.Wait()
	if sub != nil {
		sub.Cancel()
	}

	m.eventsMu.Lock()
	m.eventsClosed = true
	close(m.events)
	m.eventsMu.Unlock()
}

// SetForeground records whether a UI is attached. Outcomes are toasted while
// foregrounded and posted as notifications otherwise.
func (m *Manager) SetForeground(fg bool) {
	m.dispatcher.SetForeground(fg)
}

// TriggerEnabled reports whether a capture request would be accepted.
func (m *Manager) TriggerEnabled() bool { return m.trigger.Get().enabled }

// Snapshot returns the current state. Permission is filled in when the
// authorizer can probe the environment.
func (m *Manager) Snapshot() Snapshot {
	st := m.trigger.Get()
	snap := Snapshot{
		TriggerEnabled: st.enabled,
		Busy:           m.deps.Capturer.Busy(),
		Foreground:     m.dispatcher.Foreground(),
		Status:         st.status,
	}
	if p, ok := m.deps.Authorizer.(prober); ok {
		snap.Permission = p.Probe().Message
	}
	return snap
}

// Latest returns the last published outcome.
func (m *Manager) Latest(ctx context.Context) (relay.Record, bool, error) {
	return m.deps.Relay.Latest(ctx)
}

// RequestCapture disables the trigger and requests authorization. On
// approval the countdown and capture run in the background and nil is
// returned; the outcome arrives as an EventOutcome. A denial re-enables the
// trigger and returns capture.ErrAuthorizationDenied; a request while the
// trigger is disabled returns capture.ErrBusy.
func (m *Manager) RequestCapture(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "request_capture")
	defer span.End()
	log := trace.Logger(ctx)

	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return relay.ErrClosed
	}

	taken := m.trigger.TryUpdate(func(s *triggerState) bool {
		if !s.enabled {
			return false
		}
		s.enabled = false
		return true
	})
	if !taken {
		span.RecordError(capture.ErrBusy)
		return capture.ErrBusy
	}
	m.emit(Event{Type: EventTrigger, Enabled: false})

	grant := m.deps.Authorizer.Authorize(ctx)
	if grant.Status != capture.GrantApproved {
		log.Info("capture authorization denied")
		m.setStatus(StatusDenied)
		m.enableTrigger()
		span.RecordError(capture.ErrAuthorizationDenied)
		return capture.ErrAuthorizationDenied
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		m.enableTrigger()
		return relay.ErrClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(context.WithoutCancel(ctx), grant)
	return nil
}

func (m *Manager) run(ctx context.Context, grant capture.Grant) {
	defer m.wg.Done()
	defer m.enableTrigger()
	log := trace.Logger(ctx)

	if !m.countdown() {
		log.Info("capture cancelled during countdown")
		m.setStatus(StatusIdle)
		return
	}

	m.setStatus(StatusCapturing)
	rec, err := m.deps.Capturer.Capture(ctx, grant)
	if err != nil {
		log.Error("capture request failed", "record", rec.String(), "error", err)
		if rec.Timestamp == 0 {
			m.setStatus(notify.MsgFailed)
		}
	}
}

// countdown emits one status per remaining second. It reports false when
// the manager stops first.
func (m *Manager) countdown() bool {
	remaining := m.opts.Countdown
	for remaining > 0 {
		secs := int((remaining + CountdownTick - 1) / CountdownTick)
		m.setStatus(fmt.Sprintf(statusCountdownF, secs))
		step := min(CountdownTick, remaining)
		t := time.NewTimer(step)
		select {
		case <-m.stopCh:
			t.Stop()
			return false
		case <-t.C:
		}
		remaining -= step
	}
	select {
	case <-m.stopCh:
		return false
	default:
		return true
	}
}

func (m *Manager) handleOutcome(rec relay.Record) {
	ctx, span := trace.StartSpan(context.Background(), "present_outcome")
	defer span.End()
	span.SetAttr("success", rec.Success)

	m.emit(Event{Type: EventOutcome, Record: rec})
	m.setStatus(notify.Describe(rec).Toast)
	m.dispatcher.Handle(ctx, rec)
}

func (m *Manager) setStatus(s string) {
	m.trigger.Update(func(st *triggerState) { st.status = s })
	m.emit(Event{Type: EventStatus, Message: s})
}

func (m *Manager) enableTrigger() {
	m.trigger.Update(func(st *triggerState) { st.enabled = true })
	m.emit(Event{Type: EventTrigger, Enabled: true})
}

// uiPresenter forwards toasts to the attached UI as events.
type uiPresenter struct{ m *Manager }

func (p uiPresenter) Toast(_ context.Context, msg string, d time.Duration) error {
	p.m.emit(Event{Type: EventToast, Message: msg, Duration: d})
	return nil
}

func (p uiPresenter) Notify(ctx context.Context, title, body string) error {
	return p.Toast(ctx, title+": "+body, notify.FailureToast)
}
