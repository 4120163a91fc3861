package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/oneshot/internal/capture"
	"github.com/GriffinCanCode/oneshot/internal/notify"
	"github.com/GriffinCanCode/oneshot/internal/permissions"
	"github.com/GriffinCanCode/oneshot/internal/relay"
	"github.com/GriffinCanCode/oneshot/internal/screen"
	"github.com/GriffinCanCode/oneshot/internal/storage"
)

const pollInterval = 20 * time.Millisecond

type countingStorage struct {
	inner *storage.FolderSink
	saves atomic.Int32
}

func (s *countingStorage) Save(ctx context.Context, item capture.Item) error {
	s.saves.Add(1)
	return s.inner.Save(ctx, item)
}

type notification struct{ title, body string }

type backgroundRecorder struct {
	mu    sync.Mutex
	items []notification
}

func (b *backgroundRecorder) Notify(_ context.Context, title, body string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, notification{title, body})
	return nil
}

func (b *backgroundRecorder) Toast(ctx context.Context, msg string, _ time.Duration) error {
	return b.Notify(ctx, "", msg)
}

func (b *backgroundRecorder) all() []notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]notification(nil), b.items...)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func collect(m *Manager) *eventLog {
	l := &eventLog{}
	go func() {
		for ev := range m.Events() {
			l.mu.Lock()
			l.events = append(l.events, ev)
			l.mu.Unlock()
		}
	}()
	return l
}

func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) waitFor(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range l.snapshot() {
			if match(ev) {
				return ev
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event not observed; got %+v", l.snapshot())
	return Event{}
}

type harness struct {
	m       *Manager
	relay   *relay.Relay
	storage *countingStorage
	bg      *backgroundRecorder
	events  *eventLog
	root    string
}

func newHarness(t *testing.T, verdict string, pattern screen.Pattern, countdown time.Duration) *harness {
	t.Helper()
	ctx := context.Background()

	auth := permissions.NewAuthorizer(func(k string) (string, bool) {
		if k == permissions.OverrideEnv {
			return verdict, true
		}
		return "", false
	})
	display := screen.SyntheticDisplay{Width: 64, Height: 48, Density: 160}
	root := t.TempDir()
	store := &countingStorage{inner: storage.NewFolderSink(root, storage.Options{})}

	rel := relay.New(relay.NewMemoryStore(), relay.Options{})
	if err := rel.Init(ctx); err != nil {
		t.Fatal(err)
	}

	coord := capture.NewCoordinator(capture.Deps{
		Display:   display,
		Projector: screen.NewSyntheticProjector(display, pattern, auth, 5*time.Millisecond),
		Storage:   store,
		Outcomes:  rel,
	}, capture.Options{SettleDelay: time.Second})

	bg := &backgroundRecorder{}
	m := New(Deps{Authorizer: auth, Capturer: coord, Relay: rel, Background: bg},
		Options{Countdown: countdown, PollInterval: pollInterval})
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	h := &harness{m: m, relay: rel, storage: store, bg: bg, root: root}
	h.events = collect(m)
	t.Cleanup(func() {
		m.Stop()
		_ = rel.Close()
	})
	return h
}

func isOutcome(ev Event) bool { return ev.Type == EventOutcome }

func TestDeniedGrantReenablesTrigger(t *testing.T) {
	h := newHarness(t, "denied", screen.PatternGradient, -1)

	err := h.m.RequestCapture(context.Background())
	if !errors.Is(err, capture.ErrAuthorizationDenied) {
		t.Fatalf("RequestCapture = %v, want ErrAuthorizationDenied", err)
	}
	if !h.m.TriggerEnabled() {
		t.Error("trigger should be re-enabled after denial")
	}
	snap := h.m.Snapshot()
	if snap.Status != StatusDenied {
		t.Errorf("status = %q, want %q", snap.Status, StatusDenied)
	}
	if !strings.Contains(snap.Permission, "denied via "+permissions.OverrideEnv) {
		t.Errorf("permission = %q", snap.Permission)
	}

	time.Sleep(3 * pollInterval)
	if _, ok, _ := h.relay.Latest(context.Background()); ok {
		t.Error("denial must not publish an outcome")
	}
	if h.storage.saves.Load() != 0 {
		t.Error("denial must not reach storage")
	}
}

func TestEndToEndSuccess(t *testing.T) {
	h := newHarness(t, "granted", screen.PatternGradient, -1)
	h.m.SetForeground(true)

	if err := h.m.RequestCapture(context.Background()); err != nil {
		t.Fatalf("RequestCapture: %v", err)
	}
	ev := h.events.waitFor(t, isOutcome)

	rec := ev.Record
	if !rec.Success || rec.Error != "" {
		t.Fatalf("outcome = %s, want success", rec)
	}
	if !strings.HasPrefix(rec.FileName, "Screenshot_") || !strings.HasSuffix(rec.FileName, ".jpg") {
		t.Errorf("fileName = %q", rec.FileName)
	}
	if _, err := os.Stat(filepath.Join(h.root, capture.Folder, rec.FileName)); err != nil {
		t.Errorf("stored file missing: %v", err)
	}

	toast := h.events.waitFor(t, func(ev Event) bool { return ev.Type == EventToast })
	if toast.Message != "Screenshot saved: "+rec.FileName || toast.Duration != notify.SuccessToast {
		t.Errorf("toast = %+v", toast)
	}
	if len(h.bg.all()) != 0 {
		t.Error("foreground outcomes must not post background notifications")
	}
	h.events.waitFor(t, func(ev Event) bool { return ev.Type == EventTrigger && ev.Enabled })
}

func TestEndToEndBlockedContent(t *testing.T) {
	h := newHarness(t, "granted", screen.PatternSecure, -1)

	if err := h.m.RequestCapture(context.Background()); err != nil {
		t.Fatalf("RequestCapture: %v", err)
	}
	rec := h.events.waitFor(t, isOutcome).Record

	if rec.Success || rec.Error != relay.ErrSecureContent || rec.FileName != "" {
		t.Fatalf("outcome = %s, want secure_content failure", rec)
	}
	if n := h.storage.saves.Load(); n != 0 {
		t.Errorf("storage called %d times, want 0", n)
	}

	deadline := time.Now().Add(time.Second)
	for len(h.bg.all()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := h.bg.all()
	if len(got) != 1 || got[0].body != notify.MsgSecureContent {
		t.Errorf("background notifications = %+v, want one secure-content notice", got)
	}
}

func TestRequestWhileTriggerDisabled(t *testing.T) {
	h := newHarness(t, "granted", screen.PatternGradient, time.Hour)

	if err := h.m.RequestCapture(context.Background()); err != nil {
		t.Fatalf("first RequestCapture: %v", err)
	}
	if err := h.m.RequestCapture(context.Background()); !errors.Is(err, capture.ErrBusy) {
		t.Errorf("second RequestCapture = %v, want ErrBusy", err)
	}
	h.events.waitFor(t, func(ev Event) bool {
		return ev.Type == EventStatus && ev.Message == "Preparing capture, 3600 s..."
	})
}

func TestStopCancelsCountdown(t *testing.T) {
	h := newHarness(t, "granted", screen.PatternGradient, time.Hour)

	if err := h.m.RequestCapture(context.Background()); err != nil {
		t.Fatalf("RequestCapture: %v", err)
	}
	stopped := make(chan struct{})
	go func() {
		h.m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt the countdown")
	}

	if h.storage.saves.Load() != 0 {
		t.Error("capture must not start after a cancelled countdown")
	}
	if _, ok, _ := h.relay.Latest(context.Background()); ok {
		t.Error("cancelled countdown must not publish an outcome")
	}
	if !h.m.TriggerEnabled() {
		t.Error("trigger should be re-enabled after cancellation")
	}
	if err := h.m.RequestCapture(context.Background()); !errors.Is(err, relay.ErrClosed) {
		t.Errorf("RequestCapture after Stop = %v, want ErrClosed", err)
	}
}

func TestCountdownTicks(t *testing.T) {
	h := newHarness(t, "granted", screen.PatternGradient, 2*time.Second)

	if err := h.m.RequestCapture(context.Background()); err != nil {
		t.Fatalf("RequestCapture: %v", err)
	}
	h.events.waitFor(t, isOutcome)

	var statuses []string
	for _, ev := range h.events.snapshot() {
		if ev.Type == EventStatus {
			statuses = append(statuses, ev.Message)
		}
	}
	want := []string{"Preparing capture, 2 s...", "Preparing capture, 1 s...", StatusCapturing}
	if len(statuses) < len(want) {
		t.Fatalf("statuses = %q, want prefix %q", statuses, want)
	}
	for i, s := range want {
		if statuses[i] != s {
			t.Errorf("status[%d] = %q, want %q", i, statuses[i], s)
		}
	}
}

func TestStartSkipsEarlierOutcomes(t *testing.T) {
	ctx := context.Background()
	rel := relay.New(relay.NewMemoryStore(), relay.Options{})
	if _, err := rel.Write(ctx, relay.Record{Success: true, FileName: "old.jpg"}); err != nil {
		t.Fatal(err)
	}

	bg := &backgroundRecorder{}
	m := New(Deps{Relay: rel, Background: bg}, Options{PollInterval: pollInterval})
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	time.Sleep(5 * pollInterval)
	if got := bg.all(); len(got) != 0 {
		t.Errorf("outcome written before Start was presented: %+v", got)
	}
}

func TestStopClosesEvents(t *testing.T) {
	rel := relay.New(relay.NewMemoryStore(), relay.Options{})
	m := New(Deps{Relay: rel}, Options{PollInterval: pollInterval})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	drained := make(chan struct{})
	go func() {
		for range m.Events() {
		}
		close(drained)
	}()

	m.Stop()
	m.Stop()
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("event stream still open after Stop")
	}

	// Late events are discarded rather than sent on a closed channel.
	m.setStatus(StatusIdle)
}
