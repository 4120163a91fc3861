package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
	"github.com/GriffinCanCode/oneshot/internal/relay"
	"github.com/GriffinCanCode/oneshot/internal/trace"
)

// Session timing defaults.
const (
	DefaultSettleDelay      = 200 * time.Millisecond
	DefaultDrainDelay       = 50 * time.Millisecond
	DefaultTeardownDelay    = 100 * time.Millisecond
	DefaultForegroundWindow = 60 * time.Second

	mirrorName    = "ScreenCapture"
	readerBacklog = 2
)

var (
	ErrAuthorizationDenied = apperrors.New(apperrors.CodeAuthDenied, "screen capture not authorized")
	ErrBusy                = apperrors.New(apperrors.CodeCaptureBusy, "a capture is already in progress")
)

// Deps are the collaborators of a Coordinator. Foreground may be nil.
type Deps struct {
	Display    Display
	Projector  Projector
	Foreground Foreground
	Storage    Storage
	Outcomes   OutcomeWriter
}

// Options tune session timing and encoding. Zero values take the defaults.
type Options struct {
	SettleDelay      time.Duration // upper bound on waiting for the first frame
	DrainDelay       time.Duration // pause between releasing the mirror and reading
	TeardownDelay    time.Duration // pause between releasing the mirror and stopping the projection
	ForegroundWindow time.Duration
	JPEGQuality      int
	Clock            func() time.Time
	Sleep            func(time.Duration)
	Logger           *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.SettleDelay <= 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.DrainDelay < 0 {
		o.DrainDelay = DefaultDrainDelay
	}
	if o.TeardownDelay < 0 {
		o.TeardownDelay = DefaultTeardownDelay
	}
	if o.ForegroundWindow <= 0 {
		o.ForegroundWindow = DefaultForegroundWindow
	}
	if o.JPEGQuality == 0 {
		o.JPEGQuality = DefaultJPEGQuality
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Coordinator runs at most one capture session at a time.
type Coordinator struct {
	deps Deps
	opts Options
	log  *slog.Logger

	busy     atomic.Bool
	mu       sync.Mutex
	watchers []func(busy bool)
}

// NewCoordinator wires a coordinator. Drain and teardown delays of zero are
// honoured as "no pause"; pass a negative value for the defaults.
func NewCoordinator(deps Deps, opts Options) *Coordinator {
	opts = opts.withDefaults()
	return &Coordinator{
		deps: deps,
		opts: opts,
		log:  opts.Logger.With("component", "capture"),
	}
}

// Busy reports whether a session is in flight.
func (c *Coordinator) Busy() bool { return c.busy.Load() }

// Watch registers fn to be called on every busy transition.
func (c *Coordinator) Watch(fn func(busy bool)) {
	c.mu.Lock()
	c.watchers = append(c.watchers, fn)
	c.mu.Unlock()
}

func (c *Coordinator) setBusy(busy bool) {
	c.busy.Store(busy)
	c.mu.Lock()
	watchers := append([]func(bool){}, c.watchers...)
	c.mu.Unlock()
	for _, fn := range watchers {
		fn(busy)
	}
}

// Capture runs one session for grant and returns the published outcome.
//
// A non-approved grant returns ErrAuthorizationDenied and a concurrent
// request returns ErrBusy; neither creates a session or an outcome. Once a
// session is accepted every failure becomes an outcome record and the
// session is torn down. The only error returned after acceptance is a
// failed outcome write, alongside the record that could not be published.
// Cancelling ctx does not interrupt an accepted capture.
func (c *Coordinator) Capture(ctx context.Context, grant Grant) (relay.Record, error) {
	if grant.Status != GrantApproved {
		return relay.Record{}, ErrAuthorizationDenied
	}
	if !c.busy.CompareAndSwap(false, true) {
		return relay.Record{}, ErrBusy
	}
	c.setBusy(true)
	defer c.setBusy(false)

	ctx, span := trace.StartSpan(context.WithoutCancel(ctx), "capture")
	defer span.End()

	s := &session{
		id:    uuid.NewString(),
		delay: c.opts.TeardownDelay,
		sleep: c.opts.Sleep,
	}
	s.log = trace.Logger(ctx).With("component", "capture", "session", s.id)
	span.SetAttr("session", s.id)
	defer s.teardown()

	s.log.Info("capture session started")
	rec := c.run(ctx, s, grant)

	written, err := c.deps.Outcomes.Write(ctx, rec)
	if err != nil {
		span.RecordError(err)
		s.log.Error("outcome write failed", "record", rec.String(), "error", err)
		return rec, err
	}
	span.SetAttr("success", written.Success)
	s.log.Info("capture finished", "record", written.String())
	return written, nil
}

func (c *Coordinator) run(ctx context.Context, s *session, grant Grant) (rec relay.Record) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("capture panicked", "panic", p)
			rec = failure(fmt.Errorf("panic: %v", p))
		}
	}()

	m, err := c.deps.Display.Metrics()
	if err != nil {
		return failure(err)
	}
	reader := NewFrameReader(m.Width, m.Height, FormatRGBA8888, readerBacklog)
	s.attach(func() { s.reader = reader })

	proj, err := c.deps.Projector.Project(grant)
	if err != nil {
		return failure(err)
	}
	cb := &Callback{OnStop: func() {
		s.log.Warn("projection stopped externally")
		s.teardown()
	}}
	if !s.attach(func() { s.projection, s.callback = proj, cb }) {
		_ = proj.Stop()
		return failure(errSessionStopped)
	}
	proj.RegisterCallback(cb)

	mirror, err := proj.CreateMirror(mirrorName, m, reader)
	if err != nil {
		return failure(err)
	}
	if !s.attach(func() { s.mirror = mirror }) {
		_ = mirror.Release()
		return failure(errSessionStopped)
	}

	c.awaitFrame(reader)

	// Stop production before reading so the buffer cannot change mid-read.
	s.releaseMirror()
	if c.opts.DrainDelay > 0 {
		c.opts.Sleep(c.opts.DrainDelay)
	}

	frame, err := reader.AcquireLatest()
	switch {
	case errors.Is(err, ErrNoFrame):
		s.log.Warn("no frame available")
		return relay.Record{Error: relay.ErrNoFrame}
	case err != nil:
		return failure(err)
	}

	img, err := frame.Decode()
	if err != nil {
		return failure(err)
	}
	if IsBlockedContent(img) {
		s.log.Warn("frame is blocked content, not saving")
		return relay.Record{Error: relay.ErrSecureContent}
	}

	label := c.label(ctx, s.log)
	now := c.opts.Clock()
	name := FileName(now, label)
	data, err := EncodeJPEG(img, c.opts.JPEGQuality)
	if err != nil {
		return failure(err)
	}

	b := img.Bounds()
	err = c.deps.Storage.Save(ctx, Item{
		Data:       data,
		Name:       name,
		Folder:     Folder,
		MIME:       MIMEType,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Label:      label,
		CapturedAt: now,
	})
	if err != nil {
		s.log.Warn("storage rejected capture", "file", name, "error", err)
		return relay.Record{Success: false, FileName: name}
	}
	return relay.Record{Success: true, FileName: name}
}

// awaitFrame waits for the first delivered frame, bounded by the settle delay.
func (c *Coordinator) awaitFrame(reader *FrameReader) {
	timer := time.NewTimer(c.opts.SettleDelay)
	defer timer.Stop()
	select {
	case <-reader.Ready():
	case <-timer.C:
	}
}

func (c *Coordinator) label(ctx context.Context, log *slog.Logger) string {
	if c.deps.Foreground == nil {
		return UnknownLabel
	}
	name, err := c.deps.Foreground.MostRecent(ctx, c.opts.ForegroundWindow)
	if err != nil {
		log.Debug("foreground lookup failed", "error", err)
		return UnknownLabel
	}
	if name == "" {
		return UnknownLabel
	}
	return name
}

var errSessionStopped = apperrors.New(apperrors.CodeCancelled, "capture session stopped")

func failure(err error) relay.Record {
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	if msg == "" {
		msg = "capture failed"
	}
	return relay.Record{Error: msg}
}
