package screen

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/GriffinCanCode/oneshot/internal/capture"
	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

const (
	// DefaultFrameInterval is the mirror's frame period.
	DefaultFrameInterval = 50 * time.Millisecond

	// A projection whose source fails this many times in a row stops itself.
	maxGrabFailures = 5
)

// Redeemer consumes a grant token. A token can be redeemed once.
type Redeemer interface {
	Redeem(token string) error
}

// grabFunc renders frame n of the source.
type grabFunc func(n int) (*image.RGBA, error)

// Projector turns grants into projections over a frame source.
type Projector struct {
	grab     grabFunc
	redeemer Redeemer
	interval time.Duration
	log      *slog.Logger
}

// NewProjector mirrors the given physical display. redeemer may be nil.
func NewProjector(d *Display, redeemer Redeemer, interval time.Duration) *Projector {
	return newProjector(d.grab, redeemer, interval)
}

func newProjector(grab grabFunc, redeemer Redeemer, interval time.Duration) *Projector {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Projector{
		grab:     grab,
		redeemer: redeemer,
		interval: interval,
		log:      slog.Default().With("component", "screen"),
	}
}

// Project implements capture.Projector.
func (p *Projector) Project(g capture.Grant) (capture.Projection, error) {
	if g.Status != capture.GrantApproved {
		return nil, apperrors.New(apperrors.CodeAuthDenied, "grant not approved")
	}
	if p.redeemer != nil {
		if err := p.redeemer.Redeem(g.Token); err != nil {
			return nil, err
		}
	}
	return &projection{p: p, callbacks: make(map[*capture.Callback]struct{})}, nil
}

type projection struct {
	p *Projector

	mu        sync.Mutex
	callbacks map[*capture.Callback]struct{}
	mirrors   map[*mirror]struct{}
	stopped   bool
}

func (pr *projection) RegisterCallback(cb *capture.Callback) {
	pr.mu.Lock()
	pr.callbacks[cb] = struct{}{}
	pr.mu.Unlock()
}

func (pr *projection) UnregisterCallback(cb *capture.Callback) {
	pr.mu.Lock()
	delete(pr.callbacks, cb)
	pr.mu.Unlock()
}

func (pr *projection) CreateMirror(name string, m capture.DisplayMetrics, sink capture.FrameSink) (capture.Mirror, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.stopped {
		return nil, apperrors.New(apperrors.CodeUnavailable, "projection stopped")
	}
	ctx, cancel := context.WithCancel(context.Background())
	mr := &mirror{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if pr.mirrors == nil {
		pr.mirrors = make(map[*mirror]struct{})
	}
	pr.mirrors[mr] = struct{}{}
	go pr.run(ctx, mr, m, sink)
	return mr, nil
}

// Stop ends the projection and any live mirrors. Callbacks still registered
// are told the projection stopped.
func (pr *projection) Stop() error {
	pr.mu.Lock()
	if pr.stopped {
		pr.mu.Unlock()
		return nil
	}
	pr.stopped = true
	mirrors := make([]*mirror, 0, len(pr.mirrors))
	for mr := range pr.mirrors {
		mirrors = append(mirrors, mr)
	}
	pr.mirrors = nil
	callbacks := make([]*capture.Callback, 0, len(pr.callbacks))
	for cb := range pr.callbacks {
		callbacks = append(callbacks, cb)
	}
	pr.mu.Unlock()

	for _, mr := range mirrors {
		_ = mr.Release()
	}
	for _, cb := range callbacks {
		if cb.OnStop != nil {
			cb.OnStop()
		}
	}
	return nil
}

func (pr *projection) run(ctx context.Context, mr *mirror, m capture.DisplayMetrics, sink capture.FrameSink) {
	defer close(mr.done)
	log := pr.p.log.With("mirror", mr.name)

	ticker := time.NewTicker(pr.p.interval)
	defer ticker.Stop()

	failures := 0
	for n := 0; ; n++ {
		img, err := pr.p.grab(n)
		switch {
		case err != nil:
			failures++
			log.Debug("frame grab failed", "error", err, "failures", failures)
			if failures >= maxGrabFailures {
				log.Warn("frame source lost, stopping projection", "error", err)
				go pr.Stop()
				return
			}
		case img.Bounds().Dx() != m.Width || img.Bounds().Dy() != m.Height:
			log.Debug("dropping frame with unexpected size", "bounds", img.Bounds())
		default:
			failures = 0
			if err := sink.Deliver(capture.FrameFromRGBA(img, time.Now())); err != nil {
				log.Debug("sink refused frame", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type mirror struct {
	name   string
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// Release stops frame production and waits for the producer to exit.
func (mr *mirror) Release() error {
	mr.once.Do(mr.cancel)
	<-mr.done
	return nil
}
