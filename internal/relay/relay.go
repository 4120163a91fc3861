package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
	"github.com/GriffinCanCode/oneshot/internal/resilience"
	"github.com/GriffinCanCode/oneshot/internal/syncx"
	"github.com/GriffinCanCode/oneshot/internal/trace"
)

// DefaultPollInterval is the subscription cadence when none is given.
const DefaultPollInterval = 500 * time.Millisecond

// ErrClosed is returned by Write after Close.
var ErrClosed = apperrors.New(apperrors.CodeUnavailable, "relay closed")

// Options configure a Relay.
type Options struct {
	Clock  func() time.Time
	Retry  resilience.RetryConfig
	Logger *slog.Logger
}

// Relay is the outcome mailbox. One producer side (Write) and any number of
// independently-watermarked consumers (Subscribe).
type Relay struct {
	store  Store
	clock  func() time.Time
	retry  resilience.RetryConfig
	log    *slog.Logger
	signal *syncx.Signal

	mu     sync.Mutex // serialises writes; guards lastTS, closed and subs
	lastTS int64
	closed bool
	subs   map[*Subscription]struct{}
}

// New creates a relay over store. Call Init before use.
func New(store Store, opts Options) *Relay {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Retry.MaxRetries == 0 {
		opts.Retry = resilience.StoreRetryConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Relay{
		store:  store,
		clock:  opts.Clock,
		retry:  opts.Retry,
		log:    opts.Logger.With("component", "relay"),
		signal: syncx.NewSignal(),
		subs:   make(map[*Subscription]struct{}),
	}
}

// Init loads the stored timestamp so new writes stay strictly newer than
// anything written by a previous process.
func (r *Relay) Init(ctx context.Context) error {
	e, err := r.store.Load(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "load relay mailbox")
	}
	r.mu.Lock()
	if e.Timestamp > r.lastTS {
		r.lastTS = e.Timestamp
	}
	r.mu.Unlock()
	r.log.Debug("relay initialised", "last_timestamp", e.Timestamp)
	return nil
}

// Close cancels every subscription and rejects further writes.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := make([]*Subscription, 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
	return nil
}

// Write stamps rec with the next timestamp, overwrites the stored entry and
// wakes subscribers. The returned record carries the assigned timestamp.
func (r *Relay) Write(ctx context.Context, rec Record) (Record, error) {
	ctx, span := trace.StartSpan(ctx, "relay.write")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		span.RecordError(ErrClosed)
		return rec, ErrClosed
	}

	ts := r.clock().UnixMilli()
	if ts <= r.lastTS {
		ts = r.lastTS + 1
	}
	rec.Timestamp = ts
	entry := Entry{Result: Encode(rec), Timestamp: ts}
	span.SetAttr("timestamp", ts)

	err := resilience.Retry(ctx, r.retry, func() error {
		if err := r.store.Save(ctx, entry); err != nil {
			return apperrors.Wrap(err, apperrors.CodeRelayWriteFailed, "save outcome")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return rec, err
	}

	r.lastTS = ts
	r.signal.Broadcast()
	trace.Logger(ctx).Info("outcome written", "record", rec.String())
	return rec, nil
}

// Latest returns the stored record; ok is false when nothing was written.
func (r *Relay) Latest(ctx context.Context) (rec Record, ok bool, err error) {
	e, err := r.store.Load(ctx)
	if err != nil {
		return Record{}, false, apperrors.Wrap(err, apperrors.CodeUnavailable, "load relay mailbox")
	}
	if e.Timestamp == 0 {
		return Record{}, false, nil
	}
	rec, err = Decode(e.Result)
	if err != nil {
		return Record{}, false, err
	}
	rec.Timestamp = e.Timestamp
	return rec, true, nil
}

// Subscribe starts a polling subscription. interval <= 0 uses
// DefaultPollInterval.
func (r *Relay) Subscribe(interval time.Duration, handler func(Record), opts ...SubscribeOption) *Subscription {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	s := &Subscription{
		relay:    r,
		interval: interval,
		handler:  handler,
		name:     "subscriber",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Start()
	return s
}

func (r *Relay) forget(s *Subscription) {
	r.mu.Lock()
	delete(r.subs, s)
	r.mu.Unlock()
}
