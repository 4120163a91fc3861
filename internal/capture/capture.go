// Package capture runs one-shot screen captures: it mirrors the display into
// a frame reader, takes a single frame, rejects secure (blacked-out) content,
// stores the image and reports exactly one outcome per accepted grant.
package capture

import (
	"context"
	"time"

	"github.com/GriffinCanCode/oneshot/internal/relay"
)

// GrantStatus is the authorization verdict for one capture request.
type GrantStatus int

const (
	GrantDenied GrantStatus = iota
	GrantApproved
)

func (s GrantStatus) String() string {
	if s == GrantApproved {
		return "approved"
	}
	return "denied"
}

// Grant is a single-use authorization to open one projection.
type Grant struct {
	Status GrantStatus
	Token  string
}

// DisplayMetrics describe the physical display being mirrored.
type DisplayMetrics struct {
	Width   int
	Height  int
	Density float64
}

// Display reports the geometry of the display to mirror.
type Display interface {
	Metrics() (DisplayMetrics, error)
}

// Callback is registered on a projection for its lifetime. OnStop fires
// when the projection is stopped from outside the session.
type Callback struct {
	OnStop func()
}

// Projector redeems a grant into a live projection.
type Projector interface {
	Project(grant Grant) (Projection, error)
}

// Projection is an authorized capture session on the platform side.
type Projection interface {
	RegisterCallback(cb *Callback)
	UnregisterCallback(cb *Callback)
	CreateMirror(name string, m DisplayMetrics, sink FrameSink) (Mirror, error)
	Stop() error
}

// Mirror is a rendering target pushing frames into a sink until released.
type Mirror interface {
	Release() error
}

// Foreground resolves the most recently used application within window.
type Foreground interface {
	MostRecent(ctx context.Context, window time.Duration) (string, error)
}

// Item is one encoded image handed to storage.
type Item struct {
	Data       []byte
	Name       string
	Folder     string
	MIME       string
	Width      int
	Height     int
	Label      string
	CapturedAt time.Time
}

// Storage persists captured images. A non-nil error means the item was
// rejected.
type Storage interface {
	Save(ctx context.Context, item Item) error
}

// OutcomeWriter publishes the single outcome of a capture.
type OutcomeWriter interface {
	Write(ctx context.Context, rec relay.Record) (relay.Record, error)
}
