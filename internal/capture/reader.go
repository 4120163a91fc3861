package capture

import (
	"sync"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

// FrameSink receives frames produced by a mirror.
type FrameSink interface {
	Deliver(*Frame) error
}

var (
	ErrNoFrame      = apperrors.New(apperrors.CodeCaptureNoFrame, "no frame available")
	ErrReaderClosed = apperrors.New(apperrors.CodeUnavailable, "frame reader closed")
)

// FrameReader is a bounded buffer of the most recent frames. When full, the
// oldest frame is dropped.
type FrameReader struct {
	width, height int
	format        PixelFormat
	max           int

	mu     sync.Mutex
	frames []*Frame
	closed bool

	readyOnce sync.Once
	ready     chan struct{}
}

// NewFrameReader allocates a reader for frames of the given size. max < 1
// is treated as 1.
func NewFrameReader(width, height int, format PixelFormat, max int) *FrameReader {
	if max < 1 {
		max = 1
	}
	return &FrameReader{
		width:  width,
		height: height,
		format: format,
		max:    max,
		frames: make([]*Frame, 0, max),
		ready:  make(chan struct{}),
	}
}

// Size returns the configured frame dimensions.
func (r *FrameReader) Size() (width, height int) { return r.width, r.height }

// Deliver implements FrameSink.
func (r *FrameReader) Deliver(f *Frame) error {
	if f == nil {
		return nil
	}
	if f.Format != r.format {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "frame format %s, reader expects %s", f.Format, r.format)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrReaderClosed
	}
	if len(r.frames) == r.max {
		copy(r.frames, r.frames[1:])
		r.frames = r.frames[:len(r.frames)-1]
	}
	r.frames = append(r.frames, f)
	r.readyOnce.Do(func() { close(r.ready) })
	return nil
}

// Ready is closed once the first frame has been delivered.
func (r *FrameReader) Ready() <-chan struct{} { return r.ready }

// AcquireLatest returns the newest frame and discards the rest.
func (r *FrameReader) AcquireLatest() (*Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrReaderClosed
	}
	if len(r.frames) == 0 {
		return nil, ErrNoFrame
	}
	f := r.frames[len(r.frames)-1]
	clear(r.frames)
	r.frames = r.frames[:0]
	return f, nil
}

// Close drops buffered frames; later deliveries fail with ErrReaderClosed.
func (r *FrameReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.frames = nil
	return nil
}
