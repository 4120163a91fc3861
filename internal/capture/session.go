package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// session owns the handles of one capture. teardown runs at most once, from
// either the worker or the projection's stop callback.
type session struct {
	id      string
	log     *slog.Logger
	delay   time.Duration
	sleep   func(time.Duration)
	stopped atomic.Bool

	mu             sync.Mutex
	projection     Projection
	callback       *Callback
	mirror         Mirror
	mirrorReleased bool
	reader         *FrameReader
}

// attach records a handle. It returns false when the session was already
// torn down, in which case the caller still owns the handle.
func (s *session) attach(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() {
		return false
	}
	fn()
	return true
}

// releaseMirror stops frame production. Safe to call repeatedly.
func (s *session) releaseMirror() {
	s.mu.Lock()
	m := s.mirror
	if m == nil || s.mirrorReleased {
		s.mu.Unlock()
		return
	}
	s.mirrorReleased = true
	s.mu.Unlock()

	if err := m.Release(); err != nil {
		s.log.Warn("mirror release failed", "error", err)
	}
}

// teardown: release mirror, wait, unregister callback, stop projection,
// close reader, drop handles.
func (s *session) teardown() {
	s.mu.Lock()
	if !s.stopped.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return
	}
	mirror, released := s.mirror, s.mirrorReleased
	projection, callback, reader := s.projection, s.callback, s.reader
	s.mirror, s.projection, s.callback, s.reader = nil, nil, nil, nil
	s.mirrorReleased = true
	s.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			s.log.Error("panic during teardown", "panic", p)
		}
	}()

	if mirror != nil && !released {
		if err := mirror.Release(); err != nil {
			s.log.Warn("mirror release failed", "error", err)
		}
	}
	if s.delay > 0 {
		s.sleep(s.delay)
	}
	if projection != nil {
		if callback != nil {
			projection.UnregisterCallback(callback)
		}
		if err := projection.Stop(); err != nil {
			s.log.Warn("projection stop failed", "error", err)
		}
	}
	if reader != nil {
		_ = reader.Close()
	}
	s.log.Debug("capture session torn down")
}
