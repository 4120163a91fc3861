//go:build linux

package foreground

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

// X11Sampler reads _NET_ACTIVE_WINDOW from the root window and names the
// window by its WM_CLASS, falling back to the owning process name.
type X11Sampler struct {
	mu     sync.Mutex
	conn   *xgb.Conn
	root   xproto.Window
	active xproto.Atom
	pid    xproto.Atom
}

// NewSampler connects to the X server named by $DISPLAY.
func NewSampler() (Sampler, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "connect to X server")
	}
	s := &X11Sampler{
		conn: conn,
		root: xproto.Setup(conn).DefaultScreen(conn).Root,
	}
	if s.active, err = s.atom("_NET_ACTIVE_WINDOW"); err != nil {
		conn.Close()
		return nil, err
	}
	if s.pid, err = s.atom("_NET_WM_PID"); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *X11Sampler) atom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(s.conn, true, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.CodeUnavailable, "intern atom %s", name)
	}
	if reply.Atom == xproto.AtomNone {
		return 0, apperrors.Newf(apperrors.CodeUnavailable, "window manager does not support %s", name)
	}
	return reply.Atom, nil
}

// Active implements Sampler.
func (s *X11Sampler) Active(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prop, err := xproto.GetProperty(s.conn, false, s.root, s.active, xproto.AtomWindow, 0, 1).Reply()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeUnavailable, "read active window")
	}
	if len(prop.Value) < 4 {
		return "", ErrNoUsage
	}
	win := xproto.Window(xgb.Get32(prop.Value))
	if win == 0 {
		return "", ErrNoUsage
	}

	if class := s.wmClass(win); class != "" {
		return class, nil
	}
	return s.processName(win)
}

// wmClass returns the class part of WM_CLASS ("instance\0class\0").
func (s *X11Sampler) wmClass(win xproto.Window) string {
	prop, err := xproto.GetProperty(s.conn, false, win, xproto.AtomWmClass, xproto.AtomString, 0, 64).Reply()
	if err != nil || len(prop.Value) == 0 {
		return ""
	}
	parts := bytes.Split(bytes.TrimRight(prop.Value, "\x00"), []byte{0})
	return strings.TrimSpace(string(parts[len(parts)-1]))
}

func (s *X11Sampler) processName(win xproto.Window) (string, error) {
	prop, err := xproto.GetProperty(s.conn, false, win, s.pid, xproto.AtomCardinal, 0, 1).Reply()
	if err != nil || len(prop.Value) < 4 {
		return "", ErrNoUsage
	}
	comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", xgb.Get32(prop.Value)))
	if err != nil {
		return "", ErrNoUsage
	}
	return strings.TrimSpace(string(comm)), nil
}

// Close implements Sampler.
func (s *X11Sampler) Close() error {
	s.conn.Close()
	return nil
}
