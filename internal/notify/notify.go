// Package notify turns capture outcomes into user-facing messages: a toast
// while a UI is attached, a persistent notification otherwise.
package notify

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/oneshot/internal/relay"
	"github.com/GriffinCanCode/oneshot/internal/resilience"
	"github.com/GriffinCanCode/oneshot/internal/trace"
)

// Toast durations per outcome kind.
const (
	SuccessToast = 5 * time.Second
	FailureToast = 4 * time.Second
)

// Outcome texts.
const (
	TitleSaved  = "Screenshot saved"
	TitleFailed = "Screenshot failed"

	MsgSecureContent = "This screen does not allow screenshots"
	MsgFailed        = "Screenshot failed"
)

// Presenter shows messages to the user.
type Presenter interface {
	// Notify posts a persistent notification.
	Notify(ctx context.Context, title, body string) error
	// Toast shows a transient message in the attached UI.
	Toast(ctx context.Context, msg string, d time.Duration) error
}

// Message is the presentation of a single outcome.
type Message struct {
	Title    string
	Body     string
	Toast    string
	Duration time.Duration
}

// Describe maps an outcome to its texts.
func Describe(rec relay.Record) Message {
	switch {
	case rec.Success:
		return Message{
			Title:    TitleSaved,
			Body:     rec.FileName,
			Toast:    "Screenshot saved: " + rec.FileName,
			Duration: SuccessToast,
		}
	case rec.Secure():
		return Message{Title: TitleFailed, Body: MsgSecureContent, Toast: MsgSecureContent, Duration: FailureToast}
	default:
		body := MsgFailed
		if rec.Error != "" {
			body = rec.Error
		}
		return Message{Title: TitleFailed, Body: body, Toast: MsgFailed, Duration: FailureToast}
	}
}

// Dispatcher routes outcomes to the UI presenter while foregrounded and to
// the background presenter otherwise.
type Dispatcher struct {
	ui         Presenter
	background Presenter
	foreground atomic.Bool
}

// NewDispatcher creates a dispatcher. Either presenter may be nil.
func NewDispatcher(ui, background Presenter) *Dispatcher {
	return &Dispatcher{ui: ui, background: background}
}

// SetForeground records whether a UI is attached.
func (d *Dispatcher) SetForeground(fg bool) { d.foreground.Store(fg) }

// Foreground reports the current flag.
func (d *Dispatcher) Foreground() bool { return d.foreground.Load() }

// Handle presents rec. Presenter failures are logged and swallowed.
func (d *Dispatcher) Handle(ctx context.Context, rec relay.Record) {
	msg := Describe(rec)
	log := trace.Logger(ctx)

	var err error
	if d.foreground.Load() {
		if d.ui == nil {
			return
		}
		err = d.ui.Toast(ctx, msg.Toast, msg.Duration)
	} else {
		if d.background == nil {
			return
		}
		err = d.background.Notify(ctx, msg.Title, msg.Body)
	}
	if err != nil {
		log.Warn("present outcome failed", "record", rec.String(), "error", err)
	}
}

// LogPresenter writes messages to a logger.
type LogPresenter struct {
	Log *slog.Logger
}

func (p LogPresenter) logger() *slog.Logger {
	if p.Log == nil {
		return slog.Default()
	}
	return p.Log
}

func (p LogPresenter) Notify(_ context.Context, title, body string) error {
	p.logger().Info("notification", "title", title, "body", body)
	return nil
}

func (p LogPresenter) Toast(_ context.Context, msg string, d time.Duration) error {
	p.logger().Info("toast", "message", msg, "duration", d)
	return nil
}

// Runner executes an external command.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// DesktopPresenter posts native notifications through notify-send (Linux)
// or osascript (macOS). Repeated failures open the breaker and further
// messages fall back to the log.
type DesktopPresenter struct {
	goos     string
	run      Runner
	breaker  *resilience.Breaker
	fallback LogPresenter
}

// NewDesktopPresenter creates a presenter for the current platform.
func NewDesktopPresenter(log *slog.Logger) *DesktopPresenter {
	return newDesktopPresenter(runtime.GOOS, execRunner, log)
}

func newDesktopPresenter(goos string, run Runner, log *slog.Logger) *DesktopPresenter {
	return &DesktopPresenter{
		goos:     goos,
		run:      run,
		breaker:  resilience.New(resilience.NotifierConfig()),
		fallback: LogPresenter{Log: log},
	}
}

func (p *DesktopPresenter) command(title, body string, expire time.Duration) (string, []string, bool) {
	switch p.goos {
	case "linux":
		args := []string{"--app-name=oneshot"}
		if expire > 0 {
			args = append(args, "--expire-time="+strconv.FormatInt(expire.Milliseconds(), 10))
		}
		return "notify-send", append(args, title, body), true
	case "darwin":
		script := "display notification " + quote(body) + " with title " + quote(title)
		return "osascript", []string{"-e", script}, true
	default:
		return "", nil, false
	}
}

func (p *DesktopPresenter) post(ctx context.Context, title, body string, expire time.Duration) error {
	name, args, ok := p.command(title, body, expire)
	if !ok {
		return p.fallback.Notify(ctx, title, body)
	}
	err := p.breaker.Execute(func() error { return p.run(ctx, name, args...) })
	if err != nil {
		trace.Logger(ctx).Debug("desktop notification unavailable", "backend", name, "error", err)
		return p.fallback.Notify(ctx, title, body)
	}
	return nil
}

func (p *DesktopPresenter) Notify(ctx context.Context, title, body string) error {
	return p.post(ctx, title, body, 0)
}

func (p *DesktopPresenter) Toast(ctx context.Context, msg string, d time.Duration) error {
	return p.post(ctx, "oneshot", msg, d)
}

var appleScriptEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quote renders s as an AppleScript string literal.
func quote(s string) string {
	return `"` + appleScriptEscaper.Replace(s) + `"`
}
