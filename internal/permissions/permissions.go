// Package permissions decides whether screen capture is authorised and issues
// single-use grant tokens.
package permissions

import (
	"context"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/oneshot/internal/capture"
	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

// OverrideEnv forces the verdict: granted or denied.
const OverrideEnv = "SCREEN_CAPTURE"

// Status is the coarse permission state.
type Status string

const (
	StatusGranted     Status = "granted"
	StatusDenied      Status = "denied"
	StatusUnavailable Status = "unavailable"
)

// ProbeResult is the outcome of inspecting the environment.
type ProbeResult struct {
	Status  Status
	Message string
}

// LookupEnvFunc exposes environment probing for testability.
type LookupEnvFunc func(string) (string, bool)

// ProbeScreenCapture inspects the environment for screen capture access.
func ProbeScreenCapture(lookup LookupEnvFunc) ProbeResult {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(OverrideEnv); ok {
		return interpretFlag(v)
	}
	switch runtime.GOOS {
	case "linux":
		if v, ok := lookup("DISPLAY"); ok && v != "" {
			return ProbeResult{Status: StatusGranted, Message: "X11 display available"}
		}
		return ProbeResult{Status: StatusUnavailable, Message: "no X11 display"}
	case "darwin", "windows":
		return ProbeResult{Status: StatusGranted, Message: "assuming desktop capture access"}
	default:
		return ProbeResult{Status: StatusUnavailable, Message: "screen capture unsupported on " + runtime.GOOS}
	}
}

func interpretFlag(value string) ProbeResult {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "granted", "allow", "allowed", "yes", "true", "1":
		return ProbeResult{Status: StatusGranted, Message: "screen capture pre-authorised via " + OverrideEnv}
	case "denied", "deny", "no", "false", "0", "blocked":
		return ProbeResult{Status: StatusDenied, Message: "screen capture denied via " + OverrideEnv}
	default:
		return ProbeResult{Status: StatusUnavailable, Message: "unrecognised " + OverrideEnv + " value " + value}
	}
}

// Authorizer issues grants and redeems their tokens exactly once.
type Authorizer struct {
	probe func() ProbeResult

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewAuthorizer probes the environment via lookup (nil uses os.LookupEnv) on
// every request.
func NewAuthorizer(lookup LookupEnvFunc) *Authorizer {
	return &Authorizer{
		probe:   func() ProbeResult { return ProbeScreenCapture(lookup) },
		pending: make(map[string]struct{}),
	}
}

// Authorize returns an approved grant with a fresh token, or a denied grant.
func (a *Authorizer) Authorize(ctx context.Context) capture.Grant {
	if ctx.Err() != nil {
		return capture.Grant{Status: capture.GrantDenied}
	}
	if a.probe().Status != StatusGranted {
		return capture.Grant{Status: capture.GrantDenied}
	}
	token := uuid.NewString()
	a.mu.Lock()
	a.pending[token] = struct{}{}
	a.mu.Unlock()
	return capture.Grant{Status: capture.GrantApproved, Token: token}
}

// Redeem consumes token. Unknown or reused tokens are rejected.
func (a *Authorizer) Redeem(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pending[token]; !ok {
		return apperrors.New(apperrors.CodeAuthDenied, "unknown or already redeemed grant token")
	}
	delete(a.pending, token)
	return nil
}

// Probe reports the current permission state.
func (a *Authorizer) Probe() ProbeResult { return a.probe() }
