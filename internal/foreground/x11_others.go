//go:build !linux

package foreground

import (
	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

// NewSampler is only implemented for X11 on linux.
func NewSampler() (Sampler, error) {
	return nil, apperrors.New(apperrors.CodeUnavailable, "foreground sampling not supported on this platform")
}
