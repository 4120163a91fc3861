//go:build linux

package screen

import (
	"os"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

// checkDisplayServer fails fast without an X server; screenshot's linux
// backend only speaks X11.
func checkDisplayServer() error {
	if os.Getenv("DISPLAY") == "" {
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			return apperrors.New(apperrors.CodeUnavailable, "wayland session without XWayland DISPLAY")
		}
		return apperrors.New(apperrors.CodeUnavailable, "DISPLAY not set")
	}
	return nil
}
