// Package screen mirrors physical displays into capture frame sinks using
// github.com/kbinani/screenshot, plus a synthetic backend for headless runs.
package screen

import (
	"image"

	"github.com/kbinani/screenshot"

	"github.com/GriffinCanCode/oneshot/internal/capture"
	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

// Display reports the geometry of one active display.
type Display struct {
	index   int
	density float64
}

// NewDisplay selects display index (0 is primary). density is reported as-is.
func NewDisplay(index int, density float64) *Display {
	return &Display{index: index, density: density}
}

// Metrics implements capture.Display.
func (d *Display) Metrics() (capture.DisplayMetrics, error) {
	b, err := d.bounds()
	if err != nil {
		return capture.DisplayMetrics{}, err
	}
	return capture.DisplayMetrics{Width: b.Dx(), Height: b.Dy(), Density: d.density}, nil
}

func (d *Display) bounds() (image.Rectangle, error) {
	if err := checkDisplayServer(); err != nil {
		return image.Rectangle{}, err
	}
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, apperrors.New(apperrors.CodeUnavailable, "no active displays")
	}
	if d.index < 0 || d.index >= n {
		return image.Rectangle{}, apperrors.Newf(apperrors.CodeInvalidArgument, "display %d out of range (%d active)", d.index, n)
	}
	return screenshot.GetDisplayBounds(d.index), nil
}

func (d *Display) grab(_ int) (*image.RGBA, error) {
	b, err := d.bounds()
	if err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureRect(b)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "capture display")
	}
	return img, nil
}
