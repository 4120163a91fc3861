package screen

import (
	"image"
	"image/color"
	"time"

	"github.com/GriffinCanCode/oneshot/internal/capture"
)

// Pattern selects what a synthetic source renders.
type Pattern int

const (
	// PatternGradient renders a moving colour gradient.
	PatternGradient Pattern = iota
	// PatternSecure renders opaque black, as a secure surface would appear.
	PatternSecure
	// PatternDarkCorner renders the gradient with a few opaque black pixels
	// in the top-left corner, like a dark status bar icon.
	PatternDarkCorner
)

// darkCornerPixels is how many top-left pixels PatternDarkCorner blacks out.
const darkCornerPixels = 5

// SyntheticDisplay is a fixed-size virtual display.
type SyntheticDisplay struct {
	Width, Height int
	Density       float64
}

// Metrics implements capture.Display.
func (d SyntheticDisplay) Metrics() (capture.DisplayMetrics, error) {
	return capture.DisplayMetrics{Width: d.Width, Height: d.Height, Density: d.Density}, nil
}

// NewSyntheticProjector renders pattern frames sized to d.
func NewSyntheticProjector(d SyntheticDisplay, pattern Pattern, redeemer Redeemer, interval time.Duration) *Projector {
	return newProjector(func(n int) (*image.RGBA, error) {
		return render(d.Width, d.Height, pattern, n), nil
	}, redeemer, interval)
}

func render(w, h int, pattern Pattern, n int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if pattern == PatternSecure {
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 0xff
		}
		return img
	}
	hue := uint8(40 + (n*7)%200)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			px[0], px[1], px[2], px[3] = hue, uint8(x%255), uint8(y%255), 0xff
		}
	}
	if pattern == PatternDarkCorner {
		for x := 0; x < min(darkCornerPixels, w); x++ {
			img.SetRGBA(x, 0, color.RGBA{A: 0xff})
		}
	}
	return img
}
