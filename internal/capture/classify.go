package capture

import (
	"image"
	"image/color"
)

const (
	blockedSampleSize = 10
	blockedThreshold  = 0.9
)

// IsBlockedContent samples the top-left 10x10 block (clamped to the image)
// and reports whether at least 90% of it is opaque pure black, which is how
// secure surfaces come out of a mirror.
func IsBlockedContent(img image.Image) bool {
	b := img.Bounds()
	w := min(blockedSampleSize, b.Dx())
	h := min(blockedSampleSize, b.Dy())
	if w <= 0 || h <= 0 {
		return false
	}

	black := 0
	for y := b.Min.Y; y < b.Min.Y+h; y++ {
		for x := b.Min.X; x < b.Min.X+w; x++ {
			if isOpaqueBlack(img.At(x, y)) {
				black++
			}
		}
	}
	return float64(black) >= blockedThreshold*float64(w*h)
}

func isOpaqueBlack(c color.Color) bool {
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	return rgba.R == 0 && rgba.G == 0 && rgba.B == 0 && rgba.A == 0xff
}
