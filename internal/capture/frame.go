package capture

import (
	"image"
	"time"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

// PixelFormat identifies the byte layout of a frame.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	FormatRGBA8888
)

func (f PixelFormat) String() string {
	if f == FormatRGBA8888 {
		return "RGBA_8888"
	}
	return "UNKNOWN"
}

// Frame is one raw rendered buffer as delivered by a mirror. RowStride may
// exceed Width*PixelStride when rows are padded.
type Frame struct {
	Width       int
	Height      int
	PixelStride int
	RowStride   int
	Format      PixelFormat
	Pix         []byte
	Timestamp   time.Time
}

// Decode copies the frame into a tightly packed RGBA image, dropping any
// row padding.
func (f *Frame) Decode() (*image.RGBA, error) {
	if f.Format != FormatRGBA8888 {
		return nil, apperrors.Newf(apperrors.CodeCaptureDecodeFailed, "unsupported pixel format %s", f.Format)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return nil, apperrors.Newf(apperrors.CodeCaptureDecodeFailed, "invalid frame size %dx%d", f.Width, f.Height)
	}
	if f.PixelStride != 4 {
		return nil, apperrors.Newf(apperrors.CodeCaptureDecodeFailed, "pixel stride %d, want 4", f.PixelStride)
	}
	rowBytes := f.Width * f.PixelStride
	if f.RowStride < rowBytes {
		return nil, apperrors.Newf(apperrors.CodeCaptureDecodeFailed, "row stride %d shorter than row %d", f.RowStride, rowBytes)
	}
	if need := f.RowStride*(f.Height-1) + rowBytes; len(f.Pix) < need {
		return nil, apperrors.Newf(apperrors.CodeCaptureDecodeFailed, "buffer holds %d bytes, need %d", len(f.Pix), need)
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	if f.RowStride == rowBytes {
		copy(img.Pix, f.Pix[:rowBytes*f.Height])
		return img, nil
	}
	for y := 0; y < f.Height; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+rowBytes], f.Pix[y*f.RowStride:y*f.RowStride+rowBytes])
	}
	return img, nil
}

// FrameFromRGBA wraps an RGBA image as a frame without copying.
func FrameFromRGBA(img *image.RGBA, ts time.Time) *Frame {
	b := img.Bounds()
	return &Frame{
		Width:       b.Dx(),
		Height:      b.Dy(),
		PixelStride: 4,
		RowStride:   img.Stride,
		Format:      FormatRGBA8888,
		Pix:         img.Pix[img.PixOffset(b.Min.X, b.Min.Y):],
		Timestamp:   ts,
	}
}
