package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
	"time"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

// Storage placement for every capture.
const (
	Folder       = "Pictures/Screenshots"
	MIMEType     = "image/jpeg"
	UnknownLabel = "unknown"

	DefaultJPEGQuality = 85
)

// FileName builds Screenshot_<yyyy-MM-dd-HH-mm-ss-SSS>_<label>.jpg in t's
// location. Characters outside [A-Za-z0-9._-] in label become '_'.
func FileName(t time.Time, label string) string {
	label = sanitizeLabel(label)
	if label == "" {
		label = UnknownLabel
	}
	return fmt.Sprintf("Screenshot_%s-%03d_%s.jpg",
		t.Format("2006-01-02-15-04-05"), t.Nanosecond()/int(time.Millisecond), label)
}

func sanitizeLabel(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

// EncodeJPEG compresses img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "encode jpeg")
	}
	return buf.Bytes(), nil
}
