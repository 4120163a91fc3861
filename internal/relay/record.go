// Package relay delivers capture outcomes from the worker that produced them
// to any number of independent consumers through a single-slot mailbox.
package relay

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
)

// ErrSecureContent is the outcome error reported for blocked (redacted) frames.
const ErrSecureContent = "secure_content"

// ErrNoFrame is the outcome error reported when the sink produced no frame.
const ErrNoFrame = "no_frame"

const (
	fieldSep  = "|"
	nullValue = "null"
)

// Record is the single structured result of a capture attempt.
// Empty FileName / Error mean absent.
type Record struct {
	Success   bool   `json:"success"`
	FileName  string `json:"fileName,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds, strictly increasing per relay
}

// Secure reports whether the outcome is the blocked-content failure.
func (r Record) Secure() bool {
	return !r.Success && r.Error == ErrSecureContent
}

func (r Record) String() string {
	return fmt.Sprintf("Record(success=%t, fileName=%s, error=%s, ts=%d)",
		r.Success, orNull(r.FileName), orNull(r.Error), r.Timestamp)
}

// Encode renders the positional stored form "success|fileName|error" with
// "null" for absent values. The timestamp is stored separately.
func Encode(r Record) string {
	return strconv.FormatBool(r.Success) + fieldSep + orNull(r.FileName) + fieldSep + orNull(r.Error)
}

// Decode parses the stored form. The error field is last and keeps any
// separators it contains.
func Decode(s string) (Record, error) {
	parts := strings.SplitN(s, fieldSep, 3)
	if len(parts) < 3 {
		return Record{}, apperrors.Newf(apperrors.CodeRelayMalformedRecord, "expected 3 fields, got %d", len(parts)).
			WithMetadata("raw", s)
	}
	success, err := strconv.ParseBool(parts[0])
	if err != nil {
		return Record{}, apperrors.Wrapf(err, apperrors.CodeRelayMalformedRecord, "invalid success field %q", parts[0]).
			WithMetadata("raw", s)
	}
	return Record{
		Success:  success,
		FileName: fromNull(parts[1]),
		Error:    fromNull(parts[2]),
	}, nil
}

func orNull(s string) string {
	if s == "" {
		return nullValue
	}
	return s
}

func fromNull(s string) string {
	if s == nullValue {
		return ""
	}
	return s
}
