package georef

import (
	"errors"
	"fmt"
)

// Kind classifies a georeferencing failure so callers can branch on the
// failure mode instead of matching message strings.
type Kind string

const (
	// InsufficientData: fewer correspondences than the fit method requires.
	InsufficientData Kind = "insufficient data"
	// DegenerateGeometry: near-zero variance or a singular linear system.
	DegenerateGeometry Kind = "degenerate geometry"
	// InvalidParameter: a caller-supplied parameter is out of range or non-finite.
	InvalidParameter Kind = "invalid parameter"
	// IOFailure: a required file is missing or unreadable.
	IOFailure Kind = "io failure"
	// ParseFailure: a malformed numeric line or binary tag.
	ParseFailure Kind = "parse failure"
	// UnsupportedMethod: an unrecognized fit-method name.
	UnsupportedMethod Kind = "unsupported method"
	// ConversionUnavailable: no CRS is known for a coordinate query.
	ConversionUnavailable Kind = "conversion unavailable"
)

// Error is a request-scoped domain error. Every fitting, parsing or
// projection failure surfaces as one of these; none of them is fatal to
// the hosting process.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error of the given kind with a formatted message.
// A %w verb wraps the cause so errors.Is/As continue to see it.
func Errorf(kind Kind, format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	return &Error{Kind: kind, Msg: err.Error(), Err: errors.Unwrap(err)}
}

// KindOf returns the Kind carried by err, or "" when err has none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) carries kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
