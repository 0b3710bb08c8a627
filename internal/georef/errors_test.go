package georef

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"
)

func TestErrorKindMatching(t *testing.T) {
	t.Parallel()

	err := Errorf(InsufficientData, "need at least 2 point pairs to solve; got %d", 1)
	if !IsKind(err, InsufficientData) {
		t.Errorf("IsKind(InsufficientData) = false for %v", err)
	}
	if IsKind(err, DegenerateGeometry) {
		t.Errorf("IsKind matched the wrong kind for %v", err)
	}
	if got := err.Error(); got != "need at least 2 point pairs to solve; got 1" {
		t.Errorf("message = %q", got)
	}
}

func TestErrorKindSurvivesWrapping(t *testing.T) {
	t.Parallel()

	inner := Errorf(ParseFailure, "world file line 3: bad float")
	wrapped := fmt.Errorf("resolving sidecars: %w", inner)
	if !IsKind(wrapped, ParseFailure) {
		t.Errorf("kind lost through wrapping: %v", wrapped)
	}
	if KindOf(wrapped) != ParseFailure {
		t.Errorf("KindOf = %q, want %q", KindOf(wrapped), ParseFailure)
	}
}

func TestErrorfWrapsCause(t *testing.T) {
	t.Parallel()

	_, cause := os.ReadFile("/definitely/not/here")
	err := Errorf(IOFailure, "read world file: %w", cause)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("wrapped cause not visible through errors.Is: %v", err)
	}
	if !IsKind(err, IOFailure) {
		t.Errorf("kind missing: %v", err)
	}
}

func TestKindOfPlainError(t *testing.T) {
	t.Parallel()

	if KindOf(errors.New("plain")) != "" {
		t.Error("plain error reported a kind")
	}
	if KindOf(nil) != "" {
		t.Error("nil error reported a kind")
	}
}
