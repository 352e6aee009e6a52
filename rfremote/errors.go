package rfremote

import (
	"errors"
	"fmt"
)

var (
	// ErrPatternNotFound means fewer than two sync gaps were in the buffer.
	ErrPatternNotFound = errors.New("sync pattern not found")
	// ErrInvalidTiming means an interval matched neither pulse band.
	ErrInvalidTiming = errors.New("interval outside all timing bands")
	// ErrOverflow means the frame holds more digits than a Command can.
	ErrOverflow = errors.New("command overflow")
	// ErrInvalidDigit is returned by ParseCommand for anything but '0'/'1'.
	ErrInvalidDigit = errors.New("command must contain only '0' and '1'")
)

// DecodeError reports why a frame was discarded, and where.
type DecodeError struct {
	// One of ErrPatternNotFound, ErrInvalidTiming, ErrOverflow
	Kind error
	// Buffer index being decoded when it failed (-1 if not applicable)
	Index int
	// Interval at Index, in microseconds
	Interval uint32
}

func (e *DecodeError) Error() string {
	if e.Index < 0 {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s at edge %d (%dus)", e.Kind, e.Index, e.Interval)
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}
