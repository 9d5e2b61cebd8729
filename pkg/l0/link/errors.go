package link

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameSize indicates the byte slice is not a whole frame.
	ErrFrameSize = errors.New("invalid frame size")
)

// UnknownEscapeModeError is returned when parsing an escape mode fails.
type UnknownEscapeModeError struct {
	Mode string
}

// Error implements error.
func (e *UnknownEscapeModeError) Error() string {
	return fmt.Sprintf("unknown escape mode %q", e.Mode)
}
