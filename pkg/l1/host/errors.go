package host

import (
	"errors"
	"fmt"

	"github.com/robotalks/pwmlink/pkg/l0/link"
)

var (
	// ErrNotRunning indicates Run is not active so replies can't be received.
	ErrNotRunning = errors.New("not running")
	// ErrNoEcho indicates a sent byte was not echoed in time.
	ErrNoEcho = errors.New("no echo")
	// ErrEchoMismatch indicates the peer echoed a different byte,
	// usually a corrupted link or a peer that is not a pwmlink device.
	ErrEchoMismatch = errors.New("echo mismatch")
	// ErrNoAck indicates the frame was echoed but not acknowledged.
	// This happens when the device is searching for the escape sequence.
	ErrNoAck = errors.New("no ack")
)

// AckError is returned when a frame is rejected.
type AckError struct {
	Ack link.Ack
}

// Error implements error.
func (e *AckError) Error() string {
	return fmt.Sprintf("frame rejected: %s (%q)", e.Ack, byte(e.Ack))
}

// NeedsResync indicates the escape sequence must be sent.
func (e *AckError) NeedsResync() bool {
	return e.Ack == link.AckNotSynced
}
