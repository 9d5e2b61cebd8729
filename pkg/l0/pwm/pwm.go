// Package pwm maps logical positions onto servo pulse widths and
// keeps the six channel compare registers.
package pwm

import "time"

// Timer B compare values. A smaller compare value gives a wider pulse, so
// setpoints are expressed as offsets subtracted from MinimumPulse.
const (
	// MinimumPulse is the compare value of the narrowest pulse,
	// which is the neutral/idle position.
	MinimumPulse uint16 = 20400
	// MaxPosition is the largest position that is not clipped.
	MaxPosition byte = 156
	// PositionStep is the number of timer ticks per position (about 8us).
	PositionStep uint16 = 8
	// MaxOffset bounds the register span: 157 positions of PositionStep.
	MaxOffset uint16 = 157 * PositionStep
	// Channels is the number of PWM channels.
	Channels = 6
	// Period is the PWM period. New compare values take effect on
	// period boundaries only.
	Period = 20 * time.Millisecond
)

// Offset maps a position byte to a pulse width offset.
// Positions above MaxPosition are clipped rather than wrapped.
func Offset(pos byte) uint16 {
	if pos > MaxPosition {
		pos = MaxPosition
	}
	return uint16(pos) * PositionStep
}

// Setpoint returns the compare register value for a position.
func Setpoint(pos byte) uint16 {
	return MinimumPulse - Offset(pos)
}
