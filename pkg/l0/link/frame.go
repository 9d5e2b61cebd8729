package link

import "io"

// Frame layout.
const (
	FrameSize = 14
	// FrameMarker must be the first byte of every frame.
	FrameMarker byte = 'C'

	offsetPositions = 1
	offsetSwitches  = 7
	offsetReserved  = 8
	offsetChecksum  = 9
)

// Positions is the number of position bytes in a frame.
const Positions = 6

// Frame is a raw command frame:
//
//	[0]      marker 'C'
//	[1..6]   positions of channel 1..6
//	[7]      switch byte
//	[8]      reserved, covered by checksum
//	[9]      checksum, XOR of [1..8]
//	[10..13] padding
type Frame [FrameSize]byte

// FrameFrom copies a frame from bytes.
func FrameFrom(b []byte) (f Frame, err error) {
	if len(b) != FrameSize {
		return f, ErrFrameSize
	}
	copy(f[:], b)
	return f, nil
}

// Marker returns the marker byte.
func (f *Frame) Marker() byte {
	return f[0]
}

// Position returns the position byte of channel 1..6.
func (f *Frame) Position(channel int) byte {
	return f[offsetPositions+channel-1]
}

// Switches returns the switch byte.
func (f *Frame) Switches() byte {
	return f[offsetSwitches]
}

// Checksum computes the checksum over the payload.
func (f *Frame) Checksum() byte {
	var sum byte
	for _, b := range f[offsetPositions:offsetChecksum] {
		sum ^= b
	}
	return sum
}

// ChecksumOK verifies the checksum byte.
func (f *Frame) ChecksumOK() bool {
	return f.Checksum() == f[offsetChecksum]
}

// WriteTo writes the frame.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f[:])
	return int64(n), err
}

// Command is the decoded content of a frame.
type Command struct {
	Positions [Positions]byte
	Switches  byte
	Reserved  byte
}

// Frame encodes the command with marker and checksum.
func (c *Command) Frame() (f Frame) {
	f[0] = FrameMarker
	copy(f[offsetPositions:], c.Positions[:])
	f[offsetSwitches] = c.Switches
	f[offsetReserved] = c.Reserved
	f[offsetChecksum] = f.Checksum()
	return
}

// Command decodes the frame payload. It doesn't validate.
func (f *Frame) Command() (c Command) {
	copy(c.Positions[:], f[offsetPositions:offsetSwitches])
	c.Switches = f[offsetSwitches]
	c.Reserved = f[offsetReserved]
	return
}

// Ack is the single byte reply to a frame.
type Ack byte

// Acknowledgements.
const (
	// AckAccepted means the frame was applied.
	AckAccepted Ack = 'G'
	// AckChecksum means checksum mismatch, frame discarded.
	AckChecksum Ack = 'k'
	// AckNotSynced means bad marker or link not synchronized,
	// the escape sequence is required.
	AckNotSynced Ack = 's'
)

// IsValid checks if it's a known acknowledgement.
func (a Ack) IsValid() bool {
	switch a {
	case AckAccepted, AckChecksum, AckNotSynced:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (a Ack) String() string {
	switch a {
	case AckAccepted:
		return "accepted"
	case AckChecksum:
		return "checksum error"
	case AckNotSynced:
		return "not synchronized"
	}
	return "unknown"
}
