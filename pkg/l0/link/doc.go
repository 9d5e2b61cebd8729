// Package link provides the L0 serial command protocol.
package link

// The host streams fixed size 14-byte command frames with no delimiters.
// Every byte is echoed back and every complete frame is answered with a
// single acknowledgement byte.
//
// Framing is recovered with an escape sequence: once the link loses
// synchronization, incoming bytes are scanned for 'E' 'N' 'D' 0xFF and
// frames are only collected again after the sequence is seen. By default
// the recognizer latches progress, so noise between the escape bytes does
// not prevent recovery.
//
// There is no sequence numbering; integrity relies on a one byte XOR
// checksum over the payload.
//
// Producer: host (L1)
// Consumer: firmware (L0)
