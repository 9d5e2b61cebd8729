package link

import "strings"

// EscapeSequence regains synchronization.
var EscapeSequence = [...]byte{'E', 'N', 'D', 0xff}

// EscapeMode selects how mismatching bytes affect escape progress.
type EscapeMode int

const (
	// EscapeLatched keeps progress across mismatching bytes, so the
	// sequence is recognized as a subsequence. This is the default.
	EscapeLatched EscapeMode = iota
	// EscapeStrict requires the sequence to be contiguous.
	EscapeStrict
)

// ParseEscapeMode parses "latched" or "strict". Empty means latched.
func ParseEscapeMode(s string) (EscapeMode, error) {
	switch strings.ToLower(s) {
	case "", "latched":
		return EscapeLatched, nil
	case "strict":
		return EscapeStrict, nil
	}
	return EscapeLatched, &UnknownEscapeModeError{Mode: s}
}

// String implements fmt.Stringer.
func (m EscapeMode) String() string {
	if m == EscapeStrict {
		return "strict"
	}
	return "latched"
}

// EscapeProgress tracks how much of the escape sequence has been seen.
type EscapeProgress int

// Progress values.
const (
	ProgressNone EscapeProgress = iota
	ProgressSawE
	ProgressSawEN
	ProgressSawEND
	ProgressResynced
)

// String implements fmt.Stringer.
func (p EscapeProgress) String() string {
	switch p {
	case ProgressNone:
		return "none"
	case ProgressSawE:
		return "E"
	case ProgressSawEN:
		return "EN"
	case ProgressSawEND:
		return "END"
	case ProgressResynced:
		return "resynced"
	}
	return "invalid"
}

// EscapeRecognizer recognizes the escape sequence one byte at a time.
type EscapeRecognizer struct {
	Mode EscapeMode

	progress EscapeProgress
}

// Progress returns the current progress.
func (r *EscapeRecognizer) Progress() EscapeProgress {
	return r.progress
}

// Reset clears progress.
func (r *EscapeRecognizer) Reset() {
	r.progress = ProgressNone
}

// Recognize consumes one byte. When the sequence completes it returns
// ProgressResynced and starts over.
func (r *EscapeRecognizer) Recognize(b byte) EscapeProgress {
	if r.progress >= ProgressResynced {
		r.progress = ProgressNone
	}
	switch {
	case b == EscapeSequence[r.progress]:
		r.progress++
	case r.Mode == EscapeLatched:
		// progress is never cleared by a mismatch.
	case b == EscapeSequence[0]:
		r.progress = ProgressSawE
	default:
		r.progress = ProgressNone
	}
	if p := r.progress; p == ProgressResynced {
		r.progress = ProgressNone
		return p
	}
	return r.progress
}
