package link

import "sync/atomic"

// State is the link synchronization state.
type State int32

const (
	// Synchronized means received bytes are collected into frames.
	Synchronized State = iota
	// Searching means received bytes are scanned for the escape sequence.
	Searching
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == Synchronized {
		return "synchronized"
	}
	return "searching"
}

// StateValue publishes a State to other goroutines.
type StateValue struct {
	v atomic.Int32
}

// Load reads the state.
func (v *StateValue) Load() State {
	return State(v.v.Load())
}

// Store writes the state.
func (v *StateValue) Store(s State) {
	v.v.Store(int32(s))
}

// ParseResult indicates the result after one parsing step.
type ParseResult struct {
	State State
	// Frame is set when the frame is complete. It points to the
	// synchronizer buffer and is valid until Consume.
	Frame *Frame
	// Resynced is set when the escape sequence completed on this byte.
	Resynced bool
	// Dropped is set when the byte arrived while a complete frame
	// was not yet consumed.
	Dropped bool
}

// Synchronizer collects frames and recovers framing with the escape
// sequence. The zero value is Synchronized with an empty buffer.
type Synchronizer struct {
	Escape EscapeRecognizer

	state State
	frame Frame
	index int
}

// State gets the current state.
func (s *Synchronizer) State() State {
	return s.state
}

// Index gets the number of frame bytes collected.
func (s *Synchronizer) Index() int {
	return s.index
}

// Parse consumes one byte.
func (s *Synchronizer) Parse(b byte) (pr ParseResult) {
	if s.state == Synchronized {
		if s.index >= FrameSize {
			pr.Dropped = true
		} else {
			s.frame[s.index] = b
			s.index++
		}
		if s.index >= FrameSize {
			pr.Frame = &s.frame
		}
	} else {
		// any partial frame is gone once searching.
		s.index = 0
		if s.Escape.Recognize(b) == ProgressResynced {
			s.state, pr.Resynced = Synchronized, true
		}
	}
	pr.State = s.state
	return
}

// Consume releases the completed frame so the next one can be collected.
func (s *Synchronizer) Consume() {
	s.index = 0
}

// ForceSearch drops synchronization and escape progress.
func (s *Synchronizer) ForceSearch() {
	s.state, s.index = Searching, 0
	s.Escape.Reset()
}

// ClearProgress clears escape progress without changing the state.
func (s *Synchronizer) ClearProgress() {
	s.Escape.Reset()
}
