package pwm

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DigitalOutput identifies one of the two discrete outputs.
type DigitalOutput int

// Discrete outputs.
const (
	OutputA DigitalOutput = iota
	OutputB
)

// Switch bits in the switch byte of a command frame.
const (
	SwitchA byte = 0x40
	SwitchB byte = 0x80
)

// String implements fmt.Stringer.
func (o DigitalOutput) String() string {
	if o == OutputA {
		return "A"
	}
	return "B"
}

// Output is the hardware side receiving register values.
type Output interface {
	// SetCompare latches a compare value for channel 1..6.
	SetCompare(channel int, value uint16) error
	// SetDigital drives a discrete output.
	SetDigital(out DigitalOutput, on bool) error
}

// Snapshot is a consistent copy of the engine state.
type Snapshot struct {
	Pending [Channels]uint16
	Applied [Channels]uint16
	OutputA bool
	OutputB bool
}

// Engine owns the six channel setpoints and the discrete outputs.
// Setpoints are double-buffered: writes go to the pending value and
// Commit moves all pending values to the applied set at once, the way
// the timer latches compare registers when the counter wraps.
type Engine struct {
	Output Output
	Period time.Duration

	pending [Channels]uint16
	applied [Channels]uint16
	digital [2]bool
	dirty   bool
	lock    sync.Mutex
}

// NewEngine creates an Engine with all channels neutral and both discrete
// outputs off, and writes that state to out.
func NewEngine(out Output) *Engine {
	e := &Engine{Output: out, Period: Period}
	for i := range e.pending {
		e.pending[i], e.applied[i] = MinimumPulse, MinimumPulse
	}
	e.writeAll()
	return e
}

// writeAll pushes the applied values and discrete outputs to Output.
func (e *Engine) writeAll() {
	if e.Output == nil {
		return
	}
	for i, val := range e.applied {
		if err := e.Output.SetCompare(i+1, val); err != nil {
			glog.Errorf("set channel %d error: %v", i+1, err)
		}
	}
	for _, out := range []DigitalOutput{OutputA, OutputB} {
		if err := e.Output.SetDigital(out, e.digital[out]); err != nil {
			glog.Errorf("set output %s error: %v", out, err)
		}
	}
}

// SetChannel sets the pending compare value of channel (1..6) from an offset.
// Invalid channels are ignored.
func (e *Engine) SetChannel(channel int, offset uint16) {
	if channel < 1 || channel > Channels {
		return
	}
	e.lock.Lock()
	e.pending[channel-1] = MinimumPulse - offset
	e.dirty = true
	e.lock.Unlock()
}

// NeutralizeAll moves every channel to MinimumPulse.
func (e *Engine) NeutralizeAll() {
	e.lock.Lock()
	for i := range e.pending {
		e.pending[i] = MinimumPulse
	}
	e.dirty = true
	e.lock.Unlock()
}

// SetDigitalOutputs drives output A from SwitchA and output B from SwitchB.
// Other bits are ignored. Discrete outputs are not buffered.
func (e *Engine) SetDigitalOutputs(bits byte) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.digital[OutputA] = bits&SwitchA != 0
	e.digital[OutputB] = bits&SwitchB != 0
	if e.Output == nil {
		return
	}
	for _, out := range []DigitalOutput{OutputA, OutputB} {
		if err := e.Output.SetDigital(out, e.digital[out]); err != nil {
			glog.Errorf("set output %s error: %v", out, err)
		}
	}
}

// Commit applies pending values. It reports whether anything was written.
func (e *Engine) Commit() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	if !e.dirty {
		return false
	}
	e.dirty = false
	var changed bool
	for i, val := range e.pending {
		if e.applied[i] == val {
			continue
		}
		e.applied[i], changed = val, true
		if e.Output != nil {
			if err := e.Output.SetCompare(i+1, val); err != nil {
				glog.Errorf("set channel %d error: %v", i+1, err)
			}
		}
	}
	return changed
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() (s Snapshot) {
	e.lock.Lock()
	s.Pending, s.Applied = e.pending, e.applied
	s.OutputA, s.OutputB = e.digital[OutputA], e.digital[OutputB]
	e.lock.Unlock()
	return
}

// Run commits pending values on every period boundary.
func (e *Engine) Run(ctx context.Context) error {
	period := e.Period
	if period == 0 {
		period = Period
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if e.Commit() {
				if glog.V(4) {
					glog.Infof("committed %v", e.Snapshot().Applied)
				}
			}
		}
	}
}
