// Package firmware runs the L0 core: it collects command frames from a
// byte stream, drives the PWM engine and enforces the communication
// fail-safe.
package firmware

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/pwmlink/pkg/l0/failsafe"
	"github.com/robotalks/pwmlink/pkg/l0/link"
	"github.com/robotalks/pwmlink/pkg/l0/pwm"
)

// Controller processes the command stream.
//
// Three goroutines share the work. The read pump only reads bytes. The
// receiver owns the Synchronizer and is the only writer of the link state.
// The main loop (Run) owns the engine setpoints and the fail flag. They
// exchange frames and requests over channels only.
type Controller struct {
	ReadWriter io.ReadWriter
	Engine     *pwm.Engine
	Watchdog   *failsafe.Watchdog
	Notifier   Notifier
	EscapeMode link.EscapeMode

	state  link.StateValue
	failed atomic.Bool
	stats  stats

	writeLock sync.Mutex

	// owned by receiver.
	syncer link.Synchronizer

	frameCh  chan epochFrame
	ctlCh    chan control
	resyncCh chan uint32

	// owned by main loop, bumped on every forced loss of sync.
	epoch uint32
}

// control is a request from the main loop to the receiver.
type control struct {
	epoch       uint32
	forceSearch bool
}

// epochFrame is a frame stamped with the sync epoch it was collected in.
type epochFrame struct {
	link.Frame
	epoch uint32
}

// New creates a Controller with the default fail-safe timeout.
func New(rw io.ReadWriter, engine *pwm.Engine) *Controller {
	return &Controller{
		ReadWriter: rw,
		Engine:     engine,
		Watchdog:   failsafe.New(failsafe.DefaultTimeout),
		frameCh:    make(chan epochFrame),
		ctlCh:      make(chan control, 1),
		resyncCh:   make(chan uint32, 1),
	}
}

// State gets the link state.
func (c *Controller) State() link.State {
	return c.state.Load()
}

// Failed indicates the fail-safe is active.
func (c *Controller) Failed() bool {
	return c.failed.Load()
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	return Status{
		State:  c.state.Load(),
		Failed: c.failed.Load(),
		Engine: c.Engine.Snapshot(),
		Stats:  c.stats.load(),
	}
}

// Run processes the stream until ctx is done or the stream fails.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.syncer.Escape.Mode = c.EscapeMode
	byteCh, errCh := make(chan byte), make(chan error, 3)
	go c.readLoop(ctx, byteCh, errCh)
	go func() {
		errCh <- c.receive(ctx, byteCh)
	}()

	var expired <-chan struct{}
	if wd := c.Watchdog; wd != nil {
		expired = wd.Expired()
		go func() {
			if err := wd.Run(ctx); err != context.Canceled {
				errCh <- err
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case f := <-c.frameCh:
			if err := c.dispatch(ctx, f); err != nil {
				return err
			}
		case <-expired:
			if err := c.recover(ctx, expired, errCh); err != nil {
				return err
			}
		case <-c.resyncCh:
			c.stats.resyncs.Add(1)
			c.notify(ctx, Event{Kind: EventResynced})
		}
	}
}

func (c *Controller) readLoop(ctx context.Context, byteCh chan<- byte, errCh chan<- error) {
	buf := make([]byte, 1)
	for {
		n, err := c.ReadWriter.Read(buf)
		if err != nil {
			errCh <- err
			return
		}
		if n == 0 {
			continue
		}
		select {
		case byteCh <- buf[0]:
		case <-ctx.Done():
			return
		}
	}
}

// receive is the byte reception handler.
func (c *Controller) receive(ctx context.Context, byteCh <-chan byte) error {
	var epoch uint32
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-c.ctlCh:
			epoch = c.applyControl(req)
		case b := <-byteCh:
			// requests posted before the peer could send this byte
			// must take effect first.
			select {
			case req := <-c.ctlCh:
				epoch = c.applyControl(req)
			default:
			}
			if err := c.write(b); err != nil {
				return err
			}
			c.kick()
			pr := c.syncer.Parse(b)
			c.state.Store(pr.State)
			if pr.Dropped {
				glog.Warningf("byte %02x dropped, frame not consumed", b)
			}
			if pr.Resynced {
				glog.V(2).Info("escape sequence received")
				c.signalResync(epoch)
			}
			if pr.Frame != nil && !pr.Dropped {
				if err := c.handOff(ctx, epochFrame{Frame: *pr.Frame, epoch: epoch}, &epoch); err != nil {
					return err
				}
			}
		}
	}
}

// handOff blocks until the main loop takes the frame. The frame index is
// only reset once the frame is consumed.
func (c *Controller) handOff(ctx context.Context, f epochFrame, epoch *uint32) error {
	for {
		select {
		case c.frameCh <- f:
			c.syncer.Consume()
			return nil
		case req := <-c.ctlCh:
			if *epoch = c.applyControl(req); req.forceSearch {
				glog.V(2).Info("frame dropped on lost sync")
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) applyControl(req control) uint32 {
	if req.forceSearch {
		c.syncer.ForceSearch()
		c.state.Store(link.Searching)
	} else {
		c.syncer.ClearProgress()
	}
	return req.epoch
}

func (c *Controller) signalResync(epoch uint32) {
	for {
		select {
		case c.resyncCh <- epoch:
			return
		default:
		}
		// replace a stale signal.
		select {
		case <-c.resyncCh:
		default:
		}
	}
}

// post sends a request to the receiver, merging with a pending one.
func (c *Controller) post(req control) {
	for {
		select {
		case c.ctlCh <- req:
			return
		default:
		}
		select {
		case old := <-c.ctlCh:
			req.forceSearch = req.forceSearch || old.forceSearch
		default:
		}
	}
}

// desync forces the receiver to search for the escape sequence.
func (c *Controller) desync() {
	c.epoch++
	c.post(control{epoch: c.epoch, forceSearch: true})
}

// dispatch validates a frame and applies it. A frame from an older epoch
// was collected after sync was lost and counts as not synchronized.
func (c *Controller) dispatch(ctx context.Context, ef epochFrame) error {
	c.kick()
	f := ef.Frame
	if f.Marker() != link.FrameMarker || ef.epoch != c.epoch || c.state.Load() != link.Synchronized {
		c.desync()
		c.stats.syncErrors.Add(1)
		return c.reply(ctx, link.AckNotSynced, f)
	}
	if !f.ChecksumOK() {
		c.stats.checksumErrors.Add(1)
		return c.reply(ctx, link.AckChecksum, f)
	}
	if err := c.write(byte(link.AckAccepted)); err != nil {
		return err
	}
	for ch := 1; ch <= pwm.Channels; ch++ {
		c.Engine.SetChannel(ch, pwm.Offset(f.Position(ch)))
	}
	c.Engine.SetDigitalOutputs(f.Switches())
	c.post(control{epoch: c.epoch})
	c.stats.accepted.Add(1)
	if glog.V(4) {
		glog.Infof("frame applied % x", f[:])
	}
	c.notify(ctx, Event{Kind: EventFrameAccepted, Ack: link.AckAccepted, Command: f.Command()})
	return nil
}

func (c *Controller) reply(ctx context.Context, ack link.Ack, f link.Frame) error {
	glog.V(2).Infof("frame rejected (%s): % x", ack, f[:])
	if err := c.write(byte(ack)); err != nil {
		return err
	}
	kind := EventChecksumError
	if ack == link.AckNotSynced {
		kind = EventSyncError
	}
	c.notify(ctx, Event{Kind: kind, Ack: ack})
	return nil
}

// recover holds the fail-safe until the escape sequence is received.
func (c *Controller) recover(ctx context.Context, expired <-chan struct{}, errCh <-chan error) error {
	c.failed.Store(true)
	c.Engine.NeutralizeAll()
	c.desync()
	c.stats.failSafeTrips.Add(1)
	glog.Warning("communication lost, fail-safe engaged")
	c.notify(ctx, Event{Kind: EventFailSafe})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case epoch := <-c.resyncCh:
			if epoch != c.epoch {
				continue
			}
			c.failed.Store(false)
			c.stats.resyncs.Add(1)
			glog.Info("fail-safe cleared")
			c.notify(ctx, Event{Kind: EventRecovered})
			return nil
		case <-c.frameCh:
			c.desync()
		case <-expired:
		}
	}
}

func (c *Controller) write(b byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	_, err := c.ReadWriter.Write([]byte{b})
	return err
}

func (c *Controller) kick() {
	if wd := c.Watchdog; wd != nil {
		wd.Kick()
	}
}

func (c *Controller) notify(ctx context.Context, ev Event) {
	if n := c.Notifier; n != nil {
		ev.Status = c.Status()
		n.Notify(ctx, ev)
	}
}
