// Package host is the L1 side of the command link. It encodes commands
// into frames, verifies the byte echo and collects acknowledgements.
package host

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/pwmlink/pkg/l0/link"
)

// DefaultTimeout is the default wait for each echo or ack byte.
const DefaultTimeout = 500 * time.Millisecond

// Client sends commands over a stream.
type Client struct {
	ReadWriter io.ReadWriter
	// Timeout bounds the wait for each reply byte.
	Timeout time.Duration
	// AutoResync sends the escape sequence when a frame is rejected as
	// not synchronized. The rejected frame is not resent.
	AutoResync bool

	byteCh  chan byte
	running atomic.Bool
	lock    sync.Mutex
}

// NewClient creates a Client.
func NewClient(rw io.ReadWriter) *Client {
	return &Client{
		ReadWriter: rw,
		Timeout:    DefaultTimeout,
		byteCh:     make(chan byte, 64),
	}
}

// Run implements Runnable. It receives bytes until the stream fails
// or ctx is done.
func (c *Client) Run(ctx context.Context) error {
	c.running.Store(true)
	defer c.running.Store(false)

	errCh := make(chan error, 1)
	go func() {
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
			case c.byteCh <- buf[0]:
			case <-ctx.Done():
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Running indicates Run is receiving bytes.
func (c *Client) Running() bool {
	return c.running.Load()
}

// Send encodes cmd and sends it. AckAccepted comes with a nil error.
func (c *Client) Send(ctx context.Context, cmd link.Command) (link.Ack, error) {
	return c.SendFrame(ctx, cmd.Frame())
}

// SendFrame sends a raw frame, which may be invalid on purpose.
func (c *Client) SendFrame(ctx context.Context, f link.Frame) (link.Ack, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.exchange(ctx, f[:]); err != nil {
		return 0, err
	}
	b, err := c.recv(ctx)
	if err == ErrNoEcho {
		return 0, ErrNoAck
	} else if err != nil {
		return 0, err
	}
	ack := link.Ack(b)
	if glog.V(4) {
		glog.Infof("frame % x ack %q", f[:], b)
	}
	if ack == link.AckAccepted {
		return ack, nil
	}
	if ack == link.AckNotSynced && c.AutoResync {
		glog.V(2).Info("not synchronized, sending escape sequence")
		if err := c.exchange(ctx, link.EscapeSequence[:]); err != nil {
			return ack, err
		}
	}
	return ack, &AckError{Ack: ack}
}

// Resync sends the escape sequence. A synchronized device takes these
// bytes as the beginning of a frame, so only use it after the device
// reports AckNotSynced or after a fail-safe.
func (c *Client) Resync(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.exchange(ctx, link.EscapeSequence[:])
}

// exchange writes p and verifies the echo.
func (c *Client) exchange(ctx context.Context, p []byte) error {
	if !c.running.Load() {
		return ErrNotRunning
	}
	c.drain()
	if _, err := c.ReadWriter.Write(p); err != nil {
		return err
	}
	for n, expected := range p {
		b, err := c.recv(ctx)
		if err != nil {
			return err
		}
		if b != expected {
			glog.Warningf("echo[%d] mismatch: sent %02x, got %02x", n, expected, b)
			return ErrEchoMismatch
		}
	}
	return nil
}

func (c *Client) recv(ctx context.Context) (byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case b := <-c.byteCh:
		return b, nil
	case <-timer.C:
		return 0, ErrNoEcho
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// drain discards late replies of a previous exchange.
func (c *Client) drain() {
	for {
		select {
		case b := <-c.byteCh:
			glog.V(2).Infof("discard byte %02x", b)
		default:
			return
		}
	}
}
