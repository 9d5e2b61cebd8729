package sh

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/pwmlink/pkg/l0/link"
	"github.com/robotalks/pwmlink/pkg/l1/host"
	"github.com/robotalks/pwmlink/pkg/transport"
)

// Conn is a connection to a device. It remembers the last command so
// commands can change a single channel or switch.
type Conn struct {
	URL    string
	Stream transport.Stream
	Client *host.Client

	// AutoRecover resyncs and retries a command sent by the operator when
	// the device doesn't acknowledge it. Keepalive never does this.
	AutoRecover bool

	ctx     context.Context
	cancel  func()
	lock    sync.Mutex
	command link.Command
	result  Result
}

// Result is the outcome of the most recent send.
type Result struct {
	Ack  link.Ack
	Err  error
	Sent uint64
}

// Dial opens the stream at url.
func Dial(ctx context.Context, url string, conf *Config) (*Conn, error) {
	stream, err := transport.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewConn(url, stream, conf), nil
}

// NewConn starts receiving on stream.
func NewConn(url string, stream transport.Stream, conf *Config) *Conn {
	c := &Conn{URL: url, Stream: stream, Client: host.NewClient(stream), AutoRecover: conf.AutoRecover}
	c.Client.Timeout = conf.Timeout
	c.Client.AutoResync = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go func() {
		if err := c.Client.Run(c.ctx); err != nil && err != context.Canceled {
			glog.Errorf("connection %s: %v", url, err)
		}
	}()
	for i := 0; i < 100 && !c.Client.Running(); i++ {
		time.Sleep(time.Millisecond)
	}
	if conf.KeepAlive > 0 {
		go c.keepAlive(conf.KeepAlive)
	}
	return c
}

// Context is canceled when the connection is closed.
func (c *Conn) Context() context.Context {
	return c.ctx
}

// Close implements io.Closer.
func (c *Conn) Close() error {
	c.cancel()
	return c.Stream.Close()
}

// Command returns the last command.
func (c *Conn) Command() link.Command {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.command
}

// Update modifies the command and sends it.
func (c *Conn) Update(fn func(*link.Command)) (link.Ack, error) {
	c.lock.Lock()
	cmd := c.command
	fn(&cmd)
	c.command = cmd
	c.lock.Unlock()
	return c.send(cmd, c.AutoRecover)
}

// Send replaces the command and sends it.
func (c *Conn) Send(cmd link.Command) (link.Ack, error) {
	return c.Update(func(current *link.Command) { *current = cmd })
}

// Resync sends the escape sequence.
func (c *Conn) Resync() error {
	return c.Client.Resync(c.ctx)
}

// LastResult returns the result of the most recent send.
func (c *Conn) LastResult() Result {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.result
}

// send sends cmd. With retry, an unacknowledged frame (device in fail-safe)
// is followed by the escape sequence and sent once more.
func (c *Conn) send(cmd link.Command, retry bool) (link.Ack, error) {
	ack, err := c.Client.Send(c.ctx, cmd)
	if err == host.ErrNoAck && retry {
		glog.V(2).Info("no ack, resync and retry")
		if err = c.Client.Resync(c.ctx); err == nil {
			ack, err = c.Client.Send(c.ctx, cmd)
		}
	}
	c.lock.Lock()
	c.result.Ack, c.result.Err = ack, err
	c.result.Sent++
	c.lock.Unlock()
	return ack, err
}

func (c *Conn) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.send(c.Command(), false); err != nil {
				glog.V(2).Infof("keepalive: %v", err)
			}
		}
	}
}
