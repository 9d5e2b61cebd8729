package host

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/pwmlink/pkg/l0/firmware"
	"github.com/robotalks/pwmlink/pkg/l0/link"
	"github.com/robotalks/pwmlink/pkg/l0/pwm"
)

type clientTestEnv struct {
	t      *testing.T
	client *Client
	peer   net.Conn
	conn   net.Conn
	ctx    context.Context
	cancel func()
}

func newClientTestEnv(t *testing.T) *clientTestEnv {
	env := &clientTestEnv{t: t}
	env.conn, env.peer = net.Pipe()
	env.client = NewClient(env.conn)
	env.client.Timeout = 100 * time.Millisecond
	env.ctx, env.cancel = context.WithCancel(context.TODO())
	return env
}

func (e *clientTestEnv) start() *clientTestEnv {
	go e.client.Run(e.ctx)
	require.Eventually(e.t, e.client.Running, time.Second, time.Millisecond)
	return e
}

func (e *clientTestEnv) close() {
	e.cancel()
	e.conn.Close()
	e.peer.Close()
}

// withFirmware runs a firmware controller on the peer end.
func (e *clientTestEnv) withFirmware() *firmware.Controller {
	ctl := firmware.New(e.peer, pwm.NewEngine(nil))
	ctl.Watchdog = nil
	go ctl.Run(e.ctx)
	return ctl
}

// withPeer runs fn on every byte received by the peer.
func (e *clientTestEnv) withPeer(fn func(b byte) []byte) {
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := e.peer.Read(buf); err != nil {
				return
			}
			if reply := fn(buf[0]); len(reply) > 0 {
				if _, err := e.peer.Write(reply); err != nil {
					return
				}
			}
		}
	}()
}

var testCommand = link.Command{
	Positions: [link.Positions]byte{10, 20, 30, 40, 50, 60},
	Switches:  0x40,
}

func TestClientSend(t *testing.T) {
	env := newClientTestEnv(t)
	defer env.close()
	ctl := env.withFirmware()
	env.start()

	ack, err := env.client.Send(env.ctx, testCommand)
	require.NoError(t, err)
	require.Equal(t, link.AckAccepted, ack)
	require.Eventually(t, func() bool {
		return ctl.Status().Engine.Pending[0] == pwm.Setpoint(10)
	}, time.Second, time.Millisecond)
	s := ctl.Status()
	require.Equal(t, pwm.Setpoint(60), s.Engine.Pending[5])
	require.True(t, s.Engine.OutputA)
}

func TestClientRejected(t *testing.T) {
	env := newClientTestEnv(t)
	defer env.close()
	ctl := env.withFirmware()
	env.start()

	f := testCommand.Frame()
	f[9]++
	ack, err := env.client.SendFrame(env.ctx, f)
	require.Equal(t, link.AckChecksum, ack)
	var ackErr *AckError
	require.True(t, errors.As(err, &ackErr))
	require.Equal(t, link.AckChecksum, ackErr.Ack)
	require.False(t, ackErr.NeedsResync())

	f = testCommand.Frame()
	f[0] = 'A'
	ack, err = env.client.SendFrame(env.ctx, f)
	require.Equal(t, link.AckNotSynced, ack)
	require.True(t, errors.As(err, &ackErr))
	require.True(t, ackErr.NeedsResync())
	require.Eventually(t, func() bool {
		return ctl.State() == link.Searching
	}, time.Second, time.Millisecond)

	// searching device echoes but never acks.
	_, err = env.client.Send(env.ctx, testCommand)
	require.Equal(t, ErrNoAck, err)

	require.NoError(t, env.client.Resync(env.ctx))
	ack, err = env.client.Send(env.ctx, testCommand)
	require.NoError(t, err)
	require.Equal(t, link.AckAccepted, ack)
}

func TestClientAutoResync(t *testing.T) {
	env := newClientTestEnv(t)
	defer env.close()
	env.withFirmware()
	env.client.AutoResync = true
	env.start()

	f := testCommand.Frame()
	f[0] = 0
	ack, err := env.client.SendFrame(env.ctx, f)
	require.Equal(t, link.AckNotSynced, ack)
	require.Error(t, err)

	ack, err = env.client.Send(env.ctx, testCommand)
	require.NoError(t, err)
	require.Equal(t, link.AckAccepted, ack)
}

func TestClientEchoMismatch(t *testing.T) {
	env := newClientTestEnv(t)
	defer env.close()
	env.withPeer(func(b byte) []byte {
		return []byte{b ^ 1}
	})
	env.start()

	_, err := env.client.Send(env.ctx, testCommand)
	require.Equal(t, ErrEchoMismatch, err)
}

func TestClientNoEcho(t *testing.T) {
	env := newClientTestEnv(t)
	defer env.close()
	env.withPeer(func(b byte) []byte {
		return nil
	})
	env.start()

	_, err := env.client.Send(env.ctx, testCommand)
	require.Equal(t, ErrNoEcho, err)
	require.Equal(t, ErrNoEcho, env.client.Resync(env.ctx))
}

func TestClientNotRunning(t *testing.T) {
	env := newClientTestEnv(t)
	defer env.close()
	_, err := env.client.Send(env.ctx, testCommand)
	require.Equal(t, ErrNotRunning, err)
}
