package transport

import (
	"context"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func roundTrip(t *testing.T, listenURL, dialFmt string) {
	l, err := Listen(listenURL)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.TODO(), 5*time.Second)
	defer cancel()

	acceptCh := make(chan Stream, 1)
	go func() {
		s, err := l.Accept(ctx)
		if err != nil {
			t.Logf("accept error: %v", err)
			close(acceptCh)
			return
		}
		acceptCh <- s
	}()

	client, err := Open(ctx, dialFmt+l.Addr().String()+"/link")
	require.NoError(t, err)
	defer client.Close()

	server, ok := <-acceptCh
	require.True(t, ok)
	defer server.Close()

	msg := []byte{'C', 1, 2, 3, 0xff}
	_, err = client.Write(msg)
	require.NoError(t, err)
	buf := make([]byte, len(msg))
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	require.Equal(t, msg, buf)

	_, err = server.Write([]byte{'G'})
	require.NoError(t, err)
	_, err = io.ReadFull(client, buf[:1])
	require.NoError(t, err)
	require.Equal(t, byte('G'), buf[0])
}

func TestTCP(t *testing.T) {
	roundTrip(t, "tcp-listen://127.0.0.1:0", "tcp://")
}

func TestWebSocket(t *testing.T) {
	roundTrip(t, "ws-listen://127.0.0.1:0/link", "ws://")
}

func TestAcceptCanceled(t *testing.T) {
	l, err := Listen("tcp-listen://127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	ctx, cancel := context.WithCancel(context.TODO())
	cancel()
	_, err = l.Accept(ctx)
	require.Equal(t, context.Canceled, err)

	l, err = Listen("ws-listen://127.0.0.1:0/")
	require.NoError(t, err)
	_, err = l.Accept(ctx)
	require.Equal(t, context.Canceled, err)
	require.NoError(t, l.Close())
}

func TestUnsupportedScheme(t *testing.T) {
	_, err := Open(context.TODO(), "udp://localhost:1")
	require.Equal(t, &UnsupportedSchemeError{Scheme: "udp"}, err)
	_, err = Listen("tcp://localhost:1")
	require.Equal(t, &UnsupportedSchemeError{Scheme: "tcp"}, err)
	require.True(t, IsListen("ws-listen://:8080/"))
	require.False(t, IsListen("serial:///dev/ttyS0"))
}

func TestSerialMode(t *testing.T) {
	testCases := []struct {
		query  string
		expect *serial.Mode
		err    bool
	}{
		{
			query:  "",
			expect: &serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		},
		{
			query:  "baud=115200&parity=even&stopbits=2",
			expect: &serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.EvenParity, StopBits: serial.TwoStopBits},
		},
		{query: "baud=fast", err: true},
		{query: "parity=mark", err: true},
		{query: "stopbits=3", err: true},
	}
	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			q, err := url.ParseQuery(tc.query)
			require.NoError(t, err)
			mode, err := SerialMode(q)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expect, mode)
		})
	}
}
