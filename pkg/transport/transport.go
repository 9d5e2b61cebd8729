// Package transport opens the byte stream carrying the command link.
//
// A stream is addressed by URL:
//
//	serial:///dev/ttyUSB0?baud=9600&parity=none&stopbits=1
//	tcp://host:port
//	ws://host:port/path
//	tcp-listen://:port          waits for one peer
//	ws-listen://:port/path      waits for one peer
package transport

import (
	"context"
	"io"
	"net"
	"net/url"
)

// Stream is a bidirectional byte stream.
type Stream = io.ReadWriteCloser

// Listener waits for a peer.
type Listener interface {
	Accept(context.Context) (Stream, error)
	Addr() net.Addr
	Close() error
}

// OpenFunc opens a stream from a parsed URL.
type OpenFunc func(context.Context, *url.URL) (Stream, error)

// ListenFunc creates a Listener from a parsed URL.
type ListenFunc func(*url.URL) (Listener, error)

var (
	openers = map[string]OpenFunc{
		"serial": openSerial,
		"tcp":    openTCP,
		"ws":     openWebSocket,
		"wss":    openWebSocket,
	}
	listeners = map[string]ListenFunc{
		"tcp-listen": listenTCP,
		"ws-listen":  listenWebSocket,
	}
)

// RegisterOpener adds a scheme for Open.
func RegisterOpener(scheme string, fn OpenFunc) {
	openers[scheme] = fn
}

// Open opens the stream at rawURL. For listening schemes it blocks
// until a peer connects.
func Open(ctx context.Context, rawURL string) (Stream, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if fn, ok := openers[u.Scheme]; ok {
		return fn(ctx, u)
	}
	if _, ok := listeners[u.Scheme]; !ok {
		return nil, &UnsupportedSchemeError{Scheme: u.Scheme}
	}
	l, err := Listen(rawURL)
	if err != nil {
		return nil, err
	}
	defer l.Close()
	return l.Accept(ctx)
}

// Listen creates a Listener for a listening scheme.
func Listen(rawURL string) (Listener, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	fn, ok := listeners[u.Scheme]
	if !ok {
		return nil, &UnsupportedSchemeError{Scheme: u.Scheme}
	}
	return fn(u)
}

// IsListen indicates rawURL uses a listening scheme.
func IsListen(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	_, ok := listeners[u.Scheme]
	return ok
}
