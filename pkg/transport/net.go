package transport

import (
	"context"
	"net"
	"net/url"

	"github.com/golang/glog"
)

func openTCP(ctx context.Context, u *url.URL) (Stream, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", u.Host)
}

type tcpListener struct {
	net.Listener
}

func listenTCP(u *url.URL) (Listener, error) {
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, err
	}
	return &tcpListener{Listener: ln}, nil
}

// Accept implements Listener.
func (l *tcpListener) Accept(ctx context.Context) (Stream, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.Listener.Accept()
		ch <- result{conn: conn, err: err}
	}()
	select {
	case r := <-ch:
		if r.err == nil {
			glog.Infof("peer connected from %s", r.conn.RemoteAddr())
		}
		return r.conn, r.err
	case <-ctx.Done():
		l.Listener.Close()
		return nil, ctx.Err()
	}
}
