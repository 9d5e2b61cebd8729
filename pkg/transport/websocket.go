package transport

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// wsConn carries bytes in binary frames.
type wsConn struct {
	*websocket.Conn
	done chan struct{}
	once sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	conn.PayloadType = websocket.BinaryFrame
	return &wsConn{Conn: conn, done: make(chan struct{})}
}

// Close implements io.Closer.
func (c *wsConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { close(c.done) })
	return err
}

func openWebSocket(ctx context.Context, u *url.URL) (Stream, error) {
	origin := "http://" + u.Host
	if u.Scheme == "wss" {
		origin = "https://" + u.Host
	}
	conf, err := websocket.NewConfig(u.String(), origin)
	if err != nil {
		return nil, err
	}
	conn, err := conf.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	return newWSConn(conn), nil
}

type wsListener struct {
	ln     net.Listener
	srv    *http.Server
	connCh chan *wsConn
	closed chan struct{}
	once   sync.Once
}

func listenWebSocket(u *url.URL) (Listener, error) {
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, err
	}
	l := &wsListener{
		ln:     ln,
		connCh: make(chan *wsConn),
		closed: make(chan struct{}),
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(path, websocket.Server{Handler: l.handle})
	l.srv = &http.Server{Handler: mux}
	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			glog.Errorf("websocket server error: %v", err)
		}
	}()
	return l, nil
}

// handle hands the connection to Accept and holds it until closed.
func (l *wsListener) handle(conn *websocket.Conn) {
	c := newWSConn(conn)
	select {
	case l.connCh <- c:
		glog.Infof("peer connected from %s", conn.Request().RemoteAddr)
		<-c.done
	case <-l.closed:
	}
}

// Accept implements Listener.
func (l *wsListener) Accept(ctx context.Context) (Stream, error) {
	select {
	case c := <-l.connCh:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr implements Listener.
func (l *wsListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting. Accepted connections stay open.
func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = l.srv.Close()
	})
	return err
}
