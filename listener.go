package esl

import (
	"net"
	"strconv"
	"sync"

	"go.uber.org/atomic"
)

// ConnFactory builds a Connection from a freshly accepted net.Conn. The
// default factory (newOutboundConnection) starts the reader loop
// immediately; tests may substitute a factory that wraps a fake net.Conn.
type ConnFactory func(net.Conn, Logger) *Connection

func newOutboundConnection(conn net.Conn, lgr Logger) *Connection {
	c := newConnection(conn, lgr)
	c.start()
	return c
}

// Listener accepts outbound-mode ESL connections initiated by FreeSWITCH's
// dialplan `socket` application and publishes each as a fully initialized
// Connection. Callers still drive the `connect` handshake themselves via
// Connection.Connect; the Listener's job ends at handing over a live,
// reader-started Connection. Closing the Listener closes every accepted
// Connection still alive.
type Listener struct {
	ln      net.Listener
	factory ConnFactory
	lgr     Logger

	conns *broadcastHub[*Connection]

	liveMu sync.Mutex
	live   map[*Connection]struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	doneCh    chan struct{}
}

// NewListener binds port (0 picks any free port) and starts accepting
// connections in the background. Pass a nil factory to use the default,
// which starts the reader loop on accept; tests needing a fake transport
// can substitute their own. Call Port to read back the bound port.
func NewListener(port int, lgr Logger, factory ConnFactory) (*Listener, error) {
	lgr = orNop(lgr)
	if factory == nil {
		factory = newOutboundConnection
	}
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	l := &Listener{
		ln:      ln,
		factory: factory,
		lgr:     lgr,
		conns:   newBroadcastHub[*Connection]("listener-connections", lgr),
		live:    make(map[*Connection]struct{}),
		doneCh:  make(chan struct{}),
	}
	go l.acceptLoop()
	return l, nil
}

// Addr returns the listener's bound network address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Port returns the bound TCP port, resolved even when NewListener was
// called with port 0.
func (l *Listener) Port() int {
	if tcpAddr, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	return 0
}

// Connections returns a multi-subscriber stream of accepted Connections.
func (l *Listener) Connections() (<-chan *Connection, func()) {
	return l.conns.subscribe()
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.closed.Load() {
				return
			}
			l.lgr.Err("esl: listener accept error: " + err.Error())
			return
		}
		c := l.factory(conn, l.lgr)
		l.liveMu.Lock()
		l.live[c] = struct{}{}
		l.liveMu.Unlock()
		go l.reap(c)
		l.conns.publish(c)
	}
}

// reap drops c from the live set once it terminates (peer close, protocol
// error, or explicit Connection.Close), so a hung-up call leg doesn't pin
// memory until the Listener itself is disposed.
func (l *Listener) reap(c *Connection) {
	<-c.Done()
	l.liveMu.Lock()
	delete(l.live, c)
	l.liveMu.Unlock()
}

// Close stops accepting new connections, completes the Connections
// stream, and disposes every still-live accepted Connection. Safe to call
// more than once.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		err = l.ln.Close()
		close(l.doneCh)

		l.conns.close()

		l.liveMu.Lock()
		live := make([]*Connection, 0, len(l.live))
		for c := range l.live {
			live = append(live, c)
		}
		l.live = make(map[*Connection]struct{})
		l.liveMu.Unlock()

		for _, c := range live {
			c.Close()
		}
	})
	return err
}

// Done returns a channel closed once the Listener has been disposed.
func (l *Listener) Done() <-chan struct{} {
	return l.doneCh
}
