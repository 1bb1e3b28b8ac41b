package esl

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeServer is the FreeSWITCH-side half of a loopback TCP connection used
// to drive a Connection under test without a real FreeSWITCH instance. A
// real loopback socket (rather than an in-process pipe) keeps the
// Connection's actual net.Conn/Framer path in play.
type fakeServer struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (s *fakeServer) send(raw string) {
	_, err := s.conn.Write([]byte(raw))
	require.NoError(s.t, err)
}

// readLine reads one LF-terminated line written by the client (e.g. to
// assert on the exact command text sent).
func (s *fakeServer) readLine() string {
	line, err := s.r.ReadString('\n')
	require.NoError(s.t, err)
	return line
}

// drainUntilBlank reads and discards lines until (and including) a blank
// line, i.e. consumes one full command frame without inspecting it.
func (s *fakeServer) drainUntilBlank() {
	for {
		line := s.readLine()
		if line == "\n" || line == "\r\n" {
			return
		}
	}
}

func (s *fakeServer) close() {
	s.conn.Close()
}

// newConnectedPair dials a loopback TCP listener and wraps the client side
// in a Connection with its reader loop already started; the server side is
// handed back as a fakeServer the test drives directly.
func newConnectedPair(t *testing.T) (*Connection, *fakeServer) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		conn, acceptErr := ln.Accept()
		if acceptErr == nil {
			serverConnCh <- conn
		}
	}()

	clientConn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	require.NoError(t, err)

	var serverConn net.Conn
	select {
	case serverConn = <-serverConnCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not accept in time")
	}

	c := newConnection(clientConn, nil)
	c.start()
	t.Cleanup(func() { c.Close() })

	srv := &fakeServer{t: t, conn: serverConn, r: bufio.NewReader(serverConn)}
	t.Cleanup(srv.close)
	return c, srv
}
