package esl

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerAcceptsAndPublishesConnections(t *testing.T) {
	l, err := NewListener(0, nil, nil)
	require.NoError(t, err)
	defer l.Close()

	assert.NotZero(t, l.Port())

	conns, cancel := l.Connections()
	defer cancel()

	clientConn, err := net.DialTimeout("tcp", l.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer clientConn.Close()

	select {
	case c := <-conns:
		require.NotNil(t, c)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not publish accepted connection in time")
	}
}

// Disposing a Listener must terminate every live Connection and fail
// their outstanding futures.
func TestListenerCloseDisposesLiveConnections(t *testing.T) {
	l, err := NewListener(0, nil, nil)
	require.NoError(t, err)

	conns, cancel := l.Connections()
	defer cancel()

	clientConn, err := net.DialTimeout("tcp", l.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer clientConn.Close()

	var serverSide *Connection
	select {
	case serverSide = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not accept in time")
	}

	pending := serverSide.SendCommand("status")

	require.NoError(t, l.Close())

	_, err = waitT(t, pending)
	assert.ErrorIs(t, err, ErrConnectionClosed)

	select {
	case <-serverSide.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("accepted Connection was not disposed by Listener.Close")
	}

	select {
	case <-l.Done():
	default:
		t.Fatal("Listener.Done() should be closed after Close")
	}
}

func TestListenerCustomFactory(t *testing.T) {
	var factoryCalls int
	factory := func(conn net.Conn, lgr Logger) *Connection {
		factoryCalls++
		c := newConnection(conn, lgr)
		c.start()
		return c
	}

	l, err := NewListener(0, nil, factory)
	require.NoError(t, err)
	defer l.Close()

	conns, cancel := l.Connections()
	defer cancel()

	clientConn, err := net.DialTimeout("tcp", l.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer clientConn.Close()

	select {
	case <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not accept in time")
	}
	assert.Equal(t, 1, factoryCalls)
}
