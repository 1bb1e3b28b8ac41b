package esl

import (
	"context"
	"net"
	"sync"
)

// Dial opens a TCP connection to FreeSWITCH in inbound mode, waits for the
// auth/request challenge, and authenticates with password. The reader loop
// only starts after a successful handshake, so no frame can race the auth
// exchange.
func Dial(addr, password string, lgr Logger) (*Connection, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	c := newConnection(conn, lgr)

	challenge, err := c.framer.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, classifyReadErr(err)
	}
	if challenge.ContentType() != ContentTypeAuthRequest {
		conn.Close()
		return nil, &ProtocolError{Reason: "expected auth/request, got content-type " + challenge.ContentType()}
	}

	if _, err := conn.Write([]byte("auth " + password + "\n\n")); err != nil {
		conn.Close()
		return nil, &TransportError{Cause: err}
	}
	reply, err := c.framer.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, classifyReadErr(err)
	}
	cr := newCommandReply(reply)
	if !cr.Success {
		conn.Close()
		return nil, &AuthError{ReplyText: reply.ReplyText()}
	}

	c.start()
	return c, nil
}

// OriginateResult is the outcome of an Originate call: exactly one of
// Event (the winning CHANNEL_ANSWER/CHANNEL_HANGUP/CHANNEL_PROGRESS event)
// or Err (the bgapi dispatch failure) is set, matching whichever path
// resolved first.
type OriginateResult struct {
	Success bool
	Event   *EventMessage
	Err     string
}

// Originate places a new outbound call via the `originate` API, correlated
// through bgapi plus an event-keyed wait for the first qualifying channel
// event on the freshly minted (or caller-supplied) UUID. If options.UUID is
// empty, a fresh UUID is minted and written back into options. Exactly one
// of the bgapi-failure path or the channel-event path resolves the
// returned future; the other is a no-op.
func (c *Connection) Originate(endpoint string, options *OriginateOptions, application string) *Future[*OriginateResult] {
	if options == nil {
		options = &OriginateOptions{}
	}
	if options.UUID == "" {
		options.UUID = newUUID()
	}
	if application == "" {
		application = "park"
	}

	future, ch := newFuture[*OriginateResult]()
	if c.closed.Load() {
		reject(ch, ErrDisposed)
		return future
	}

	var once sync.Once
	done := make(chan struct{})
	resolveOnce := func(r *OriginateResult) {
		once.Do(func() {
			resolve(ch, r)
			close(done)
		})
	}

	wantProgress := options.ReturnRingReady
	cancel := c.addEventWaiter(func(ev *EventMessage) bool {
		if ev.UUID() != options.UUID {
			return false
		}
		switch ev.EventName() {
		case "CHANNEL_ANSWER", "CHANNEL_HANGUP":
			return true
		case "CHANNEL_PROGRESS":
			return wantProgress
		default:
			return false
		}
	}, func(ev *EventMessage) bool {
		resolveOnce(&OriginateResult{Success: true, Event: ev})
		return true
	})

	command := options.String() + endpoint + " &" + application
	bgFuture := c.BgApi("originate", command, "")

	go func() {
		res, err := bgFuture.Wait(context.Background())
		if err != nil {
			cancel()
			resolveOnce(&OriginateResult{Success: false, Err: err.Error()})
			return
		}
		if !res.Success {
			cancel()
			resolveOnce(&OriginateResult{Success: false, Err: res.Err})
			return
		}
		// Leave the event waiter in place to resolve on the qualifying
		// channel event, which may already have fired, unless the
		// Connection ends first.
		select {
		case <-done:
		case <-c.doneCh:
			resolveOnce(&OriginateResult{Success: false, Err: ErrConnectionClosed.Error()})
		}
	}()

	return future
}
