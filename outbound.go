package esl

import "context"

// Connect performs the outbound-mode handshake: it writes `connect`, and
// hydrates the CHANNEL_DATA event FreeSWITCH returns as a command/reply
// frame with the event's headers hoisted directly into the reply. The
// result is cached on the Connection; subsequent calls return the cached
// EventMessage without writing to the socket again.
func (c *Connection) Connect() *Future[*EventMessage] {
	future, ch := newFuture[*EventMessage]()

	c.channelDataMu.Lock()
	if c.channelData != nil {
		cached := c.channelData
		c.channelDataMu.Unlock()
		resolve(ch, cached)
		return future
	}
	c.channelDataMu.Unlock()

	if c.closed.Load() {
		reject(ch, ErrDisposed)
		return future
	}

	cmdFuture := c.sendCommand("connect")
	go func() {
		reply, err := cmdFuture.Wait(context.Background())
		if err != nil {
			reject(ch, err)
			return
		}
		ev, perr := ParseEvent(reply.Message)
		if perr != nil {
			reject(ch, perr)
			return
		}
		c.channelDataMu.Lock()
		c.channelData = ev
		c.channelDataMu.Unlock()
		resolve(ch, ev)
	}()

	return future
}

// Linger instructs FreeSWITCH to keep this outbound socket open past
// channel hangup, so the caller can keep issuing commands during cleanup.
func (c *Connection) Linger() *Future[*CommandReply] {
	return c.sendCommand("linger")
}

// NoLinger reverts Linger: FreeSWITCH closes the socket immediately on
// hangup.
func (c *Connection) NoLinger() *Future[*CommandReply] {
	return c.sendCommand("nolinger")
}
