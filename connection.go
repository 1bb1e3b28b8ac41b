package esl

import (
	"net"
	"sync"

	"go.uber.org/atomic"
)

// Connection is the demultiplexing layer over a single ESL TCP socket: one
// reader goroutine publishes every incoming frame on the Messages
// broadcast and then routes it by content type: command/reply to the
// command FIFO, api/response to the api FIFO, and events to the Events
// broadcast, the job-keyed bgapi waiters and the event-keyed waiters
// (ExecuteApp/Originate). Every public operation writes under a single
// mutex that also guards the matching FIFO's enqueue, so the FIFO order
// always matches the write order on the wire. FreeSWITCH replies in order
// on a single socket; keeping enqueue and write atomic preserves that
// pairing for callers.
type Connection struct {
	conn   net.Conn
	framer *Framer
	lgr    Logger

	writeMu sync.Mutex // serializes writes; "enqueue then write" happens inside this lock

	cmdMu    sync.Mutex
	cmdQueue []chan<- futureResult[*CommandReply]

	apiMu    sync.Mutex
	apiQueue []chan<- futureResult[*ApiResponse]

	jobMu      sync.Mutex
	jobWaiters map[string]chan<- futureResult[*BackgroundJobResult]

	eventMu      sync.Mutex
	eventWaiters []*eventWaiter

	messages *broadcastHub[*BasicMessage]
	events   *broadcastHub[*EventMessage]

	closed    atomic.Bool
	closeOnce sync.Once
	doneCh    chan struct{}

	// outbound-only: hydrated once by Connect, see outbound.go.
	channelDataMu sync.Mutex
	channelData   *EventMessage
}

type eventWaiter struct {
	match   func(*EventMessage) bool
	resolve func(*EventMessage) bool // called once with the first matching event
}

func newConnection(conn net.Conn, lgr Logger) *Connection {
	lgr = orNop(lgr)
	c := &Connection{
		conn:       conn,
		framer:     NewFramer(conn),
		lgr:        lgr,
		jobWaiters: make(map[string]chan<- futureResult[*BackgroundJobResult]),
		messages:   newBroadcastHub[*BasicMessage]("messages", lgr),
		events:     newBroadcastHub[*EventMessage]("events", lgr),
		doneCh:     make(chan struct{}),
	}
	return c
}

// start launches the single reader goroutine. Callers (Dial, Listener)
// invoke this once the connection is otherwise ready to receive frames.
func (c *Connection) start() {
	go c.readLoop()
}

// Messages returns a multi-subscriber stream of every frame received,
// regardless of content type. cancel removes the subscription; failing to
// call it leaks the subscriber's buffer until the Connection closes.
func (c *Connection) Messages() (<-chan *BasicMessage, func()) {
	return c.messages.subscribe()
}

// Events returns a multi-subscriber stream of every text/event-plain
// frame received, parsed into an EventMessage, plus the CHANNEL_DATA
// event carried by a command/reply with an Event-Name header (the reply
// to an outbound `connect`).
func (c *Connection) Events() (<-chan *EventMessage, func()) {
	return c.events.subscribe()
}

// Auth sends `auth <password>` and resolves with its CommandReply. Dial
// performs this as part of the inbound handshake; most callers never need
// it directly.
func (c *Connection) Auth(password string) *Future[*CommandReply] {
	return c.sendCommand("auth " + password)
}

// SendCommand writes text followed by the blank-line terminator and
// resolves with the next command/reply frame, preserving strict FIFO
// pairing with any other concurrent SendCommand/Auth/BgApi/ExecuteApp
// calls on this Connection.
func (c *Connection) SendCommand(text string) *Future[*CommandReply] {
	return c.sendCommand(text)
}

func (c *Connection) sendCommand(text string) *Future[*CommandReply] {
	future, ch := newFuture[*CommandReply]()
	if c.closed.Load() {
		reject(ch, ErrDisposed)
		return future
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.cmdMu.Lock()
	c.cmdQueue = append(c.cmdQueue, ch)
	c.cmdMu.Unlock()
	if err := c.writeLocked(text + "\n\n"); err != nil {
		c.terminate(&TransportError{Cause: err})
		reject(ch, ErrConnectionClosed)
	}
	return future
}

// EventsPlain subscribes this socket to the named events in plain format
// (`event plain <names>`). With no names, subscribes to all events.
func (c *Connection) EventsPlain(events ...string) *Future[*CommandReply] {
	cmd := "event plain"
	if len(events) == 0 {
		cmd += " all"
	} else {
		for _, ev := range events {
			cmd += " " + ev
		}
	}
	return c.sendCommand(cmd)
}

// Filter installs a server-side event filter (`filter <header> <value>`):
// only events whose header matches are delivered to this socket.
func (c *Connection) Filter(header, value string) *Future[*CommandReply] {
	return c.sendCommand("filter " + header + " " + value)
}

// Exit asks FreeSWITCH to close this socket. The peer replies and then
// disconnects; the Connection terminates when the close is observed.
func (c *Connection) Exit() *Future[*CommandReply] {
	return c.sendCommand("exit")
}

// SendApi writes `api text` and resolves with the next api/response frame.
func (c *Connection) SendApi(text string) *Future[*ApiResponse] {
	future, ch := newFuture[*ApiResponse]()
	if c.closed.Load() {
		reject(ch, ErrDisposed)
		return future
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.apiMu.Lock()
	c.apiQueue = append(c.apiQueue, ch)
	c.apiMu.Unlock()
	if err := c.writeLocked("api " + text + "\n\n"); err != nil {
		c.terminate(&TransportError{Cause: err})
		reject(ch, ErrConnectionClosed)
	}
	return future
}

// BgApi issues a background API command. If jobID is "", a fresh one is
// minted. It resolves when the matching BACKGROUND_JOB event arrives, or
// earlier if the bgapi dispatch itself is rejected by a -ERR command/reply
// (in which case the event subscription is cancelled and never fires).
func (c *Connection) BgApi(command, arg, jobID string) *Future[*BackgroundJobResult] {
	if jobID == "" {
		jobID = newUUID()
	}
	future, ch := newFuture[*BackgroundJobResult]()
	if c.closed.Load() {
		reject(ch, ErrDisposed)
		return future
	}

	c.jobMu.Lock()
	c.jobWaiters[jobID] = ch
	c.jobMu.Unlock()

	line := "bgapi " + command
	if arg != "" {
		line += " " + arg
	}
	line += "\nJob-UUID: " + jobID

	cmdCh := newInternalResultChan[*CommandReply]()
	c.writeMu.Lock()
	c.cmdMu.Lock()
	c.cmdQueue = append(c.cmdQueue, cmdCh)
	c.cmdMu.Unlock()
	err := c.writeLocked(line + "\n\n")
	c.writeMu.Unlock()
	if err != nil {
		c.terminate(&TransportError{Cause: err})
		c.cancelJobWaiter(jobID)
		reject(ch, ErrConnectionClosed)
		return future
	}

	go func() {
		r := <-cmdCh
		if r.err != nil || (r.val != nil && !r.val.Success) {
			c.cancelJobWaiter(jobID)
			errMsg := ""
			if r.val != nil {
				errMsg = r.val.Err
			} else if r.err != nil {
				errMsg = r.err.Error()
			}
			resolve(ch, bgapiFailure(errMsg))
		}
		// else: leave ch to be resolved by the BACKGROUND_JOB event.
	}()

	return future
}

func (c *Connection) cancelJobWaiter(jobID string) {
	c.jobMu.Lock()
	defer c.jobMu.Unlock()
	delete(c.jobWaiters, jobID)
}

// ExecuteApp runs a dialplan application on uuid via sendmsg and resolves
// with the matching CHANNEL_EXECUTE_COMPLETE event. The event may arrive
// before or after the sendmsg command/reply; either order resolves
// correctly, and the event subscription is always cleaned up.
func (c *Connection) ExecuteApp(uuid, appName, appArg string) *Future[*EventMessage] {
	future, ch := newFuture[*EventMessage]()
	if c.closed.Load() {
		reject(ch, ErrDisposed)
		return future
	}

	var once sync.Once
	done := make(chan struct{})
	resolveOnce := func(ev *EventMessage, err error) {
		once.Do(func() {
			if err != nil {
				reject(ch, err)
			} else {
				resolve(ch, ev)
			}
			close(done)
		})
	}

	cancel := c.addEventWaiter(func(ev *EventMessage) bool {
		return ev.EventName() == "CHANNEL_EXECUTE_COMPLETE" &&
			ev.UUID() == uuid &&
			ev.Get("Application") == appName
	}, func(ev *EventMessage) bool {
		resolveOnce(ev, nil)
		return true
	})

	line := "sendmsg " + uuid + "\ncall-command: execute\nexecute-app-name: " + appName + "\nexecute-app-arg: " + appArg

	cmdCh := newInternalResultChan[*CommandReply]()
	c.writeMu.Lock()
	c.cmdMu.Lock()
	c.cmdQueue = append(c.cmdQueue, cmdCh)
	c.cmdMu.Unlock()
	err := c.writeLocked(line + "\n\n")
	c.writeMu.Unlock()
	if err != nil {
		cancel()
		c.terminate(&TransportError{Cause: err})
		resolveOnce(nil, ErrConnectionClosed)
		return future
	}

	go func() {
		r := <-cmdCh
		if r.err != nil || (r.val != nil && !r.val.Success) {
			cancel()
			if r.err != nil {
				resolveOnce(nil, r.err)
			} else {
				resolveOnce(nil, &CommandDispatchError{ReplyText: r.val.Err})
			}
			return
		}
		// Dispatch accepted: the event resolves the future, unless the
		// Connection ends first.
		select {
		case <-done:
		case <-c.doneCh:
			resolveOnce(nil, ErrConnectionClosed)
		}
	}()

	return future
}

// addEventWaiter registers a one-shot predicate/resolver pair against the
// event stream and returns a cancel function. The waiter is removed the
// first time match returns true, and claim is then called with that
// event; claim's return value is not used.
func (c *Connection) addEventWaiter(match func(*EventMessage) bool, claim func(*EventMessage) bool) func() {
	w := &eventWaiter{match: match, resolve: claim}
	c.eventMu.Lock()
	c.eventWaiters = append(c.eventWaiters, w)
	c.eventMu.Unlock()
	return func() {
		c.eventMu.Lock()
		defer c.eventMu.Unlock()
		for i, ww := range c.eventWaiters {
			if ww == w {
				c.eventWaiters = append(c.eventWaiters[:i], c.eventWaiters[i+1:]...)
				return
			}
		}
	}
}

func (c *Connection) dispatchToEventWaiters(ev *EventMessage) {
	c.eventMu.Lock()
	var claimed *eventWaiter
	idx := -1
	for i, w := range c.eventWaiters {
		if w.match(ev) {
			claimed = w
			idx = i
			break
		}
	}
	if claimed != nil {
		c.eventWaiters = append(c.eventWaiters[:idx], c.eventWaiters[idx+1:]...)
	}
	c.eventMu.Unlock()
	if claimed != nil {
		claimed.resolve(ev)
	}
}

// writeLocked writes payload to the socket. Callers must hold writeMu.
func (c *Connection) writeLocked(payload string) error {
	_, err := c.conn.Write([]byte(payload))
	return err
}

// Close disposes the Connection: it trips the connection's done signal,
// fails every pending future with ErrConnectionClosed, completes the
// Messages/Events streams normally, and closes the socket. Safe to call
// more than once and from any goroutine; it always returns nil.
func (c *Connection) Close() error {
	c.terminate(nil)
	return nil
}

// terminate is the single chokepoint for ending a Connection, whatever
// the cause (explicit Close, ProtocolError, TransportError, peer
// disconnect-notice). cause == nil means an explicit, non-error dispose;
// pending futures still resolve with ErrConnectionClosed in that case.
func (c *Connection) terminate(cause error) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.doneCh)

		c.cmdMu.Lock()
		cmdQueue := c.cmdQueue
		c.cmdQueue = nil
		c.cmdMu.Unlock()
		for _, ch := range cmdQueue {
			reject(ch, ErrConnectionClosed)
		}

		c.apiMu.Lock()
		apiQueue := c.apiQueue
		c.apiQueue = nil
		c.apiMu.Unlock()
		for _, ch := range apiQueue {
			reject(ch, ErrConnectionClosed)
		}

		c.jobMu.Lock()
		jobs := c.jobWaiters
		c.jobWaiters = make(map[string]chan<- futureResult[*BackgroundJobResult])
		c.jobMu.Unlock()
		for _, ch := range jobs {
			reject(ch, ErrConnectionClosed)
		}

		c.eventMu.Lock()
		c.eventWaiters = nil
		c.eventMu.Unlock()

		c.messages.close()
		c.events.close()

		if cause != nil {
			c.lgr.Err("esl: connection terminated: " + cause.Error())
		}
		_ = c.conn.Close()
	})
}

// Done returns a channel closed once the Connection has terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.doneCh
}

// readLoop is the single reader goroutine: it classifies every incoming
// frame by Content-Type and routes it to the right FIFO, waiter map, or
// broadcast. A connection-level read error fails both FIFOs in full;
// there is no way to know which outstanding request the lost frame
// belonged to.
func (c *Connection) readLoop() {
	for {
		msg, err := c.framer.ReadMessage()
		if err != nil {
			c.terminate(classifyReadErr(err))
			return
		}
		c.messages.publish(msg)

		switch msg.ContentType() {
		case ContentTypeCommandReply:
			if _, ok := msg.Headers["Event-Name"]; ok {
				// Outbound `connect` handshake quirk: this command/reply IS
				// the CHANNEL_DATA event. Publish it as an event, then let
				// it complete the oldest pending command (Connect's) like
				// any other command/reply.
				ev, perr := ParseEvent(msg)
				if perr == nil {
					c.events.publish(ev)
					c.dispatchToEventWaiters(ev)
				}
			}
			completeOldest(&c.cmdMu, &c.cmdQueue, newCommandReply(msg))

		case ContentTypeApiResponse:
			completeOldest(&c.apiMu, &c.apiQueue, newApiResponse(msg))

		case ContentTypeEventPlain:
			ev, perr := ParseEvent(msg)
			if perr != nil {
				c.terminate(perr)
				return
			}
			c.events.publish(ev)
			if ev.EventName() == "BACKGROUND_JOB" {
				c.completeJobWaiter(ev)
			}
			c.dispatchToEventWaiters(ev)

		case ContentTypeDisconnectNotice:
			c.terminate(nil)
			return

		case ContentTypeLogData:
			// Opaque to this library; already published on Messages().

		default:
			// auth/request and anything else: published on Messages() only.
		}
	}
}

func (c *Connection) completeJobWaiter(ev *EventMessage) {
	jobID := ev.Get("Job-UUID")
	if jobID == "" {
		return
	}
	c.jobMu.Lock()
	ch, ok := c.jobWaiters[jobID]
	if ok {
		delete(c.jobWaiters, jobID)
	}
	c.jobMu.Unlock()
	if ok {
		resolve(ch, newBackgroundJobResult(ev))
	}
}

// completeOldest pops the oldest pending future off queue and resolves it
// with reply: the ith SendCommand (or SendApi) future resolves with the
// ith reply frame of that kind, in arrival order.
func completeOldest[T any](mu *sync.Mutex, queue *[]chan<- futureResult[T], reply T) {
	mu.Lock()
	var ch chan<- futureResult[T]
	if len(*queue) > 0 {
		ch = (*queue)[0]
		*queue = (*queue)[1:]
	}
	mu.Unlock()
	if ch != nil {
		resolve(ch, reply)
	}
}

func classifyReadErr(err error) error {
	if pe, ok := err.(*ProtocolError); ok {
		return pe
	}
	return &TransportError{Cause: err}
}
