package esl

import (
	"strconv"
	"strings"
)

// EventMessage is a BasicMessage whose payload describes one FreeSWITCH
// event. It wraps either:
//
//   - a command/reply frame that already carries an Event-Name header
//     (FreeSWITCH hoists the CHANNEL_DATA event straight into the reply
//     headers of an outbound socket's `connect`); or
//   - a text/event-plain frame, whose body is itself a header block
//     optionally followed by a Content-Length-prefixed sub-body (e.g. the
//     command output BACKGROUND_JOB carries).
//
// The sub-body is sliced to its declared Content-Length, never delimited
// by the next blank line: command output may legitimately contain blank
// lines of its own.
type EventMessage struct {
	Message *BasicMessage
	Headers map[string]string
	Body    []byte
}

// ParseEvent builds an EventMessage from a raw BasicMessage. src must be
// either a command/reply carrying Event-Name, or a text/event-plain frame.
func ParseEvent(src *BasicMessage) (*EventMessage, error) {
	if src.ContentType() == ContentTypeCommandReply {
		if _, ok := src.Headers["Event-Name"]; ok {
			return &EventMessage{Message: src, Headers: src.Headers}, nil
		}
		return nil, &ProtocolError{Reason: "command/reply has no Event-Name, not a CHANNEL_DATA frame"}
	}
	if src.ContentType() != ContentTypeEventPlain {
		return nil, &ProtocolError{Reason: "unsupported event content-type: " + src.ContentType()}
	}
	headers, body, err := parseEventPayload(src.Body)
	if err != nil {
		return nil, err
	}
	return &EventMessage{Message: src, Headers: headers, Body: body}, nil
}

// parseEventPayload parses the text/event-plain body: a \n\n-terminated
// header block, optionally followed by a Content-Length-prefixed
// sub-body. The sub-body is read as exactly Content-Length bytes; any
// trailing "\n\n" after it is discarded rather than used to delimit it.
func parseEventPayload(payload []byte) (map[string]string, []byte, error) {
	idx := strings.Index(string(payload), "\n\n")
	var headerBlock string
	var rest []byte
	if idx < 0 {
		headerBlock = string(payload)
	} else {
		headerBlock = string(payload[:idx])
		rest = payload[idx+2:]
	}

	headers := make(map[string]string)
	for _, line := range strings.Split(headerBlock, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		k, v, ok := splitHeaderLine(line)
		if !ok {
			continue
		}
		headers[k] = v
	}

	clStr, hasCL := headers["Content-Length"]
	if !hasCL || clStr == "" {
		return headers, nil, nil
	}
	n, err := strconv.Atoi(clStr)
	if err != nil {
		return nil, nil, &ProtocolError{Reason: "malformed Content-Length in event sub-body: " + clStr}
	}
	if len(rest) < n {
		return nil, nil, &ProtocolError{Reason: "truncated event sub-body"}
	}
	body := rest[:n]
	return headers, body, nil
}

// Get returns an event header value, or "" if absent.
func (e *EventMessage) Get(key string) string {
	return e.Headers[key]
}

// UUID returns the Unique-ID header.
func (e *EventMessage) UUID() string {
	return e.Headers["Unique-ID"]
}

// EventName returns the uppercased Event-Name header.
func (e *EventMessage) EventName() string {
	return strings.ToUpper(e.Headers["Event-Name"])
}

// ChannelState returns the Channel-State header with a leading "CS_"
// stripped, if present.
func (e *EventMessage) ChannelState() string {
	return strings.TrimPrefix(e.Headers["Channel-State"], "CS_")
}

// AnswerState returns the Answer-State header and whether it was present.
func (e *EventMessage) AnswerState() (string, bool) {
	v, ok := e.Headers["Answer-State"]
	return v, ok
}

// HangupCause returns the Hangup-Cause header and whether it was present.
func (e *EventMessage) HangupCause() (string, bool) {
	v, ok := e.Headers["Hangup-Cause"]
	return v, ok
}

// Variable returns a channel variable, i.e. the value of the
// "variable_<name>" header.
func (e *EventMessage) Variable(name string) (string, bool) {
	v, ok := e.Headers["variable_"+name]
	return v, ok
}
