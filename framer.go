package esl

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
)

// Framer converts a byte stream into a sequence of BasicMessage frames. It
// is streaming: it never needs a full frame buffered before it can start
// parsing headers, and it is restartable across successive reads from the
// underlying transport (the state it needs between calls lives entirely in
// the *bufio.Reader it was built around).
type Framer struct {
	r *bufio.Reader
}

// NewFramer wraps r. r is read incrementally; Framer never requires the
// caller to pre-buffer a whole frame.
func NewFramer(r io.Reader) *Framer {
	return &Framer{r: bufio.NewReaderSize(r, 8192)}
}

// ReadMessage blocks until one full frame has been read, or an error
// occurs. A malformed Content-Length header is reported as a
// *ProtocolError; the rejected frame's header block has already been
// consumed up to and including its terminating blank line, so a
// subsequent ReadMessage call resumes at (what should be) the next frame
// boundary. Any other error
// (including io.EOF at a clean frame boundary) is returned as-is; the
// caller decides whether that's a normal disconnect or a transport
// failure.
func (f *Framer) ReadMessage() (*BasicMessage, error) {
	headerLines, err := f.readHeaderLines()
	if err != nil {
		return nil, err
	}
	msg := newBasicMessage()
	for _, line := range headerLines {
		k, v, ok := splitHeaderLine(line)
		if ok {
			msg.Headers[k] = v
		}
	}

	clStr, hasCL := msg.Headers["Content-Length"]
	if !hasCL || clStr == "" {
		return msg, nil
	}
	n, convErr := strconv.Atoi(clStr)
	if convErr != nil {
		return nil, &ProtocolError{Reason: "malformed Content-Length header: " + clStr}
	}
	if n == 0 {
		return msg, nil
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(f.r, body); err != nil {
		return nil, &ProtocolError{Reason: "premature end of stream reading body", Cause: err}
	}
	msg.Body = body
	return msg, nil
}

// readHeaderLines accumulates LF-terminated lines (CR tolerated) until the
// first empty line, which ends the header block.
func (f *Framer) readHeaderLines() ([]string, error) {
	var lines []string
	for {
		line, err := f.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" && len(lines) == 0 {
				return nil, io.EOF
			}
			return nil, err
		}
		trimmed := trimEOL(line)
		if len(trimmed) == 0 {
			return lines, nil
		}
		lines = append(lines, trimmed)
	}
}

// resyncToBlankLine discards bytes until it has consumed a blank line, so
// a corrupt frame doesn't permanently desynchronize the reader.
func (f *Framer) resyncToBlankLine() error {
	for {
		line, err := f.r.ReadString('\n')
		if err != nil {
			return err
		}
		if len(trimEOL(line)) == 0 {
			return nil
		}
	}
}

func trimEOL(line string) string {
	line = trimSuffixByte(line, '\n')
	line = trimSuffixByte(line, '\r')
	return line
}

func trimSuffixByte(s string, b byte) string {
	if len(s) > 0 && s[len(s)-1] == b {
		return s[:len(s)-1]
	}
	return s
}

// splitHeaderLine splits "key: value" on the first ": ". Keys are
// case-preserving.
func splitHeaderLine(line string) (key, value string, ok bool) {
	idx := bytes.Index([]byte(line), []byte(": "))
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], line[idx+2:], true
}
