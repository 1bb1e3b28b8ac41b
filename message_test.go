package esl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBasicMessageDerivedProperties(t *testing.T) {
	m := &BasicMessage{Headers: map[string]string{
		"Content-Type":   "api/response",
		"Content-Length": "3",
		"Reply-Text":     "+OK",
	}}
	assert.Equal(t, "api/response", m.ContentType())
	assert.Equal(t, 3, m.ContentLength())
	assert.Equal(t, "+OK", m.ReplyText())
}

func TestBasicMessageContentLengthAbsentIsZero(t *testing.T) {
	m := &BasicMessage{Headers: map[string]string{}}
	assert.Equal(t, 0, m.ContentLength())
}

func TestCommandReplySuccess(t *testing.T) {
	ok := newCommandReply(&BasicMessage{Headers: map[string]string{"Reply-Text": "+OK accepted"}})
	assert.True(t, ok.Success)
	assert.Empty(t, ok.Err)

	fail := newCommandReply(&BasicMessage{Headers: map[string]string{"Reply-Text": "-ERR invalid"}})
	assert.False(t, fail.Success)
	assert.Equal(t, "-ERR invalid", fail.Err)
}

func TestApiResponseSuccess(t *testing.T) {
	ok := newApiResponse(&BasicMessage{Body: []byte("+OK\n")})
	assert.True(t, ok.Success)

	fail := newApiResponse(&BasicMessage{Body: []byte("-ERR no such channel")})
	assert.False(t, fail.Success)
	assert.Equal(t, "-ERR no such channel", fail.Err)
}

func TestBackgroundJobResultFromEventBody(t *testing.T) {
	ev := &EventMessage{
		Message: &BasicMessage{Headers: map[string]string{"Content-Type": ContentTypeEventPlain}},
		Headers: map[string]string{"Event-Name": "BACKGROUND_JOB", "Job-UUID": "j1"},
		Body:    []byte("+OK ok"),
	}
	r := newBackgroundJobResult(ev)
	assert.True(t, r.Success)
	assert.Empty(t, r.Err)

	failEv := &EventMessage{
		Message: &BasicMessage{Headers: map[string]string{"Content-Type": ContentTypeEventPlain}},
		Headers: map[string]string{"Event-Name": "BACKGROUND_JOB", "Job-UUID": "j2"},
		Body:    []byte("-ERR no such command"),
	}
	fr := newBackgroundJobResult(failEv)
	assert.False(t, fr.Success)
	assert.Equal(t, "-ERR no such command", fr.Err)
}
