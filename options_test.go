package esl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginateOptionsEmptyRendersAsBraces(t *testing.T) {
	o := &OriginateOptions{}
	assert.Equal(t, "{}", o.String())
}

func TestOriginateOptionsNilReceiverRendersAsBraces(t *testing.T) {
	var o *OriginateOptions
	assert.Equal(t, "{}", o.String())
}

func TestOriginateOptionsReturnRingReadyOnly(t *testing.T) {
	o := &OriginateOptions{ReturnRingReady: true}
	assert.Equal(t, "{return_ring_ready=true}", o.String())
}

func TestOriginateOptionsNoTrailingComma(t *testing.T) {
	o := &OriginateOptions{
		UUID:             "u1",
		CallerIdName:     "Alice",
		CallerIdNumber:   "1000",
		Retries:          3,
		RetrySleepMs:     500,
		Timeout:          30,
		BypassMedia:      true,
		IgnoreEarlyMedia: true,
		ReturnRingReady:  true,
	}
	rendered := o.String()
	assert.True(t, rendered[0] == '{' && rendered[len(rendered)-1] == '}')
	assert.NotContains(t, rendered, ",}")
	assert.Contains(t, rendered, "origination_uuid='u1'")
	assert.Contains(t, rendered, "origination_caller_id_name='Alice'")
	assert.Contains(t, rendered, "origination_caller_id_number=1000")
	assert.Contains(t, rendered, "originate_retries=3")
	assert.Contains(t, rendered, "originate_retry_sleep_ms=500")
	assert.Contains(t, rendered, "originate_timeout=30")
	assert.Contains(t, rendered, "bypass_media=true")
	assert.Contains(t, rendered, "ignore_early_media=true")
	assert.Contains(t, rendered, "return_ring_ready=true")
}

func TestOriginateOptionsZeroValuesOmitted(t *testing.T) {
	o := &OriginateOptions{CallerIdName: "Bob"}
	assert.Equal(t, "{origination_caller_id_name='Bob'}", o.String())
}
