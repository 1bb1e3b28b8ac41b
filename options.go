package esl

import (
	"strconv"
	"strings"
)

// OriginateOptions configures an Originate call. It renders as a
// comma-separated, brace-enclosed FreeSWITCH channel-variable list
// (e.g. "{origination_uuid='...',bypass_media=true}"). Zero-valued fields
// are omitted entirely; an empty OriginateOptions renders as "{}".
type OriginateOptions struct {
	UUID               string
	CallerIdName       string
	CallerIdNumber     string
	Retries            int
	RetrySleepMs       int
	Timeout            int
	ExecuteOnOriginate string
	ReturnRingReady    bool
	IgnoreEarlyMedia   bool
	BypassMedia        bool
}

// String renders the options as a FreeSWITCH channel-variable list.
func (o *OriginateOptions) String() string {
	if o == nil {
		return "{}"
	}
	var parts []string
	if o.UUID != "" {
		parts = append(parts, "origination_uuid='"+o.UUID+"'")
	}
	if o.CallerIdName != "" {
		parts = append(parts, "origination_caller_id_name='"+o.CallerIdName+"'")
	}
	if o.CallerIdNumber != "" {
		parts = append(parts, "origination_caller_id_number="+o.CallerIdNumber)
	}
	if o.Retries != 0 {
		parts = append(parts, "originate_retries="+strconv.Itoa(o.Retries))
	}
	if o.RetrySleepMs != 0 {
		parts = append(parts, "originate_retry_sleep_ms="+strconv.Itoa(o.RetrySleepMs))
	}
	if o.Timeout != 0 {
		parts = append(parts, "originate_timeout="+strconv.Itoa(o.Timeout))
	}
	if o.ExecuteOnOriginate != "" {
		parts = append(parts, "execute_on_originate='"+o.ExecuteOnOriginate+"'")
	}
	if o.ReturnRingReady {
		parts = append(parts, "return_ring_ready=true")
	}
	if o.IgnoreEarlyMedia {
		parts = append(parts, "ignore_early_media=true")
	}
	if o.BypassMedia {
		parts = append(parts, "bypass_media=true")
	}
	return "{" + strings.Join(parts, ",") + "}"
}
