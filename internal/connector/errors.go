package connector

import (
	"fmt"

	"github.com/sagereplay/sagereplay/internal/protocol"
)

// TransportError reports a connection failure, timeout or non-2xx reply.
type TransportError struct {
	Target     string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s (%s): HTTP %d: %v", e.Target, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport %s (%s): %v", e.Target, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteFaultError is a reply delivered on the onStatus channel.
type RemoteFaultError struct {
	Target  string
	Code    string
	Message string
	Detail  string
	Body    protocol.Value
}

func newRemoteFault(target string, body protocol.Value) *RemoteFaultError {
	fields := protocol.Normalize(body)
	e := &RemoteFaultError{Target: target, Body: body}
	e.Code, _ = protocol.StringField(fields, "faultCode", "code")
	e.Message, _ = protocol.StringField(fields, "faultString", "description", "message")
	e.Detail, _ = protocol.StringField(fields, "faultDetail", "details")
	return e
}

func (e *RemoteFaultError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "remote fault"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Target, msg, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Target, msg)
}
