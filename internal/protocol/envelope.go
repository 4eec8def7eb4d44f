package protocol

import (
	"fmt"
	"strings"
)

// MessageStatus classifies a decoded envelope body.
type MessageStatus int

const (
	// StatusRequest marks a body addressed to a service target.
	StatusRequest MessageStatus = iota
	// StatusResult marks a successful reply (".../onResult").
	StatusResult
	// StatusFault marks a remote fault (".../onStatus").
	StatusFault
)

// String returns the status name.
func (s MessageStatus) String() string {
	switch s {
	case StatusRequest:
		return "request"
	case StatusResult:
		return "result"
	case StatusFault:
		return "fault"
	default:
		return "unknown"
	}
}

// RemoteCall is a single outbound remote procedure call.
type RemoteCall struct {
	Target       string
	ResponsePath string
	Args         []Value
}

// Header is an envelope header.
type Header struct {
	Name           string
	MustUnderstand bool
	Value          Value
}

// Message is one decoded envelope body keyed by its response path.
type Message struct {
	Path   string
	Target string
	Status MessageStatus
	Body   Value
}

// Envelope is a decoded AMF packet. Messages keep wire order.
type Envelope struct {
	Version  uint16
	Headers  []Header
	Messages []Message
}

// Len returns the number of messages.
func (e *Envelope) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Messages)
}

// Get returns the first message stored under a response path.
func (e *Envelope) Get(path string) (Message, bool) {
	if e == nil {
		return Message{}, false
	}
	for _, m := range e.Messages {
		if m.Path == path {
			return m, true
		}
	}
	return Message{}, false
}

// Paths returns the response paths in wire order.
func (e *Envelope) Paths() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		out = append(out, m.Path)
	}
	return out
}

// EncodeRequest builds a single-call envelope. An empty responsePath uses
// DefaultResponsePath. Arguments are converted with FromGo.
func EncodeRequest(target string, args []any, responsePath string) ([]byte, error) {
	values := make([]Value, 0, len(args))
	for i, arg := range args {
		v, err := FromGo(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d for %s: %w", i, target, err)
		}
		values = append(values, v)
	}
	return EncodeCall(RemoteCall{Target: target, ResponsePath: responsePath, Args: values})
}

// EncodeCall serializes a RemoteCall.
// Format: [version:2][headers:2=0][bodies:2=1][target:utf][response:utf][length:4][args]
func EncodeCall(call RemoteCall) ([]byte, error) {
	if call.Target == "" {
		return nil, fmt.Errorf("remote call target is empty")
	}
	path := call.ResponsePath
	if path == "" {
		path = DefaultResponsePath
	}

	body := NewPacketBuilder()
	if err := writeArguments(body, call.Args); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", call.Target, err)
	}

	b := NewPacketBuilder()
	b.WriteUint16(EnvelopeVersion).WriteUint16(0).WriteUint16(1)
	if err := b.WriteUTF(call.Target); err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	if err := b.WriteUTF(path); err != nil {
		return nil, fmt.Errorf("response path: %w", err)
	}
	b.WriteBytes(body.BuildWithLength())
	return b.Build(), nil
}

// EncodeResponse serializes a reply envelope the way the gateway answers a
// call: target "<path>/onResult" (or "/onStatus" for faults), response
// "null", body switched to AMF3.
func EncodeResponse(path string, body Value, fault bool) ([]byte, error) {
	if path == "" {
		path = DefaultResponsePath
	}
	target := path + suffixResult
	if fault {
		target = path + suffixStatus
	}

	payload := NewPacketBuilder()
	payload.WriteByte(amf0AVMPlus)
	if err := newAMF3Encoder(payload).writeValue(body); err != nil {
		return nil, fmt.Errorf("encoding response body: %w", err)
	}

	b := NewPacketBuilder()
	b.WriteUint16(EnvelopeVersion).WriteUint16(0).WriteUint16(1)
	if err := b.WriteUTF(target); err != nil {
		return nil, err
	}
	if err := b.WriteUTF("null"); err != nil {
		return nil, err
	}
	b.WriteBytes(payload.BuildWithLength())
	return b.Build(), nil
}

// DecodeResponse parses a complete envelope. On any error no envelope is
// returned.
func DecodeResponse(data []byte) (*Envelope, error) {
	if len(data) > MaxEnvelopeSize {
		return nil, &CodecError{Op: "envelope", Err: fmt.Errorf("envelope of %d bytes exceeds limit %d", len(data), MaxEnvelopeSize)}
	}
	r := newWireReader(data)

	version, err := r.readUint16("envelope version")
	if err != nil {
		return nil, err
	}
	env := &Envelope{Version: version}

	headerCount, err := r.readUint16("header count")
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(headerCount); i++ {
		h, err := readHeader(r)
		if err != nil {
			return nil, err
		}
		env.Headers = append(env.Headers, h)
	}

	bodyCount, err := r.readUint16("body count")
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(bodyCount); i++ {
		m, err := readMessage(r)
		if err != nil {
			return nil, err
		}
		env.Messages = append(env.Messages, m)
	}

	if r.remaining() != 0 {
		return nil, r.failf("envelope", "%d trailing bytes", r.remaining())
	}
	return env, nil
}

func readHeader(r *wireReader) (Header, error) {
	name, err := r.readUTF("header name")
	if err != nil {
		return Header{}, err
	}
	must, err := r.readByte("header mustUnderstand")
	if err != nil {
		return Header{}, err
	}
	if _, err := r.readUint32("header length"); err != nil {
		return Header{}, err
	}
	v, err := newAMF0Decoder(r).readValue()
	if err != nil {
		return Header{}, err
	}
	return Header{Name: name, MustUnderstand: must != 0, Value: v}, nil
}

// readMessage reads one body and derives its response path. Replies carry
// the request's response path plus a status suffix in the target field;
// request-shaped bodies are keyed by their response URI.
func readMessage(r *wireReader) (Message, error) {
	target, err := r.readUTF("body target")
	if err != nil {
		return Message{}, err
	}
	response, err := r.readUTF("body response")
	if err != nil {
		return Message{}, err
	}
	if _, err := r.readUint32("body length"); err != nil {
		return Message{}, err
	}
	body, err := newAMF0Decoder(r).readValue()
	if err != nil {
		return Message{}, err
	}

	m := Message{Body: body}
	switch {
	case strings.HasSuffix(target, suffixResult):
		m.Path = strings.TrimSuffix(target, suffixResult)
		m.Status = StatusResult
		m.Target = optionalTarget(response)
	case strings.HasSuffix(target, suffixStatus):
		m.Path = strings.TrimSuffix(target, suffixStatus)
		m.Status = StatusFault
		m.Target = optionalTarget(response)
	default:
		m.Path = response
		m.Target = target
		m.Status = StatusRequest
	}
	return m, nil
}

func optionalTarget(s string) string {
	if s == "null" {
		return ""
	}
	return s
}

// FirstResponseBody returns the body of the first message, or nil when the
// envelope is empty.
func FirstResponseBody(env *Envelope) Value {
	if env.Len() == 0 {
		return nil
	}
	return env.Messages[0].Body
}
