// Package protocol implements the AMF remoting envelope used by the game
// client: AMF0 framing with AMF3 bodies, a closed value model, and the
// response normalizer. All multi-byte integers are big-endian.
package protocol

// AMF0 type markers.
const (
	amf0Number      byte = 0x00
	amf0Boolean     byte = 0x01
	amf0String      byte = 0x02
	amf0Object      byte = 0x03
	amf0MovieClip   byte = 0x04 // reserved, never sent
	amf0Null        byte = 0x05
	amf0Undefined   byte = 0x06
	amf0Reference   byte = 0x07
	amf0ECMAArray   byte = 0x08
	amf0ObjectEnd   byte = 0x09
	amf0StrictArray byte = 0x0A
	amf0Date        byte = 0x0B
	amf0LongString  byte = 0x0C
	amf0Unsupported byte = 0x0D
	amf0XMLDocument byte = 0x0F
	amf0TypedObject byte = 0x10
	amf0AVMPlus     byte = 0x11 // switch to AMF3
)

// AMF3 type markers.
const (
	amf3Undefined    byte = 0x00
	amf3Null         byte = 0x01
	amf3False        byte = 0x02
	amf3True         byte = 0x03
	amf3Integer      byte = 0x04
	amf3Double       byte = 0x05
	amf3String       byte = 0x06
	amf3XMLDoc       byte = 0x07
	amf3Date         byte = 0x08
	amf3Array        byte = 0x09
	amf3Object       byte = 0x0A
	amf3XML          byte = 0x0B
	amf3ByteArray    byte = 0x0C
	amf3VectorInt    byte = 0x0D
	amf3VectorUint   byte = 0x0E
	amf3VectorDouble byte = 0x0F
	amf3VectorObject byte = 0x10
	amf3Dictionary   byte = 0x11
)

// AMF3 integers are 29-bit signed.
const (
	amf3IntMin = -(1 << 28)
	amf3IntMax = (1 << 28) - 1
)

// EnvelopeVersion is the AMF version written in outgoing envelopes.
const EnvelopeVersion uint16 = 3

// DefaultResponsePath is the response URI used for the single call in an
// outgoing envelope.
const DefaultResponsePath = "/1"

// MaxEnvelopeSize bounds the bytes accepted by DecodeResponse.
const MaxEnvelopeSize = 64 << 20

// Response path suffixes the server appends to the request's response URI.
const (
	suffixResult = "/onResult"
	suffixStatus = "/onStatus"
)

// Externalizable classes the Flex server may send.
const (
	classArrayCollection = "flex.messaging.io.ArrayCollection"
	classObjectProxy     = "flex.messaging.io.ObjectProxy"
	classArrayList       = "mx.collections.ArrayList"
)
