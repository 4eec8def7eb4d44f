package protocol

import (
	"errors"
	"fmt"
)

// ErrTruncated is wrapped by CodecError when the input ends early.
var ErrTruncated = errors.New("unexpected end of data")

// CodecError reports malformed or truncated wire bytes.
type CodecError struct {
	Offset int
	Op     string
	Err    error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("amf codec: %s at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}
