package service

import "fmt"

// MalformedResponseShapeError reports a response missing a structurally
// required field. Optional fields default instead.
type MalformedResponseShapeError struct {
	Target string
	Field  string
	Reason string
}

func (e *MalformedResponseShapeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: malformed response: field %q %s", e.Target, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: malformed response: missing field %q", e.Target, e.Field)
}

// RejectedError is a well-formed reply whose status is not success.
type RejectedError struct {
	Target string
	Status int64
	Code   int64
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: rejected with status %d (error %d)", e.Target, e.Status, e.Code)
}
