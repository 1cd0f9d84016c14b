package ctis

import (
	"errors"
	"fmt"
)

// ErrLogin is returned when the platform rejects the login exchange.
var ErrLogin = errors.New("ctis login failed")

// OperationError is a Failed outcome surfaced by an operation. Body is the
// raw platform response.
type OperationError struct {
	Op     string
	Status int
	Body   []byte
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("ctis: can't %s (HTTP %d): %s", e.Op, e.Status, string(e.Body))
}

func failed(op string, out Outcome) error {
	return &OperationError{Op: op, Status: out.Status, Body: out.Body}
}
