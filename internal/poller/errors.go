package poller

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted is returned by Run on a poller that has already run.
var ErrAlreadyStarted = errors.New("poller: already started")

// TransportError is a poll that got no usable response: refused connection,
// timeout, DNS failure or a broken body read.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError is a response whose body does not meet the health contract.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Field == "":
		return fmt.Sprintf("parse: %v", e.Err)
	case e.Err == nil:
		return fmt.Sprintf("parse: missing %s", e.Field)
	default:
		return fmt.Sprintf("parse: %s: %v", e.Field, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }
