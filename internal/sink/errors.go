package sink

import "errors"

// Domain errors for the sink package.
var (
	// ErrInvalidAddress is returned when an announced sink address is not
	// a dotted IPv4 address.
	ErrInvalidAddress = errors.New("sink: invalid address")

	// ErrSinkRejected is returned when the sink answers with a status other
	// than 200.
	ErrSinkRejected = errors.New("sink: push rejected")

	// ErrSinkUnavailable is returned when the sink cannot be reached.
	ErrSinkUnavailable = errors.New("sink: unavailable")

	// ErrCircuitOpen is returned while the circuit breaker refuses pushes.
	ErrCircuitOpen = errors.New("sink: circuit open")
)
