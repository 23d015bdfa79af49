package worker

import "errors"

var (
	// ErrNilQueue is returned when no queue store is provided
	ErrNilQueue = errors.New("queue store cannot be nil")

	// ErrNoQueues is returned when the queue set is empty
	ErrNoQueues = errors.New("queue set cannot be empty")

	// ErrBlankQueueName is returned when a queue name is blank
	ErrBlankQueueName = errors.New("queue name cannot be blank")

	// ErrNoProcessor is returned by Run when no processor was registered
	ErrNoProcessor = errors.New("no processor registered")
)

// decodeErrMaxLen bounds how much of the underlying parse error makes
// it into logs, so a huge payload never floods them.
const decodeErrMaxLen = 30

// DecodeError signals a malformed task envelope. The loop recovers
// from it the same way it recovers from processor failures.
type DecodeError struct {
	err error
}

func (e *DecodeError) Error() string {
	msg := e.err.Error()
	if len(msg) > decodeErrMaxLen {
		msg = msg[:decodeErrMaxLen]
	}

	return "decoding envelope: " + msg
}

func (e *DecodeError) Unwrap() error {
	return e.err
}
