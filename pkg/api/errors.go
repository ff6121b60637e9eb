package api

import "errors"

var (
	// ErrClosed is returned by controller operations after the bridge has
	// been torn down. Handles still open at teardown receive a terminal
	// KindError event instead.
	ErrClosed = errors.New("bridge closed")

	// ErrUnknownKind reports a message kind outside the closed protocol set.
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrQueueFull reports that the isolated context's inbox is saturated
	// and the request was not accepted.
	ErrQueueFull = errors.New("message queue full")

	// ErrNoForeignHandler reports a foreign call of a kind the configured
	// handler does not implement.
	ErrNoForeignHandler = errors.New("no handler for foreign call")
)
