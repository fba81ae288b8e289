package transport

import "errors"

var (
	// ErrClosed is returned by operations on a closed fan-out.
	ErrClosed = errors.New("fanout closed")

	// ErrNilAddr is returned when a receiver address is nil.
	ErrNilAddr = errors.New("nil receiver address")

	// ErrReceiverExists is returned when a receiver is added twice.
	ErrReceiverExists = errors.New("receiver already added")

	// ErrAllReceiversFailed is returned when a packet could not be written
	// to any receiver.
	ErrAllReceiversFailed = errors.New("write failed for every receiver")
)
