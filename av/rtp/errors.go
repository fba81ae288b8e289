package rtp

import "errors"

// Sentinel errors for rtp package operations.
// These errors enable reliable error classification using errors.Is().

// Frame errors.
var (
	// ErrNilPacket indicates a nil packet was added to a frame.
	ErrNilPacket = errors.New("packet cannot be nil")

	// ErrFrameDisposed indicates the frame was already disposed.
	ErrFrameDisposed = errors.New("frame is disposed")

	// ErrEmptyPayload indicates there is nothing to packetize.
	ErrEmptyPayload = errors.New("payload cannot be empty")

	// ErrInvalidMTU indicates the MTU cannot hold an RTP header plus payload.
	ErrInvalidMTU = errors.New("mtu too small for RTP packet")
)

// Registry errors.
var (
	// ErrNilContext indicates a nil transport context was registered.
	ErrNilContext = errors.New("transport context cannot be nil")

	// ErrContextExists indicates a context is already registered for the SSRC.
	ErrContextExists = errors.New("transport context already exists")

	// ErrContextNotFound indicates no context is registered for the SSRC.
	ErrContextNotFound = errors.New("transport context not found")

	// ErrInvalidClockRate indicates a media description without a clock rate.
	ErrInvalidClockRate = errors.New("clock rate cannot be zero")
)
