package sink

import "errors"

// Sentinel errors for sink package operations.
// These errors enable reliable error classification using errors.Is().

// Construction and configuration errors.
var (
	// ErrNilDispatcher indicates the sink has nowhere to deliver packets.
	ErrNilDispatcher = errors.New("dispatcher cannot be nil")

	// ErrInvalidClockRate indicates a zero pacing clock rate.
	ErrInvalidClockRate = errors.New("clock rate cannot be zero")

	// ErrInvalidConfig indicates a configuration file could not be used.
	ErrInvalidConfig = errors.New("invalid sink configuration")
)

// Lifecycle errors.
var (
	// ErrSinkStarted indicates an operation that requires a stopped sink.
	ErrSinkStarted = errors.New("sink is started")
)

// Per-frame errors reported through the error handler.
var (
	// ErrDispatchFailed indicates the dispatcher rejected a packet or frame.
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrFramePanic indicates a panic was recovered while processing a frame.
	ErrFramePanic = errors.New("panic while processing frame")

	// ErrDecodeFailed indicates the decode hook returned an error.
	ErrDecodeFailed = errors.New("decode hook failed")
)
