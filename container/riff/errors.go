package riff

import "errors"

var (
	// ErrNilChunk is returned when a nil chunk is added to a writer.
	ErrNilChunk = errors.New("chunk cannot be nil")

	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("riff writer is closed")

	// ErrTooLarge is returned when a chunk or file exceeds the 32-bit size field.
	ErrTooLarge = errors.New("riff size exceeds 4 GiB")

	// ErrShortFormat is returned when a fmt chunk payload is truncated.
	ErrShortFormat = errors.New("wave format too short")
)
