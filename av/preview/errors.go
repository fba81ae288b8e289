package preview

import "errors"

var (
	// ErrInvalidPacket is returned for payloads that are not Opus packets.
	ErrInvalidPacket = errors.New("invalid opus packet")

	// ErrNoAudio is returned when writing a preview before anything was decoded.
	ErrNoAudio = errors.New("no decoded audio")

	// ErrFrameSize is returned when a raw video frame does not match the
	// configured picture size.
	ErrFrameSize = errors.New("frame size does not match picture size")

	// ErrInvalidSize is returned for non-positive picture sizes.
	ErrInvalidSize = errors.New("invalid picture size")
)
