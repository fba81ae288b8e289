package image

import "errors"

var (
	// ErrInvalidDimensions is returned for non-positive widths or heights.
	ErrInvalidDimensions = errors.New("invalid image dimensions")

	// ErrBufferTooSmall is returned when backing data cannot hold the image.
	ErrBufferTooSmall = errors.New("image buffer too small")

	// ErrOutOfBounds is returned for coordinates or components outside the image.
	ErrOutOfBounds = errors.New("coordinates out of bounds")

	// ErrComponentLength is returned when component data has the wrong size.
	ErrComponentLength = errors.New("component data length mismatch")

	// ErrUnsupportedFormat is returned when an operation cannot handle a format.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)
