// Package riff writes Resource Interchange File Format containers such as
// WAVE audio and AVI headers.
//
// All sizes are little-endian 32-bit values. Chunks with an odd payload
// length are followed by a zero pad byte that is not counted in the
// chunk's own length field but is counted in its parent's.
package riff
