package riff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// FourCC is a four character chunk identifier.
type FourCC [4]byte

// String returns the identifier as text.
func (f FourCC) String() string {
	return string(f[:])
}

// Well-known identifiers.
var (
	RIFF = FourCC{'R', 'I', 'F', 'F'}
	LIST = FourCC{'L', 'I', 'S', 'T'}
	WAVE = FourCC{'W', 'A', 'V', 'E'}
	AVI  = FourCC{'A', 'V', 'I', ' '}
	FMT  = FourCC{'f', 'm', 't', ' '}
	DATA = FourCC{'d', 'a', 't', 'a'}
	AVIH = FourCC{'a', 'v', 'i', 'h'}
	STRH = FourCC{'s', 't', 'r', 'h'}
	VIDS = FourCC{'v', 'i', 'd', 's'}
	AUDS = FourCC{'a', 'u', 'd', 's'}
)

const (
	// HeaderSize is the size of a chunk identifier plus its length field.
	HeaderSize = 8
	// ListHeaderSize adds the form or list type of RIFF and LIST chunks.
	ListHeaderSize = 12
)

// Chunk is one RIFF chunk. RIFF and LIST chunks carry a SubType that is
// counted as part of their payload.
type Chunk struct {
	ID      FourCC
	SubType FourCC
	Data    []byte

	offset int64
}

// NewChunk creates a chunk holding data.
func NewChunk(id FourCC, data []byte) *Chunk {
	return &Chunk{ID: id, Data: data, offset: -1}
}

// NewDataChunk creates a "data" chunk.
func NewDataChunk(data []byte) *Chunk {
	return NewChunk(DATA, data)
}

// NewListChunk creates a LIST chunk of the given type containing children.
func NewListChunk(listType FourCC, children ...*Chunk) (*Chunk, error) {
	var buf bytes.Buffer
	for _, child := range children {
		if child == nil {
			return nil, ErrNilChunk
		}
		b, err := child.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", listType, err)
		}
		buf.Write(b)
	}
	c := NewChunk(LIST, buf.Bytes())
	c.SubType = listType
	return c, nil
}

// HasSubType reports whether the chunk carries a form or list type.
func (c *Chunk) HasSubType() bool {
	return c.ID == RIFF || c.ID == LIST
}

// Size returns the value of the chunk's length field.
func (c *Chunk) Size() int64 {
	size := int64(len(c.Data))
	if c.HasSubType() {
		size += 4
	}
	return size
}

// Offset returns where the chunk header was written, or -1 when the
// chunk has not been written.
func (c *Chunk) Offset() int64 {
	return c.offset
}

// MarshalBinary encodes the chunk header, payload and pad byte.
func (c *Chunk) MarshalBinary() ([]byte, error) {
	size := c.Size()
	if size > math.MaxUint32 {
		return nil, fmt.Errorf("chunk %s: %w", c.ID, ErrTooLarge)
	}

	buf := make([]byte, HeaderSize, HeaderSize+size+1)
	copy(buf[0:4], c.ID[:])
	binary.LittleEndian.PutUint32(buf[4:8], uint32(size))
	if c.HasSubType() {
		buf = append(buf, c.SubType[:]...)
	}
	buf = append(buf, c.Data...)
	if size%2 == 1 {
		buf = append(buf, 0)
	}
	return buf, nil
}

// AudioEncoding is the format tag of a WAVE fmt chunk.
type AudioEncoding uint16

const (
	EncodingPCM        AudioEncoding = 1
	EncodingIEEEFloat  AudioEncoding = 3
	EncodingALaw       AudioEncoding = 6
	EncodingMuLaw      AudioEncoding = 7
	EncodingExtensible AudioEncoding = 0xFFFE
)

// String returns the name of the encoding.
func (e AudioEncoding) String() string {
	switch e {
	case EncodingPCM:
		return "pcm"
	case EncodingIEEEFloat:
		return "ieee_float"
	case EncodingALaw:
		return "alaw"
	case EncodingMuLaw:
		return "mulaw"
	case EncodingExtensible:
		return "extensible"
	default:
		return fmt.Sprintf("encoding(0x%04x)", uint16(e))
	}
}

// waveFormatSize is the size of the basic WAVEFORMAT payload.
const waveFormatSize = 16

// WaveFormat is the payload of a WAVE fmt chunk.
type WaveFormat struct {
	Encoding      AudioEncoding
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// NewWaveFormat fills in the derived block alignment and byte rate.
func NewWaveFormat(encoding AudioEncoding, channels uint16, sampleRate uint32, bitsPerSample uint16) WaveFormat {
	blockAlign := channels * (bitsPerSample / 8)
	return WaveFormat{
		Encoding:      encoding,
		Channels:      channels,
		SampleRate:    sampleRate,
		ByteRate:      sampleRate * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bitsPerSample,
	}
}

// MarshalBinary encodes the format little-endian.
func (w WaveFormat) MarshalBinary() ([]byte, error) {
	b := make([]byte, waveFormatSize)
	binary.LittleEndian.PutUint16(b[0:], uint16(w.Encoding))
	binary.LittleEndian.PutUint16(b[2:], w.Channels)
	binary.LittleEndian.PutUint32(b[4:], w.SampleRate)
	binary.LittleEndian.PutUint32(b[8:], w.ByteRate)
	binary.LittleEndian.PutUint16(b[12:], w.BlockAlign)
	binary.LittleEndian.PutUint16(b[14:], w.BitsPerSample)
	return b, nil
}

// UnmarshalBinary decodes a fmt chunk payload. Extension bytes past the
// basic format are ignored.
func (w *WaveFormat) UnmarshalBinary(b []byte) error {
	if len(b) < waveFormatSize {
		return fmt.Errorf("%w: %d bytes", ErrShortFormat, len(b))
	}
	w.Encoding = AudioEncoding(binary.LittleEndian.Uint16(b[0:]))
	w.Channels = binary.LittleEndian.Uint16(b[2:])
	w.SampleRate = binary.LittleEndian.Uint32(b[4:])
	w.ByteRate = binary.LittleEndian.Uint32(b[8:])
	w.BlockAlign = binary.LittleEndian.Uint16(b[12:])
	w.BitsPerSample = binary.LittleEndian.Uint16(b[14:])
	return nil
}

// NewFmtChunk creates a WAVE "fmt " chunk.
func NewFmtChunk(encoding AudioEncoding, channels uint16, sampleRate uint32, bitsPerSample uint16) *Chunk {
	data, _ := NewWaveFormat(encoding, channels, sampleRate, bitsPerSample).MarshalBinary()
	return NewChunk(FMT, data)
}

// aviStreamHeaderSize is the fixed payload size of a stream header chunk.
const aviStreamHeaderSize = 56

// AviStreamHeader describes one stream of an AVI file.
type AviStreamHeader struct {
	StreamType          FourCC
	Handler             FourCC
	SampleRate          uint32
	Start               uint32
	Length              uint32
	SuggestedBufferSize uint32
	Quality             uint32
	SampleSize          uint32
	FrameRate           uint32
	Scale               uint32
	Rate                uint32
	StartInitialFrames  uint32
	ExtraDataSize       uint32
}

// MarshalBinary encodes the header into its fixed-size payload.
func (h AviStreamHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, aviStreamHeaderSize)
	copy(b[0:4], h.StreamType[:])
	copy(b[4:8], h.Handler[:])
	fields := []uint32{
		h.SampleRate, h.Start, h.Length, h.SuggestedBufferSize, h.Quality,
		h.SampleSize, h.FrameRate, h.Scale, h.Rate, h.StartInitialFrames,
		h.ExtraDataSize,
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint32(b[8+4*i:], v)
	}
	return b, nil
}

// NewAviStreamHeader creates an "avih" chunk from h.
func NewAviStreamHeader(h AviStreamHeader) *Chunk {
	data, _ := h.MarshalBinary()
	return NewChunk(AVIH, data)
}
