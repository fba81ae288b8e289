package riff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Writer streams chunks into a RIFF file.
//
// The root chunk header is written with a zero length; Close seeks back
// and patches it once the total size is known.
type Writer struct {
	ws     io.WriteSeeker
	closer io.Closer
	root   *Chunk
	chunks []*Chunk
	size   int64
	closed bool
}

// NewWriter writes a root chunk header of the given type and form type.
//
// Parameters:
//   - ws: Destination, positioned where the file starts
//   - typ: Root chunk identifier, normally RIFF
//   - subType: Form type such as WAVE or AVI
//
// Returns:
//   - *Writer: Writer ready for AddChunk
//   - error: Failure writing the header
func NewWriter(ws io.WriteSeeker, typ, subType FourCC) (*Writer, error) {
	start, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("riff: locate start: %w", err)
	}

	root := &Chunk{ID: typ, SubType: subType, offset: start}
	header := make([]byte, ListHeaderSize)
	copy(header[0:4], typ[:])
	copy(header[8:12], subType[:])
	if _, err := ws.Write(header); err != nil {
		return nil, fmt.Errorf("riff: write header: %w", err)
	}

	return &Writer{
		ws:     ws,
		root:   root,
		chunks: []*Chunk{root},
		size:   4,
	}, nil
}

// Create opens path on fs and starts a RIFF file in it. Close closes the file.
func Create(fs afero.Fs, path string, subType FourCC) (*Writer, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("riff: create %s: %w", path, err)
	}

	w, err := NewWriter(f, RIFF, subType)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f

	logrus.WithFields(logrus.Fields{
		"function": "Create",
		"path":     path,
		"form":     subType.String(),
	}).Debug("Created RIFF file")

	return w, nil
}

// AddChunk appends a chunk and records its offset.
func (w *Writer) AddChunk(c *Chunk) error {
	if c == nil {
		return ErrNilChunk
	}
	if w.closed {
		return ErrWriterClosed
	}

	b, err := c.MarshalBinary()
	if err != nil {
		return err
	}
	if w.size+int64(len(b)) > math.MaxUint32 {
		return fmt.Errorf("riff: adding chunk %s: %w", c.ID, ErrTooLarge)
	}

	offset, err := w.ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("riff: locate chunk %s: %w", c.ID, err)
	}
	if _, err := w.ws.Write(b); err != nil {
		return fmt.Errorf("riff: write chunk %s: %w", c.ID, err)
	}

	c.offset = offset
	w.size += int64(len(b))
	w.chunks = append(w.chunks, c)
	return nil
}

// Chunks returns the root chunk followed by every added chunk.
func (w *Writer) Chunks() []*Chunk {
	return w.chunks
}

// Size returns the current value of the root chunk's length field.
func (w *Writer) Size() int64 {
	return w.size
}

// Close patches the root length and closes the file opened by Create.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.patchSize()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Writer.Close",
		"form":     w.root.SubType.String(),
		"chunks":   len(w.chunks) - 1,
		"size":     w.size + HeaderSize,
	}).Debug("Closed RIFF writer")

	return err
}

func (w *Writer) patchSize() error {
	end, err := w.ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("riff: locate end: %w", err)
	}
	if _, err := w.ws.Seek(w.root.offset+4, io.SeekStart); err != nil {
		return fmt.Errorf("riff: seek to size: %w", err)
	}

	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(w.size))
	if _, err := w.ws.Write(b[:]); err != nil {
		return fmt.Errorf("riff: write size: %w", err)
	}

	if _, err := w.ws.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("riff: seek to end: %w", err)
	}
	return nil
}

// WriteWave writes a complete PCM WAVE file to ws.
func WriteWave(ws io.WriteSeeker, sampleRate uint32, channels, bitsPerSample uint16, pcm []byte) error {
	w, err := NewWriter(ws, RIFF, WAVE)
	if err != nil {
		return err
	}
	if err := w.AddChunk(NewFmtChunk(EncodingPCM, channels, sampleRate, bitsPerSample)); err != nil {
		return err
	}
	if err := w.AddChunk(NewDataChunk(pcm)); err != nil {
		return err
	}
	return w.Close()
}
