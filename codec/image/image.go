package image

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Image is a pixel buffer in a given Format.
//
// Planes are stored back to back in Data, in component order. Within a
// plane, samples are stored row by row without padding.
type Image struct {
	Format Format
	Width  int
	Height int
	Data   []byte
}

// New allocates a zeroed image.
//
// Parameters:
//   - format: Pixel format
//   - width: Width in pixels (must be positive)
//   - height: Height in pixels (must be positive)
//
// Returns:
//   - *Image: The new image
//   - error: ErrInvalidDimensions
func New(format Format, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return &Image{
		Format: format,
		Width:  width,
		Height: height,
		Data:   make([]byte, CalculateSize(format, width, height)),
	}, nil
}

// NewWithData wraps an existing buffer. The buffer is not copied.
//
// Returns:
//   - *Image: Image backed by data
//   - error: ErrInvalidDimensions or ErrBufferTooSmall
func NewWithData(format Format, width, height int, data []byte) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	need := CalculateSize(format, width, height)
	if len(data) < need {
		logrus.WithFields(logrus.Fields{
			"function": "NewWithData",
			"format":   format.String(),
			"width":    width,
			"height":   height,
			"need":     need,
			"have":     len(data),
		}).Error("Image buffer too small")
		return nil, fmt.Errorf("%w: %d < %d", ErrBufferTooSmall, len(data), need)
	}
	return &Image{
		Format: format,
		Width:  width,
		Height: height,
		Data:   data,
	}, nil
}

// Planes returns the number of planes in the image.
func (im *Image) Planes() int {
	return im.Format.Planes()
}

// PlaneWidth returns the width in samples of plane p, or -1.
func (im *Image) PlaneWidth(p int) int {
	if p < 0 || p >= im.Planes() {
		return -1
	}
	ws, _ := im.Format.shifts(p)
	return subsampled(im.Width, ws)
}

// PlaneHeight returns the height in rows of plane p, or -1.
func (im *Image) PlaneHeight(p int) int {
	if p < 0 || p >= im.Planes() {
		return -1
	}
	_, hs := im.Format.shifts(p)
	return subsampled(im.Height, hs)
}

// PlaneStride returns the bytes per row of plane p, or -1.
func (im *Image) PlaneStride(p int) int {
	if p < 0 || p >= im.Planes() {
		return -1
	}
	return im.PlaneWidth(p) * im.Format.sampleBytes(p)
}

// PlaneLength returns the bytes occupied by plane p, or -1.
func (im *Image) PlaneLength(p int) int {
	if p < 0 || p >= im.Planes() {
		return -1
	}
	return im.PlaneStride(p) * im.PlaneHeight(p)
}

// PlaneOffset returns where plane p starts in Data, or -1.
func (im *Image) PlaneOffset(p int) int {
	if p < 0 || p >= im.Planes() {
		return -1
	}
	offset := 0
	for q := 0; q < p; q++ {
		offset += im.PlaneLength(q)
	}
	return offset
}

// Plane returns the bytes of plane p.
func (im *Image) Plane(p int) []byte {
	offset := im.PlaneOffset(p)
	if offset < 0 {
		return nil
	}
	return im.Data[offset : offset+im.PlaneLength(p)]
}

// ComponentOffset returns the byte offset in Data of component c of the
// pixel at (x, y). Subsampled components are shared by neighbouring
// pixels.
func (im *Image) ComponentOffset(x, y, c int) (int, error) {
	if x < 0 || y < 0 || x >= im.Width || y >= im.Height {
		return -1, fmt.Errorf("%w: (%d,%d) in %dx%d", ErrOutOfBounds, x, y, im.Width, im.Height)
	}
	if c < 0 || c >= len(im.Format.Components) {
		return -1, fmt.Errorf("%w: component %d", ErrOutOfBounds, c)
	}

	p := im.Format.plane(c)
	ws, hs := im.Format.shifts(p)
	sample := (y>>hs)*im.PlaneWidth(p) + (x >> ws)
	return im.PlaneOffset(p) + sample*im.Format.sampleBytes(p) + im.Format.componentPosition(c), nil
}

// ComponentData returns the bytes of component c at (x, y). The slice
// aliases Data.
func (im *Image) ComponentData(x, y, c int) ([]byte, error) {
	offset, err := im.ComponentOffset(x, y, c)
	if err != nil {
		return nil, err
	}
	n := im.Format.Components[c].Bytes()
	return im.Data[offset : offset+n], nil
}

// SetComponentData overwrites component c at (x, y).
func (im *Image) SetComponentData(x, y, c int, data []byte) error {
	dst, err := im.ComponentData(x, y, c)
	if err != nil {
		return err
	}
	if len(data) != len(dst) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrComponentLength, len(data), len(dst))
	}
	copy(dst, data)
	return nil
}

// At returns the 8-bit value of component c at (x, y).
func (im *Image) At(x, y, c int) (byte, error) {
	b, err := im.ComponentData(x, y, c)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Set writes the 8-bit value of component c at (x, y).
func (im *Image) Set(x, y, c int, v byte) error {
	b, err := im.ComponentData(x, y, c)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// Fill sets every sample of component c to v.
func (im *Image) Fill(c int, v byte) error {
	if c < 0 || c >= len(im.Format.Components) {
		return fmt.Errorf("%w: component %d", ErrOutOfBounds, c)
	}

	p := im.Format.plane(c)
	plane := im.Plane(p)
	step := im.Format.sampleBytes(p)
	pos := im.Format.componentPosition(c)
	n := im.Format.Components[c].Bytes()
	for i := pos; i < len(plane); i += step {
		for j := 0; j < n; j++ {
			plane[i+j] = v
		}
	}
	return nil
}

// Clone returns a deep copy of the image.
func (im *Image) Clone() *Image {
	clone := *im
	clone.Data = append([]byte(nil), im.Data...)
	return &clone
}
