package preview

import (
	"fmt"
	"sync"

	"github.com/opd-ai/mediakit/av/rtp"
	"github.com/opd-ai/mediakit/codec/image"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// SnapshotPreview turns raw planar YUV 4:2:0 frames into bitmap
// snapshots.
//
// Use its Decode method as a sink decode hook. Every Nth frame is
// written to the same path, so the file always shows a recent picture.
type SnapshotPreview struct {
	mu sync.Mutex

	fs     afero.Fs
	path   string
	width  int
	height int
	every  int

	thumbWidth  int
	thumbHeight int

	frames  int
	written int
	latest  *image.Image
}

// NewSnapshotPreview creates a snapshot writer.
//
// Parameters:
//   - fs: Filesystem snapshots are written to
//   - path: Snapshot file path; overwritten on each snapshot
//   - width, height: Picture size of the incoming frames
//   - every: Write one snapshot per this many frames (values below 1 mean every frame)
//
// Returns:
//   - *SnapshotPreview: The preview
//   - error: ErrInvalidSize
func NewSnapshotPreview(fs afero.Fs, path string, width, height, every int) (*SnapshotPreview, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if every < 1 {
		every = 1
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewSnapshotPreview",
		"path":     path,
		"width":    width,
		"height":   height,
		"every":    every,
	}).Info("Created snapshot preview")

	return &SnapshotPreview{
		fs:     fs,
		path:   path,
		width:  width,
		height: height,
		every:  every,
	}, nil
}

// SetThumbnailSize scales snapshots to the given size before writing.
// Zero disables scaling.
func (p *SnapshotPreview) SetThumbnailSize(width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.thumbWidth, p.thumbHeight = width, height
}

// Decode reassembles frame into a picture and writes a snapshot when due.
func (p *SnapshotPreview) Decode(frame *rtp.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data := frame.Assemble()
	want := image.CalculateSize(image.YUV420P(), p.width, p.height)
	if len(data) != want {
		return fmt.Errorf("%w: %d bytes, want %d for %dx%d", ErrFrameSize, len(data), want, p.width, p.height)
	}

	img, err := image.NewWithData(image.YUV420P(), p.width, p.height, data)
	if err != nil {
		return err
	}
	p.latest = img
	p.frames++

	if (p.frames-1)%p.every != 0 {
		return nil
	}
	return p.write(img)
}

func (p *SnapshotPreview) write(img *image.Image) error {
	if p.thumbWidth > 0 && p.thumbHeight > 0 {
		scaled, err := image.Scale(img, p.thumbWidth, p.thumbHeight)
		if err != nil {
			return fmt.Errorf("scale snapshot: %w", err)
		}
		img = scaled
	}

	f, err := p.fs.Create(p.path)
	if err != nil {
		return fmt.Errorf("create snapshot %s: %w", p.path, err)
	}
	if err := img.SaveBitmap(f); err != nil {
		f.Close()
		return fmt.Errorf("write snapshot %s: %w", p.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot %s: %w", p.path, err)
	}

	p.written++

	logrus.WithFields(logrus.Fields{
		"function": "SnapshotPreview.write",
		"path":     p.path,
		"frame":    p.frames,
		"width":    img.Width,
		"height":   img.Height,
	}).Debug("Wrote snapshot")

	return nil
}

// Latest returns a copy of the most recent picture, or nil.
func (p *SnapshotPreview) Latest() *image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.latest == nil {
		return nil
	}
	return p.latest.Clone()
}

// Stats returns the number of frames seen and snapshots written.
func (p *SnapshotPreview) Stats() (frames, written int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.frames, p.written
}
