package image

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Scale resizes an image using bilinear interpolation.
//
// Every plane is scaled independently, so planar, semi-planar and packed
// 8-bit formats keep their layout and subsampling. Scaling to the same
// size returns a copy.
//
// Parameters:
//   - src: Source image
//   - width: Target width (must be positive)
//   - height: Target height (must be positive)
//
// Returns:
//   - *Image: Scaled image in src's format
//   - error: ErrInvalidDimensions, ErrUnsupportedFormat or a buffer error
func Scale(src *Image, width, height int) (*Image, error) {
	if src == nil {
		return nil, fmt.Errorf("source image cannot be nil")
	}
	for _, c := range src.Format.Components {
		if c.Bits != 8 {
			return nil, fmt.Errorf("%w: %d-bit component %q", ErrUnsupportedFormat, c.Bits, c.ID)
		}
	}

	dst, err := New(src.Format, width, height)
	if err != nil {
		return nil, err
	}
	if src.Width == width && src.Height == height {
		copy(dst.Data, src.Data)
		return dst, nil
	}

	for p := 0; p < src.Planes(); p++ {
		err := scalePlane(
			src.Plane(p), src.PlaneWidth(p), src.PlaneHeight(p), src.PlaneStride(p),
			dst.Plane(p), dst.PlaneWidth(p), dst.PlaneHeight(p), dst.PlaneStride(p),
			src.Format.sampleBytes(p))
		if err != nil {
			return nil, fmt.Errorf("failed to scale plane %d: %w", p, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Scale",
		"format":   src.Format.String(),
		"from":     fmt.Sprintf("%dx%d", src.Width, src.Height),
		"to":       fmt.Sprintf("%dx%d", width, height),
	}).Debug("Scaled image")

	return dst, nil
}

// scalePlane scales one plane of interleaved samples of n bytes each.
func scalePlane(src []byte, srcWidth, srcHeight, srcStride int,
	dst []byte, dstWidth, dstHeight, dstStride int, n int,
) error {
	if len(src) < srcHeight*srcStride {
		return fmt.Errorf("%w: source %d < %d", ErrBufferTooSmall, len(src), srcHeight*srcStride)
	}
	if len(dst) < dstHeight*dstStride {
		return fmt.Errorf("%w: destination %d < %d", ErrBufferTooSmall, len(dst), dstHeight*dstStride)
	}

	xRatio := float64(srcWidth) / float64(dstWidth)
	yRatio := float64(srcHeight) / float64(dstHeight)

	for y := 0; y < dstHeight; y++ {
		srcY := float64(y) * yRatio
		y1 := int(srcY)
		y2 := y1 + 1
		if y2 >= srcHeight {
			y2 = srcHeight - 1
		}
		fy := srcY - float64(y1)

		for x := 0; x < dstWidth; x++ {
			srcX := float64(x) * xRatio
			x1 := int(srcX)
			x2 := x1 + 1
			if x2 >= srcWidth {
				x2 = srcWidth - 1
			}
			fx := srcX - float64(x1)

			for c := 0; c < n; c++ {
				p11 := float64(src[y1*srcStride+x1*n+c])
				p12 := float64(src[y1*srcStride+x2*n+c])
				p21 := float64(src[y2*srcStride+x1*n+c])
				p22 := float64(src[y2*srcStride+x2*n+c])

				top := p11*(1-fx) + p12*fx
				bottom := p21*(1-fx) + p22*fx
				dst[y*dstStride+x*n+c] = byte(top*(1-fy) + bottom*fy + 0.5)
			}
		}
	}
	return nil
}
