package image

import (
	"fmt"
	stdimage "image"
	"image/color"
)

// rgbIndexes returns the byte positions of red, green and blue within a
// packed pixel.
func rgbIndexes(f Format) (r, g, b int, err error) {
	if !f.IsInterleaved() || !f.IsRGB() {
		return 0, 0, 0, fmt.Errorf("%w: %s is not packed RGB", ErrUnsupportedFormat, f)
	}
	return f.componentPosition(f.ComponentIndex(ComponentR)),
		f.componentPosition(f.ComponentIndex(ComponentG)),
		f.componentPosition(f.ComponentIndex(ComponentB)), nil
}

func isYUV420P(f Format) bool {
	return f.Layout == Planar && len(f.Components) == 3 &&
		f.Components[0].ID == ComponentY && f.Components[1].ID == ComponentU && f.Components[2].ID == ComponentV &&
		len(f.WidthShift) == 3 && f.WidthShift[1] == 1 && f.WidthShift[2] == 1 &&
		len(f.HeightShift) == 3 && f.HeightShift[1] == 1 && f.HeightShift[2] == 1
}

// RGBToYUV420P converts a packed RGB image (RGB, BGR, RGBA or ARGB) to
// planar YUV 4:2:0 using full-range BT.601 coefficients. Chroma is the
// average of each 2x2 block.
func RGBToYUV420P(src *Image) (*Image, error) {
	ri, gi, bi, err := rgbIndexes(src.Format)
	if err != nil {
		return nil, err
	}

	dst, err := New(YUV420P(), src.Width, src.Height)
	if err != nil {
		return nil, err
	}

	yPlane, uPlane, vPlane := dst.Plane(0), dst.Plane(1), dst.Plane(2)
	chromaWidth := dst.PlaneWidth(1)
	stride := src.Format.sampleBytes(0)

	uSum := make([]int, len(uPlane))
	vSum := make([]int, len(vPlane))
	count := make([]int, len(uPlane))

	for y := 0; y < src.Height; y++ {
		row := src.Data[y*src.Width*stride:]
		for x := 0; x < src.Width; x++ {
			px := row[x*stride:]
			yy, cb, cr := color.RGBToYCbCr(px[ri], px[gi], px[bi])
			yPlane[y*src.Width+x] = yy

			ci := (y>>1)*chromaWidth + (x >> 1)
			uSum[ci] += int(cb)
			vSum[ci] += int(cr)
			count[ci]++
		}
	}

	for i := range uPlane {
		n := count[i]
		uPlane[i] = byte((uSum[i] + n/2) / n)
		vPlane[i] = byte((vSum[i] + n/2) / n)
	}

	return dst, nil
}

// YUV420PToRGB converts a planar YUV 4:2:0 image to packed RGB using
// full-range BT.601 coefficients.
func YUV420PToRGB(src *Image) (*Image, error) {
	if !isYUV420P(src.Format) {
		return nil, fmt.Errorf("%w: %s is not yuv420p", ErrUnsupportedFormat, src.Format)
	}

	dst, err := New(RGB(), src.Width, src.Height)
	if err != nil {
		return nil, err
	}

	yPlane, uPlane, vPlane := src.Plane(0), src.Plane(1), src.Plane(2)
	chromaWidth := src.PlaneWidth(1)

	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			ci := (y>>1)*chromaWidth + (x >> 1)
			r, g, b := color.YCbCrToRGB(yPlane[y*src.Width+x], uPlane[ci], vPlane[ci])
			o := (y*src.Width + x) * 3
			dst.Data[o], dst.Data[o+1], dst.Data[o+2] = r, g, b
		}
	}

	return dst, nil
}

// ToStdImage exposes the buffer as a standard library image. YUV 4:2:0
// shares its planes with an image.YCbCr; packed RGB formats are copied
// into an image.RGBA.
func (im *Image) ToStdImage() (stdimage.Image, error) {
	rect := stdimage.Rect(0, 0, im.Width, im.Height)

	if isYUV420P(im.Format) {
		return &stdimage.YCbCr{
			Y:              im.Plane(0),
			Cb:             im.Plane(1),
			Cr:             im.Plane(2),
			YStride:        im.PlaneStride(0),
			CStride:        im.PlaneStride(1),
			SubsampleRatio: stdimage.YCbCrSubsampleRatio420,
			Rect:           rect,
		}, nil
	}

	ri, gi, bi, err := rgbIndexes(im.Format)
	if err != nil {
		return nil, err
	}
	ai := -1
	if c := im.Format.ComponentIndex(ComponentA); c >= 0 {
		ai = im.Format.componentPosition(c)
	}
	stride := im.Format.sampleBytes(0)

	out := stdimage.NewRGBA(rect)
	for i, o := 0, 0; i+stride <= len(im.Data) && o < len(out.Pix); i, o = i+stride, o+4 {
		out.Pix[o] = im.Data[i+ri]
		out.Pix[o+1] = im.Data[i+gi]
		out.Pix[o+2] = im.Data[i+bi]
		out.Pix[o+3] = 0xff
		if ai >= 0 {
			out.Pix[o+3] = im.Data[i+ai]
		}
	}
	return out, nil
}
