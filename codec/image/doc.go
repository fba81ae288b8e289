// Package image provides pixel-format-aware image buffers.
//
// A Format lists its components, how each is subsampled and whether they
// are packed, planar or semi-planar. Image computes plane sizes and
// per-component offsets from it, converts between packed RGB and planar
// YUV 4:2:0, scales with bilinear interpolation and exports Windows
// bitmaps.
//
//	img, err := image.New(image.YUV420P(), 320, 240)
//	if err != nil {
//	    return err
//	}
//	img.Fill(0, 0x80)
//	rgb, err := image.YUV420PToRGB(img)
package image
