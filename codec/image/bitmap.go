package image

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	bmpFileHeaderSize = 14
	bmpInfoHeaderSize = 40
	// bmpPixelsPerMeter is 96 DPI.
	bmpPixelsPerMeter = 3780
)

// SaveBitmap writes the image as an uncompressed Windows bitmap.
//
// Packed RGB formats are written as 24-bit BGR, or 32-bit BGRA when the
// format has alpha. YUV 4:2:0 images are converted to RGB first. Rows are
// stored bottom-up and padded to four bytes.
func (im *Image) SaveBitmap(w io.Writer) error {
	src := im
	if isYUV420P(im.Format) {
		rgb, err := YUV420PToRGB(im)
		if err != nil {
			return err
		}
		src = rgb
	}

	ri, gi, bi, err := rgbIndexes(src.Format)
	if err != nil {
		return err
	}
	ai := -1
	if c := src.Format.ComponentIndex(ComponentA); c >= 0 {
		ai = src.Format.componentPosition(c)
	}

	outBytes := 3
	if ai >= 0 {
		outBytes = 4
	}
	rowSize := (src.Width*outBytes + 3) &^ 3
	imageSize := rowSize * src.Height
	dataOffset := bmpFileHeaderSize + bmpInfoHeaderSize

	header := make([]byte, dataOffset)
	header[0], header[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(header[2:], uint32(dataOffset+imageSize))
	binary.LittleEndian.PutUint32(header[10:], uint32(dataOffset))

	info := header[bmpFileHeaderSize:]
	binary.LittleEndian.PutUint32(info[0:], bmpInfoHeaderSize)
	binary.LittleEndian.PutUint32(info[4:], uint32(src.Width))
	binary.LittleEndian.PutUint32(info[8:], uint32(src.Height))
	binary.LittleEndian.PutUint16(info[12:], 1)
	binary.LittleEndian.PutUint16(info[14:], uint16(outBytes*8))
	binary.LittleEndian.PutUint32(info[20:], uint32(imageSize))
	binary.LittleEndian.PutUint32(info[24:], bmpPixelsPerMeter)
	binary.LittleEndian.PutUint32(info[28:], bmpPixelsPerMeter)

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(header); err != nil {
		return fmt.Errorf("write bitmap header: %w", err)
	}

	stride := src.Format.sampleBytes(0)
	row := make([]byte, rowSize)
	for y := src.Height - 1; y >= 0; y-- {
		line := src.Data[y*src.Width*stride:]
		for x := 0; x < src.Width; x++ {
			px := line[x*stride:]
			o := x * outBytes
			row[o], row[o+1], row[o+2] = px[bi], px[gi], px[ri]
			if ai >= 0 {
				row[o+3] = px[ai]
			}
		}
		if _, err := bw.Write(row); err != nil {
			return fmt.Errorf("write bitmap row %d: %w", y, err)
		}
	}

	return bw.Flush()
}
