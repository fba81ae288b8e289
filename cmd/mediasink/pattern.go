package main

import "github.com/opd-ai/mediakit/codec/image"

// barColors are the classic eight SMPTE-style bars at full intensity.
var barColors = [8][3]byte{
	{255, 255, 255},
	{255, 255, 0},
	{0, 255, 255},
	{0, 255, 0},
	{255, 0, 255},
	{255, 0, 0},
	{0, 0, 255},
	{0, 0, 0},
}

// colorBars renders frame n of a horizontally scrolling colour-bar
// pattern as YUV 4:2:0.
func colorBars(width, height, n int) (*image.Image, error) {
	rgb, err := image.New(image.RGB(), width, height)
	if err != nil {
		return nil, err
	}

	barWidth := (width + len(barColors) - 1) / len(barColors)
	shift := n * 2
	for x := 0; x < width; x++ {
		c := barColors[((x+shift)/barWidth)%len(barColors)]
		for y := 0; y < height; y++ {
			if err := rgb.SetComponentData(x, y, 0, c[0:1]); err != nil {
				return nil, err
			}
			if err := rgb.SetComponentData(x, y, 1, c[1:2]); err != nil {
				return nil, err
			}
			if err := rgb.SetComponentData(x, y, 2, c[2:3]); err != nil {
				return nil, err
			}
		}
	}

	return image.RGBToYUV420P(rgb)
}
