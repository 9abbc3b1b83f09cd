package buffer

import "image/color"

// IRMax is the largest infrared sample the sensor produces (10 bit).
const IRMax = 1023

// ScenePalette colors scene labels; label L uses ScenePalette[(L-1) % len].
var ScenePalette = []color.RGBA{
	{R: 255, G: 0, B: 0, A: 255},
	{R: 0, G: 255, B: 0, A: 255},
	{R: 0, G: 0, B: 255, A: 255},
	{R: 255, G: 255, B: 0, A: 255},
	{R: 255, G: 0, B: 255, A: 255},
	{R: 0, G: 255, B: 255, A: 255},
	{R: 255, G: 128, B: 0, A: 255},
	{R: 128, G: 0, B: 255, A: 255},
}

// RGBImage packs RGB24 triplets into dst, one pixel per triplet.
func RGBImage(dst []uint32, rgb []uint8) {
	for i, n := 0, len(rgb)/3; i < n; i++ {
		dst[i] = Pack(rgb[i*3], rgb[i*3+1], rgb[i*3+2])
	}
}

// IRImage writes a gray pixel per infrared sample, scaled from [0, IRMax] to [0, 255].
func IRImage(dst []uint32, ir []uint16) {
	for i, v := range ir {
		if v > IRMax {
			v = IRMax
		}
		g := uint8(uint32(v) * 255 / IRMax)
		dst[i] = Pack(g, g, g)
	}
}

// SceneImage writes a palette color per labelled pixel and NoData for the background.
func SceneImage(dst []uint32, labels []uint16) {
	for i, l := range labels {
		if l == 0 {
			dst[i] = NoData
			continue
		}
		c := ScenePalette[(int(l)-1)%len(ScenePalette)]
		dst[i] = Pack(c.R, c.G, c.B)
	}
}
