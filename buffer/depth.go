package buffer

import "image/color"

const (
	// MaxDepth is the histogram capacity, in millimeters.
	MaxDepth = 10000

	// NoData is the packed pixel written where a frame holds no sample.
	NoData uint32 = 0

	opaque uint32 = 0xff << 24
)

// Pack returns an opaque pixel in 0xAARRGGBB layout.
func Pack(r, g, b uint8) uint32 {
	return opaque | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// Unpack splits a packed pixel into its color channels.
func Unpack(px uint32) color.RGBA {
	return color.RGBA{
		R: uint8(px >> 16),
		G: uint8(px >> 8),
		B: uint8(px),
		A: uint8(px >> 24),
	}
}

// Histogram fills hist with the raw number of occurrences of each millimeter depth value.
// Depths at or beyond len(hist) are counted in the last bucket. hist must not be empty.
func Histogram(hist []float32, depth []uint16) {
	clear(hist)

	last := len(hist) - 1
	for _, d := range depth {
		idx := int(d)
		if idx > last {
			idx = last
		}
		hist[idx]++
	}
}

// Colorizer turns depth samples into packed pixels, either with a single tint or with a
// color ramp spread over [0, MaxDepth).
type Colorizer struct {
	tint uint32
	ramp []uint32
}

// NewColorizer returns a colorizer with a white tint.
func NewColorizer() *Colorizer {
	return &Colorizer{tint: Pack(255, 255, 255)}
}

// SetColor selects the single tint policy.
func (c *Colorizer) SetColor(r, g, b uint8) {
	c.tint = Pack(r, g, b)
	c.ramp = nil
}

// SetColorRange selects the ramp policy. An empty ramp falls back to the single tint.
func (c *Colorizer) SetColorRange(colors []color.RGBA) {
	if len(colors) == 0 {
		c.ramp = nil
		return
	}

	c.ramp = make([]uint32, len(colors))
	for i, col := range colors {
		c.ramp[i] = Pack(col.R, col.G, col.B)
	}
}

// Pixel returns the packed pixel for a single depth sample.
func (c *Colorizer) Pixel(d uint16) uint32 {
	if d == 0 {
		return NoData
	}
	if c.ramp == nil {
		return c.tint
	}

	idx := int(d) * len(c.ramp) / MaxDepth
	if idx >= len(c.ramp) {
		idx = len(c.ramp) - 1
	}
	return c.ramp[idx]
}

// Colorize writes one packed pixel per depth sample into dst.
func (c *Colorizer) Colorize(dst []uint32, depth []uint16) {
	for i, d := range depth {
		dst[i] = c.Pixel(d)
	}
}

// Widen copies 16-bit samples into ints.
func Widen(dst []int, src []uint16) {
	for i, v := range src {
		dst[i] = int(v)
	}
}
