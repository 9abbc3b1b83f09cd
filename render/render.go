// Package render turns packed 0xAARRGGBB pixel buffers into RGBA framebuffers.
package render

import (
	"image"
	"image/draw"
	"image/png"
	"io"

	"github.com/pkg/errors"
)

// ToRGBA unpacks w*h packed pixels into img, which must be w by h.
func ToRGBA(img *image.RGBA, px []uint32, w, h int) error {
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		return errors.Errorf("image is %dx%d, pixels are %dx%d", b.Dx(), b.Dy(), w, h)
	}
	if len(px) < w*h {
		return errors.Errorf("got %d pixels for a %dx%d image", len(px), w, h)
	}

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x, p := range px[y*w : (y+1)*w] {
			row[x*4] = uint8(p >> 16)
			row[x*4+1] = uint8(p >> 8)
			row[x*4+2] = uint8(p)
			row[x*4+3] = uint8(p >> 24)
		}
	}
	return nil
}

// NewRGBA returns a w by h image holding the packed pixels.
func NewRGBA(px []uint32, w, h int) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := ToRGBA(img, px, w, h); err != nil {
		return nil, err
	}
	return img, nil
}

// Composite draws src over dst. Transparent pixels of src leave dst untouched.
func Composite(dst, src *image.RGBA) {
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
}

// FlipVertical returns a copy of img upside down.
func FlipVertical(img *image.RGBA) *image.RGBA {
	bounds := img.Bounds()
	flipped := image.NewRGBA(bounds)

	rowLen := bounds.Dx() * 4
	height := bounds.Dy()
	for y := 0; y < height; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+rowLen]
		copy(flipped.Pix[(height-1-y)*flipped.Stride:], src)
	}
	return flipped
}

// FlipHorizontal returns a mirrored copy of img.
func FlipHorizontal(img *image.RGBA) *image.RGBA {
	bounds := img.Bounds()
	flipped := image.NewRGBA(bounds)

	width := bounds.Dx()
	for y, dy := 0, bounds.Dy(); y < dy; y++ {
		src := img.Pix[y*img.Stride:]
		dst := flipped.Pix[y*flipped.Stride:]
		for x := 0; x < width; x++ {
			copy(dst[(width-1-x)*4:(width-x)*4], src[x*4:x*4+4])
		}
	}
	return flipped
}

// WritePNG encodes img as a PNG.
func WritePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return errors.Wrap(err, "could not encode png")
	}
	return nil
}
