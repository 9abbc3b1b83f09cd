package render

import (
	"image"

	"github.com/pkg/errors"

	"essaim.dev/depthsense/sensor"
)

// Source is the part of a device context a Renderer reads from.
type Source interface {
	Enabled(kind sensor.NodeKind) bool

	DepthWidth() int
	DepthHeight() int
	DepthImage(dst []uint32) (int, error)
	SceneImage(dst []uint32) (int, error)

	RGBWidth() int
	RGBHeight() int
	RGBImage(dst []uint32) (int, error)
}

// Renderer builds framebuffers from the current frame of a Source. The depth image is the
// base layer; when the scene node is enabled the user labels are drawn over it.
type Renderer struct {
	src Source

	// FlipVertical and FlipHorizontal are applied to every rendered image.
	FlipVertical   bool
	FlipHorizontal bool

	depth []uint32
	scene []uint32
	rgb   []uint32
}

// NewRenderer returns a renderer over src.
func NewRenderer(src Source) *Renderer {
	return &Renderer{src: src}
}

func grow(buf []uint32, n int) []uint32 {
	if cap(buf) < n {
		return make([]uint32, n)
	}
	return buf[:n]
}

// Render composites the depth image and the scene overlay of the current frame.
func (r *Renderer) Render() (*image.RGBA, error) {
	w, h := r.src.DepthWidth(), r.src.DepthHeight()

	r.depth = grow(r.depth, w*h)
	if _, err := r.src.DepthImage(r.depth); err != nil {
		return nil, errors.Wrap(err, "could not read depth image")
	}
	img, err := NewRGBA(r.depth, w, h)
	if err != nil {
		return nil, err
	}

	if r.src.Enabled(sensor.NodeScene) {
		r.scene = grow(r.scene, w*h)
		if _, err := r.src.SceneImage(r.scene); err != nil {
			return nil, errors.Wrap(err, "could not read scene image")
		}
		overlay, err := NewRGBA(r.scene, w, h)
		if err != nil {
			return nil, err
		}
		Composite(img, overlay)
	}

	return r.flip(img), nil
}

// RenderRGB returns the color image of the current frame.
func (r *Renderer) RenderRGB() (*image.RGBA, error) {
	w, h := r.src.RGBWidth(), r.src.RGBHeight()

	r.rgb = grow(r.rgb, w*h)
	if _, err := r.src.RGBImage(r.rgb); err != nil {
		return nil, errors.Wrap(err, "could not read color image")
	}
	img, err := NewRGBA(r.rgb, w, h)
	if err != nil {
		return nil, err
	}
	return r.flip(img), nil
}

func (r *Renderer) flip(img *image.RGBA) *image.RGBA {
	if r.FlipVertical {
		img = FlipVertical(img)
	}
	if r.FlipHorizontal {
		img = FlipHorizontal(img)
	}
	return img
}
