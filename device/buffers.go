package device

import (
	"image/color"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"essaim.dev/depthsense/buffer"
	"essaim.dev/depthsense/sensor"
)

// current returns the metadata of an enabled node that produced at least one frame.
func current[T uint8 | uint16](c *Context, kind sensor.NodeKind, md sensor.Metadata[T]) (sensor.Metadata[T], error) {
	if !c.init {
		return md, ErrNotInitialized
	}
	if !c.enabled[kind] {
		return md, errors.Wrapf(sensor.ErrNodeNotEnabled, "%s node", kind)
	}
	if md.FrameID == 0 || md.Data == nil {
		return md, errors.Wrapf(ErrNoFrame, "%s node", kind)
	}
	return md, nil
}

// refresh sizes p to the frame and recomputes it with fill unless it already holds frame.
func refresh[T any](p *buffer.Plane[T], width, height int, frame uint64, fill func([]T)) {
	p.Resize(width, height)
	if p.Current(frame) {
		return
	}
	fill(p.Data())
	p.Mark(frame)
}

// derive refreshes p and copies it into dst.
func derive[T any](p *buffer.Plane[T], width, height int, frame uint64, dst []T, fill func([]T)) (int, error) {
	p.Resize(width, height)
	if len(dst) < p.Len() {
		return 0, errors.Wrapf(ErrShortBuffer, "need %d elements, got %d", p.Len(), len(dst))
	}
	refresh(p, width, height, frame, fill)
	return copy(dst, p.Data()), nil
}

// DepthMap copies the depth of every pixel, in millimeters, into dst.
func (c *Context) DepthMap(dst []int) (int, error) {
	md, err := current(c, sensor.NodeDepth, c.depthMD)
	if err != nil {
		return 0, err
	}
	return derive(c.depthMap, md.Width, md.Height, md.FrameID, dst, func(p []int) {
		buffer.Widen(p, md.Data)
	})
}

// DepthImage copies the colorized depth frame into dst as packed 0xAARRGGBB pixels.
func (c *Context) DepthImage(dst []uint32) (int, error) {
	md, err := current(c, sensor.NodeDepth, c.depthMD)
	if err != nil {
		return 0, err
	}
	return derive(c.depthImage, md.Width, md.Height, md.FrameID, dst, func(p []uint32) {
		c.colorizer.Colorize(p, md.Data)
	})
}

// SetDepthImageColor colors every depth pixel holding a sample with a single tint.
func (c *Context) SetDepthImageColor(r, g, b uint8) {
	c.colorizer.SetColor(r, g, b)
	c.depthImage.Invalidate()
}

// SetDepthImageColorRange spreads colors evenly over [0, buffer.MaxDepth). An empty range
// falls back to the single tint.
func (c *Context) SetDepthImageColorRange(colors []color.RGBA) {
	c.colorizer.SetColorRange(colors)
	c.depthImage.Invalidate()
}

func (c *Context) realWorld() (*buffer.Plane[r3.Vector], error) {
	md, err := current(c, sensor.NodeDepth, c.depthMD)
	if err != nil {
		return nil, err
	}
	conv := c.converter
	refresh(c.depthReal, md.Width, md.Height, md.FrameID, func(p []r3.Vector) {
		for i, d := range md.Data {
			p[i] = conv.ToRealWorld(r3.Vector{
				X: float64(i % md.Width),
				Y: float64(i / md.Width),
				Z: float64(d),
			})
		}
	})
	return c.depthReal, nil
}

// DepthMapRealWorld copies the real world position of every depth pixel into dst.
func (c *Context) DepthMapRealWorld(dst []r3.Vector) (int, error) {
	p, err := c.realWorld()
	if err != nil {
		return 0, err
	}
	if len(dst) < p.Len() {
		return 0, errors.Wrapf(ErrShortBuffer, "need %d elements, got %d", p.Len(), len(dst))
	}
	return copy(dst, p.Data()), nil
}

// DepthMapRealWorldView returns the real world points of the current frame without copying.
// The slice must not be modified and is only valid until the next Update or Close.
func (c *Context) DepthMapRealWorldView() ([]r3.Vector, error) {
	p, err := c.realWorld()
	if err != nil {
		return nil, err
	}
	return p.Data(), nil
}

// DepthHistMap copies the number of pixels at each millimeter of depth into dst, which must
// hold DepthHistSize buckets.
func (c *Context) DepthHistMap(dst []float32) (int, error) {
	md, err := current(c, sensor.NodeDepth, c.depthMD)
	if err != nil {
		return 0, err
	}
	return derive(c.depthHist, buffer.MaxDepth, 1, md.FrameID, dst, func(p []float32) {
		buffer.Histogram(p, md.Data)
	})
}

// RGBImage copies the color frame into dst as packed pixels.
func (c *Context) RGBImage(dst []uint32) (int, error) {
	md, err := current(c, sensor.NodeImage, c.imageMD)
	if err != nil {
		return 0, err
	}
	return derive(c.rgbImage, md.Width, md.Height, md.FrameID, dst, func(p []uint32) {
		buffer.RGBImage(p, md.Data)
	})
}

// IRMap copies the raw infrared samples into dst.
func (c *Context) IRMap(dst []int) (int, error) {
	md, err := current(c, sensor.NodeIR, c.irMD)
	if err != nil {
		return 0, err
	}
	return derive(c.irMap, md.Width, md.Height, md.FrameID, dst, func(p []int) {
		buffer.Widen(p, md.Data)
	})
}

// IRImage copies the infrared frame into dst as packed gray pixels.
func (c *Context) IRImage(dst []uint32) (int, error) {
	md, err := current(c, sensor.NodeIR, c.irMD)
	if err != nil {
		return 0, err
	}
	return derive(c.irImage, md.Width, md.Height, md.FrameID, dst, func(p []uint32) {
		buffer.IRImage(p, md.Data)
	})
}

// SceneMap copies the user label of every pixel into dst, 0 for the background.
func (c *Context) SceneMap(dst []int) (int, error) {
	md, err := current(c, sensor.NodeScene, c.sceneMD)
	if err != nil {
		return 0, err
	}
	return derive(c.sceneMap, md.Width, md.Height, md.FrameID, dst, func(p []int) {
		buffer.Widen(p, md.Data)
	})
}

// SceneImage copies the scene labels into dst as packed pixels, one palette color per user.
func (c *Context) SceneImage(dst []uint32) (int, error) {
	md, err := current(c, sensor.NodeScene, c.sceneMD)
	if err != nil {
		return 0, err
	}
	return derive(c.sceneImage, md.Width, md.Height, md.FrameID, dst, func(p []uint32) {
		buffer.SceneImage(p, md.Data)
	})
}
