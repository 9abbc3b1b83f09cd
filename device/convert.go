package device

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"essaim.dev/depthsense/coord"
	"essaim.dev/depthsense/sensor"
)

func (c *Context) coordConverter() (*coord.Converter, error) {
	if !c.init {
		return nil, ErrNotInitialized
	}
	if c.converter == nil {
		return nil, errors.Wrap(sensor.ErrNodeNotEnabled, "depth node")
	}
	return c.converter, nil
}

// ConvertProjectiveToRealWorld converts a depth pixel (x, y, depth in millimeters) to real
// world millimeters.
func (c *Context) ConvertProjectiveToRealWorld(p r3.Vector) (r3.Vector, error) {
	conv, err := c.coordConverter()
	if err != nil {
		return r3.Vector{}, err
	}
	return conv.ToRealWorld(p), nil
}

// ConvertRealWorldToProjective converts a real world point to depth pixel coordinates.
func (c *Context) ConvertRealWorldToProjective(w r3.Vector) (r3.Vector, error) {
	conv, err := c.coordConverter()
	if err != nil {
		return r3.Vector{}, err
	}
	return conv.ToProjective(w), nil
}

func (c *Context) ConvertProjectiveToRealWorldBatch(dst, src []r3.Vector) error {
	conv, err := c.coordConverter()
	if err != nil {
		return err
	}
	return conv.ToRealWorldBatch(dst, src)
}

func (c *Context) ConvertRealWorldToProjectiveBatch(dst, src []r3.Vector) error {
	conv, err := c.coordConverter()
	if err != nil {
		return err
	}
	return conv.ToProjectiveBatch(dst, src)
}
