// Package coord converts points between the depth sensor's projective space (pixel x, pixel
// y, depth in millimeters) and real world space (millimeters, camera centered, y up).
package coord

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"essaim.dev/depthsense/sensor"
)

var (
	// ErrLengthMismatch is returned by the batch conversions when input and output differ in
	// length.
	ErrLengthMismatch = errors.New("input and output lengths differ")
	// ErrInvalidParameters is returned for converters that cannot project.
	ErrInvalidParameters = errors.New("invalid converter parameters")
)

// Converter holds the depth sensor geometry. It has no mutable state; all methods are safe
// for concurrent use.
type Converter struct {
	width  float64
	height float64
	fov    sensor.FieldOfView

	xzFactor float64
	yzFactor float64
}

// New returns a converter for a depth map of the given resolution and field of view.
func New(width, height int, fov sensor.FieldOfView) (*Converter, error) {
	c := &Converter{
		width:    float64(width),
		height:   float64(height),
		fov:      fov,
		xzFactor: 2 * math.Tan(fov.Horizontal/2),
		yzFactor: 2 * math.Tan(fov.Vertical/2),
	}
	if err := c.Check(); err != nil {
		return nil, err
	}
	return c, nil
}

// Check validates the converter parameters.
func (c *Converter) Check() error {
	if c == nil {
		return errors.Wrap(ErrInvalidParameters, "converter is nil")
	}
	if c.width <= 0 || c.height <= 0 {
		return errors.Wrapf(ErrInvalidParameters, "invalid size (%v, %v)", c.width, c.height)
	}
	if c.fov.Horizontal <= 0 || c.fov.Horizontal >= math.Pi {
		return errors.Wrapf(ErrInvalidParameters, "invalid horizontal field of view %v", c.fov.Horizontal)
	}
	if c.fov.Vertical <= 0 || c.fov.Vertical >= math.Pi {
		return errors.Wrapf(ErrInvalidParameters, "invalid vertical field of view %v", c.fov.Vertical)
	}
	return nil
}

// Size returns the depth map resolution the converter was built for.
func (c *Converter) Size() (int, int) {
	return int(c.width), int(c.height)
}

// FieldOfView returns the sensor field of view.
func (c *Converter) FieldOfView() sensor.FieldOfView {
	return c.fov
}

// ToRealWorld converts a projective point to real world coordinates.
func (c *Converter) ToRealWorld(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: (p.X/c.width - 0.5) * p.Z * c.xzFactor,
		Y: (0.5 - p.Y/c.height) * p.Z * c.yzFactor,
		Z: p.Z,
	}
}

// ToProjective converts a real world point to projective coordinates. Points on the sensor
// plane (Z == 0) project onto the image center.
func (c *Converter) ToProjective(w r3.Vector) r3.Vector {
	if w.Z == 0 {
		return r3.Vector{X: c.width / 2, Y: c.height / 2}
	}
	return r3.Vector{
		X: w.X/(w.Z*c.xzFactor)*c.width + c.width/2,
		Y: c.height/2 - w.Y/(w.Z*c.yzFactor)*c.height,
		Z: w.Z,
	}
}

// ToRealWorldBatch converts src into dst element by element.
func (c *Converter) ToRealWorldBatch(dst, src []r3.Vector) error {
	if len(dst) != len(src) {
		return errors.Wrapf(ErrLengthMismatch, "real world conversion of %d points into %d", len(src), len(dst))
	}
	for i, p := range src {
		dst[i] = c.ToRealWorld(p)
	}
	return nil
}

// ToProjectiveBatch converts src into dst element by element.
func (c *Converter) ToProjectiveBatch(dst, src []r3.Vector) error {
	if len(dst) != len(src) {
		return errors.Wrapf(ErrLengthMismatch, "projective conversion of %d points into %d", len(src), len(dst))
	}
	for i, w := range src {
		dst[i] = c.ToProjective(w)
	}
	return nil
}
