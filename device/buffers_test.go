package device

import (
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"essaim.dev/depthsense/buffer"
	"essaim.dev/depthsense/coord"
	"essaim.dev/depthsense/sensor"
)

var testDepth = []uint16{
	0, 500, 1000, 10000,
	12000, 500, 0, 3,
}

func TestAccessorBeforeFirstFrame(t *testing.T) {
	c, _ := newContext(t, smallDevice)
	require.NoError(t, c.EnableDepth())

	n, err := c.DepthMap(make([]int, 8))
	assert.Equal(t, 0, n)
	assert.True(t, errors.Is(err, ErrNoFrame), "got %v", err)
}

func TestDepthOnlyHasNoRGB(t *testing.T) {
	c, _ := newContext(t, smallDevice)
	require.NoError(t, c.EnableDepth())
	require.NoError(t, c.Update())

	n, err := c.RGBImage(make([]uint32, 8))
	assert.Equal(t, 0, n)
	assert.True(t, errors.Is(err, sensor.ErrNodeNotEnabled), "got %v", err)
	assert.Equal(t, 0, c.RGBWidth())
}

func TestDepthMap(t *testing.T) {
	c, drv := newContext(t, smallDevice)
	require.NoError(t, c.EnableDepth())
	require.NoError(t, drv.StageDepth(testDepth))
	require.NoError(t, c.Update())

	first := make([]int, 8)
	n, err := c.DepthMap(first)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, []int{0, 500, 1000, 10000, 12000, 500, 0, 3}, first)

	second := make([]int, 10)
	n, err = c.DepthMap(second)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, first, second[:8])

	require.NoError(t, c.Update())
	_, err = c.DepthMap(second)
	require.NoError(t, err)
	assert.Equal(t, 1, c.depthMap.Allocs(), "same resolution reuses the plane")
}

func TestShortBuffer(t *testing.T) {
	c, drv := newContext(t, smallDevice)
	require.NoError(t, c.EnableDepth())
	require.NoError(t, drv.StageDepth(testDepth))
	require.NoError(t, c.Update())

	dst := []int{-1, -1, -1}
	n, err := c.DepthMap(dst)
	assert.Equal(t, 0, n)
	assert.True(t, errors.Is(err, ErrShortBuffer), "got %v", err)
	assert.Equal(t, []int{-1, -1, -1}, dst)

	_, err = c.DepthHistMap(make([]float32, 100))
	assert.True(t, errors.Is(err, ErrShortBuffer), "got %v", err)

	_, err = c.DepthMapRealWorld(make([]r3.Vector, 7))
	assert.True(t, errors.Is(err, ErrShortBuffer), "got %v", err)
}

func TestDepthHistogram(t *testing.T) {
	c, drv := newContext(t, smallDevice)
	require.NoError(t, c.EnableDepth())
	require.NoError(t, drv.StageDepth(testDepth))
	require.NoError(t, c.Update())

	hist := make([]float32, c.DepthHistSize())
	n, err := c.DepthHistMap(hist)
	require.NoError(t, err)
	assert.Equal(t, buffer.MaxDepth, n)

	want := map[int]float32{0: 2, 3: 1, 500: 2, 1000: 1, buffer.MaxDepth - 1: 2}
	var total float32
	for d, count := range hist {
		assert.Equal(t, want[d], count, "depth %d", d)
		total += count
	}
	assert.Equal(t, float32(c.DepthMapSize()), total)
}

func TestDepthImageSingleTint(t *testing.T) {
	c, drv := newContext(t, smallDevice)
	require.NoError(t, c.EnableDepth())
	require.NoError(t, drv.StageDepth([]uint16{0, 0, 0, 0, 0, 500, 0, 0}))
	require.NoError(t, c.Update())

	c.SetDepthImageColor(255, 0, 0)
	img := make([]uint32, 8)
	_, err := c.DepthImage(img)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0, 0, 0, 0, 0xffff0000, 0, 0}, img)

	// A new policy applies to the current frame.
	c.SetDepthImageColorRange([]color.RGBA{{G: 255}, {B: 255}})
	_, err = c.DepthImage(img)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xff00ff00), img[5])

	c.SetDepthImageColorRange(nil)
	_, err = c.DepthImage(img)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xffff0000), img[5])
}

func TestDepthMapRealWorld(t *testing.T) {
	c, drv := newContext(t, smallDevice)
	require.NoError(t, c.EnableDepth())
	require.NoError(t, drv.StageDepth([]uint16{800, 800, 800, 800, 1000, 1000, 1000, 1000}))
	require.NoError(t, c.Update())

	points := make([]r3.Vector, 8)
	_, err := c.DepthMapRealWorld(points)
	require.NoError(t, err)

	// (2, 1) is the image center.
	assert.Equal(t, r3.Vector{Z: 1000}, points[6])

	for i, p := range points {
		want, err := c.ConvertProjectiveToRealWorld(r3.Vector{X: float64(i % 4), Y: float64(i / 4), Z: p.Z})
		require.NoError(t, err)
		assert.True(t, want.ApproxEqual(p), "pixel %d: %v != %v", i, want, p)
	}

	view, err := c.DepthMapRealWorldView()
	require.NoError(t, err)
	assert.Equal(t, points, view)
}

func TestConvertNeedsDepth(t *testing.T) {
	c, _ := newContext(t, smallDevice)

	_, err := c.ConvertRealWorldToProjective(r3.Vector{Z: 1000})
	assert.True(t, errors.Is(err, sensor.ErrNodeNotEnabled), "got %v", err)

	require.NoError(t, c.EnableDepth())
	world := []r3.Vector{{X: -200, Y: 100, Z: 1500}, {X: 0, Y: 0, Z: 700}}
	proj := make([]r3.Vector, 2)
	back := make([]r3.Vector, 2)
	require.NoError(t, c.ConvertRealWorldToProjectiveBatch(proj, world))
	require.NoError(t, c.ConvertProjectiveToRealWorldBatch(back, proj))
	for i := range world {
		assert.InDelta(t, 0, world[i].Distance(back[i]), 1e-9)
	}

	err = c.ConvertProjectiveToRealWorldBatch(back[:1], proj)
	assert.True(t, errors.Is(err, coord.ErrLengthMismatch), "got %v", err)

	center, err := c.ConvertRealWorldToProjective(r3.Vector{Z: 1000})
	require.NoError(t, err)
	assert.Equal(t, r3.Vector{X: 2, Y: 1, Z: 1000}, center)
}

func TestRGBImage(t *testing.T) {
	c, drv := newContext(t, smallDevice)
	require.NoError(t, c.EnableRGB())
	rgb := make([]uint8, 8*3)
	rgb[0], rgb[1], rgb[2] = 0x12, 0x34, 0x56
	require.NoError(t, drv.StageImage(rgb))
	require.NoError(t, c.Update())

	img := make([]uint32, c.RGBWidth()*c.RGBHeight())
	n, err := c.RGBImage(img)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, uint32(0xff123456), img[0])
	assert.Equal(t, uint32(0xff000000), img[1])
}

func TestIR(t *testing.T) {
	c, drv := newContext(t, smallDevice)
	require.NoError(t, c.EnableIR())
	require.NoError(t, drv.StageIR([]uint16{0, 1023, 2000, 511, 0, 0, 0, 0}))
	require.NoError(t, c.Update())

	raw := make([]int, 8)
	_, err := c.IRMap(raw)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1023, 2000, 511, 0, 0, 0, 0}, raw)

	img := make([]uint32, 8)
	_, err = c.IRImage(img)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xff000000), img[0])
	assert.Equal(t, uint32(0xffffffff), img[1])
	assert.Equal(t, uint32(0xffffffff), img[2])
	assert.Equal(t, uint32(0xff7f7f7f), img[3])
}

func TestScene(t *testing.T) {
	c, drv := newContext(t, smallDevice)
	require.NoError(t, c.EnableScene())
	require.NoError(t, drv.StageScene([]uint16{0, 1, 2, 9, 0, 0, 0, 0}))
	require.NoError(t, c.Update())

	labels := make([]int, 8)
	_, err := c.SceneMap(labels)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 9, 0, 0, 0, 0}, labels)

	img := make([]uint32, 8)
	_, err = c.SceneImage(img)
	require.NoError(t, err)
	assert.Equal(t, buffer.NoData, img[0])
	assert.Equal(t, uint32(0xffff0000), img[1])
	assert.Equal(t, uint32(0xff00ff00), img[2])
	assert.Equal(t, img[1], img[3], "palette wraps around")
}

func TestRealWorldWithoutSamples(t *testing.T) {
	c, drv := newContext(t, smallDevice)
	require.NoError(t, c.EnableDepth())
	require.NoError(t, drv.StageDepth(make([]uint16, 8)))
	require.NoError(t, c.Update())

	view, err := c.DepthMapRealWorldView()
	require.NoError(t, err)
	for _, p := range view {
		assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y))
		assert.Equal(t, 0.0, p.Z)
	}
}
