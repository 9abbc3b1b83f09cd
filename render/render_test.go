package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"essaim.dev/depthsense/device"
	"essaim.dev/depthsense/sensor"
	"essaim.dev/depthsense/sensor/fake"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
	none  = color.RGBA{}
)

// 2x2: red, green / blue, no data.
var packed = []uint32{0xffff0000, 0xff00ff00, 0xff0000ff, 0}

func TestNewRGBA(t *testing.T) {
	img, err := NewRGBA(packed, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, red, img.RGBAAt(0, 0))
	assert.Equal(t, green, img.RGBAAt(1, 0))
	assert.Equal(t, blue, img.RGBAAt(0, 1))
	assert.Equal(t, none, img.RGBAAt(1, 1))

	_, err = NewRGBA(packed[:3], 2, 2)
	assert.Error(t, err)
	assert.Error(t, ToRGBA(image.NewRGBA(image.Rect(0, 0, 3, 2)), packed, 2, 2))
}

func TestFlip(t *testing.T) {
	img, err := NewRGBA(packed, 2, 2)
	require.NoError(t, err)

	v := FlipVertical(img)
	assert.Equal(t, blue, v.RGBAAt(0, 0))
	assert.Equal(t, none, v.RGBAAt(1, 0))
	assert.Equal(t, red, v.RGBAAt(0, 1))

	h := FlipHorizontal(img)
	assert.Equal(t, green, h.RGBAAt(0, 0))
	assert.Equal(t, red, h.RGBAAt(1, 0))
	assert.Equal(t, none, h.RGBAAt(0, 1))

	assert.Equal(t, img.Pix, FlipHorizontal(h).Pix)
}

func TestComposite(t *testing.T) {
	base, err := NewRGBA([]uint32{0xffffffff, 0xffffffff, 0xffffffff, 0xffffffff}, 2, 2)
	require.NoError(t, err)
	overlay, err := NewRGBA(packed, 2, 2)
	require.NoError(t, err)

	Composite(base, overlay)
	assert.Equal(t, red, base.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, base.RGBAAt(1, 1))
}

func TestWritePNG(t *testing.T) {
	img, err := NewRGBA(packed, 2, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, img))

	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	r, g, b, a := decoded.At(1, 0).RGBA()
	assert.Equal(t, []uint32{0, 0xffff, 0, 0xffff}, []uint32{r, g, b, a})
}

func TestRenderer(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	drv := fake.New(fake.WithLogger(logger))
	c := device.New(drv, logger)
	require.NoError(t, c.Init(strings.NewReader(`{
		"depth": {"width": 2, "height": 2},
		"image": {"width": 2, "height": 2},
		"scene": true,
		"horizontal_fov": 1, "vertical_fov": 1,
	}`)))
	defer c.Close()

	require.NoError(t, c.EnableScene())
	require.NoError(t, c.EnableRGB())
	require.NoError(t, drv.StageDepth([]uint16{1000, 1000, 0, 1000}))
	require.NoError(t, drv.StageScene([]uint16{0, 2, 0, 0}))
	require.NoError(t, drv.StageImage([]uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}))
	require.NoError(t, c.Update())
	c.SetDepthImageColor(0, 0, 255)

	r := NewRenderer(c)
	img, err := r.Render()
	require.NoError(t, err)
	assert.Equal(t, blue, img.RGBAAt(0, 0))
	assert.Equal(t, green, img.RGBAAt(1, 0), "user 2 drawn over depth")
	assert.Equal(t, none, img.RGBAAt(0, 1))

	r.FlipVertical = true
	img, err = r.Render()
	require.NoError(t, err)
	assert.Equal(t, none, img.RGBAAt(0, 0))

	rgb, err := r.RenderRGB()
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 7, G: 8, B: 9, A: 255}, rgb.RGBAAt(0, 0))

	require.NoError(t, c.DisableNode(sensor.NodeImage))
	_, err = r.RenderRGB()
	assert.Error(t, err)
}
