package depthstream

import (
	"context"
	"encoding/binary"
	"image/color"
	"io"
	"runtime"
	"strings"
	"testing"
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"essaim.dev/depthsense/device"
	"essaim.dev/depthsense/sensor/fake"
)

func codec(t *testing.T) (*zstd.Encoder, *zstd.Decoder) {
	t.Helper()

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		enc.Close()
		dec.Close()
	})
	return enc, dec
}

func TestFrameBitsAreMSBFirst(t *testing.T) {
	var f Frame
	f.FromDepth(3, 3, []int{
		500, 0, 2500,
		1999, 2000, 2001,
		0, 0, 100,
	}, 2000)

	assert.Equal(t, []byte{0b1001_1000, 0b1000_0000}, f.Bits)
	assert.Equal(t, 4, f.Count())
	assert.True(t, f.At(0, 0))
	assert.False(t, f.At(1, 0))
	assert.True(t, f.At(1, 1))
	assert.True(t, f.At(2, 2))

	f.FromScene(3, 1, []int{0, 4, 0})
	assert.Equal(t, []byte{0b0100_0000}, f.Bits)
}

func TestPacketRoundTrip(t *testing.T) {
	enc, dec := codec(t)

	f := NewFrame(16, 4)
	f.FrameID = 42
	f.FromScene(16, 4, append(make([]int, 60), 1, 1, 1, 1))

	got, err := DecodePacket(dec, f.AppendPacket(enc, nil))
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestDecodeMalformedPacket(t *testing.T) {
	enc, dec := codec(t)

	_, err := DecodePacket(dec, []byte{1, 2, 3})
	assert.True(t, errors.Is(err, ErrMalformedFrame), "got %v", err)

	packet := NewFrame(2, 2).AppendPacket(enc, nil)
	packet[0] = 9
	_, err = DecodePacket(dec, packet)
	assert.True(t, errors.Is(err, ErrMalformedFrame), "got %v", err)

	// Header claims more pixels than the payload holds.
	packet = NewFrame(2, 2).AppendPacket(enc, nil)
	packet[2] = 100
	_, err = DecodePacket(dec, packet)
	assert.True(t, errors.Is(err, ErrMalformedFrame), "got %v", err)
}

func TestDecodeRejectsOversizedHeader(t *testing.T) {
	enc, dec := codec(t)

	packet := NewFrame(8, 1).AppendPacket(enc, nil)
	binary.BigEndian.PutUint16(packet[1:], 0xffff)
	binary.BigEndian.PutUint16(packet[3:], 0xffff)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := DecodePacket(dec, packet)
	runtime.ReadMemStats(&after)

	assert.True(t, errors.Is(err, ErrMalformedFrame), "got %v", err)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20))
}

func TestServerRejectsOversizedFrame(t *testing.T) {
	rec := &packetRecorder{}
	s, err := newServer(rec, nil, nil)
	require.NoError(t, err)
	defer s.Close()

	s.frame = NewFrame(4096, 4096)
	assert.ErrorContains(t, s.send(), "too large")
	assert.Empty(t, rec.packets)
}

type packetRecorder struct {
	packets [][]byte
	closed  bool
}

func (r *packetRecorder) Write(b []byte) (int, error) {
	r.packets = append(r.packets, append([]byte(nil), b...))
	return len(b), nil
}

func (r *packetRecorder) Close() error {
	r.closed = true
	return nil
}

func newDevice(t *testing.T) (*device.Context, *fake.Driver) {
	t.Helper()

	logger := zaptest.NewLogger(t).Sugar()
	drv := fake.New(fake.WithLogger(logger))
	c := device.New(drv, logger)
	require.NoError(t, c.Init(strings.NewReader(`{
		"depth": {"width": 4, "height": 2},
		"scene": true,
		"horizontal_fov": 1, "vertical_fov": 1,
	}`)))
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.EnableDepth())
	require.NoError(t, drv.StageDepth([]uint16{1000, 3000, 0, 1500, 2000, 2100, 800, 9000}))
	require.NoError(t, drv.StageScene([]uint16{0, 0, 0, 0, 0, 0, 0, 3}))
	return c, drv
}

func TestServerPublishesDepthSilhouette(t *testing.T) {
	c, _ := newDevice(t)
	_, dec := codec(t)
	rec := &packetRecorder{}

	s, err := newServer(rec, c, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	require.NoError(t, s.Publish())
	s.SetDepthThreshold(1200)
	require.NoError(t, s.Publish())
	require.Len(t, rec.packets, 2)

	first, err := DecodePacket(dec, rec.packets[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.FrameID)
	assert.Equal(t, []byte{0b1001_1010}, first.Bits)

	second, err := DecodePacket(dec, rec.packets[1])
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.FrameID)
	assert.Equal(t, []byte{0b1000_0010}, second.Bits)

	require.NoError(t, s.Close())
	assert.True(t, rec.closed)
}

func TestServerPrefersScene(t *testing.T) {
	c, _ := newDevice(t)
	require.NoError(t, c.EnableScene())
	_, dec := codec(t)
	rec := &packetRecorder{}

	s, err := newServer(rec, c, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Publish())
	f, err := DecodePacket(dec, rec.packets[0])
	require.NoError(t, err)
	assert.Equal(t, []byte{0b0000_0001}, f.Bits)
}

func TestServerRunStopsOnDeviceFailure(t *testing.T) {
	c, drv := newDevice(t)
	rec := &packetRecorder{}

	s, err := newServer(rec, c, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Publish())
	drv.Fail(errors.New("unplugged"))
	err = s.Run(context.Background())
	assert.ErrorContains(t, err, "unplugged")
	assert.Len(t, rec.packets, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

type packetReader struct {
	packets [][]byte
}

func (r *packetReader) Read(b []byte) (int, error) {
	if len(r.packets) == 0 {
		return 0, io.EOF
	}
	n := copy(b, r.packets[0])
	r.packets = r.packets[1:]
	return n, nil
}

func (r *packetReader) Close() error { return nil }

func TestClient(t *testing.T) {
	enc, _ := codec(t)

	frame := func(id uint64, labels ...int) []byte {
		var f Frame
		f.FromScene(2, 2, labels)
		f.FrameID = id
		return f.AppendPacket(enc, nil)
	}

	r := &packetReader{packets: [][]byte{
		frame(1, 1, 0, 0, 0),
		{0xde, 0xad},
		frame(3, 0, 1, 0, 0),
		frame(2, 1, 1, 1, 1),
	}}
	c, err := newClient(r, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer c.Close()
	c.clk = bclock.NewMock()

	err = c.Run(context.Background())
	assert.True(t, errors.Is(err, io.EOF), "got %v", err)

	f := c.Frame()
	assert.Equal(t, uint64(3), f.FrameID)
	assert.Equal(t, 2, c.Dropped())

	red := color.RGBA{R: 255, A: 255}
	img := c.RenderImage(red)
	assert.Equal(t, red, img.RGBAAt(0, 0), "mirrored")
	assert.Equal(t, color.RGBA{A: 255}, img.RGBAAt(1, 0))
}

func TestClientFollowsRestartedServer(t *testing.T) {
	enc, _ := codec(t)

	packet := func(id uint64) []byte {
		f := NewFrame(2, 2)
		f.FrameID = id
		return f.AppendPacket(enc, nil)
	}

	c, err := newClient(&packetReader{}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer c.Close()
	clk := bclock.NewMock()
	c.clk = clk

	require.NoError(t, c.handle(packet(500)))
	require.NoError(t, c.handle(packet(1)), "far behind the last frame")
	assert.Equal(t, uint64(1), c.Frame().FrameID)

	require.NoError(t, c.handle(packet(40)))
	assert.Error(t, c.handle(packet(30)))

	clk.Add(3 * time.Second)
	require.NoError(t, c.handle(packet(2)), "after a silence")
	assert.Equal(t, uint64(2), c.Frame().FrameID)
	assert.Equal(t, 1, c.Dropped())
}
