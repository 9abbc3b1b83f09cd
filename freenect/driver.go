//go:build freenect

package freenect

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"essaim.dev/depthsense/sensor"
)

func init() {
	sensor.Register(DriverName, func(logger *zap.SugaredLogger) sensor.Driver {
		return NewDriver(logger)
	})
}

// pollInterval bounds a single ProcessEvents call so the frame timeout is honored.
const pollInterval = 100 * time.Millisecond

type node struct {
	width   int
	height  int
	frameID uint64
	fresh   bool
}

// Driver is a sensor.Driver for the Kinect. It provides the depth, image and IR nodes; image
// and IR share the video stream and cannot be enabled together.
type Driver struct {
	logger *zap.SugaredLogger

	cfg     Config
	timeout time.Duration
	ctx     *Context
	dev     *Device

	nodes   map[sensor.NodeKind]*node
	frameID uint64

	depth []uint16
	image []uint8
	ir    []uint16

	mirror bool
}

var _ sensor.Driver = (*Driver)(nil)

// NewDriver returns a closed driver.
func NewDriver(logger *zap.SugaredLogger) *Driver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Driver{logger: logger}
}

// Open opens the configured device and lights its LED.
func (d *Driver) Open(config io.Reader) error {
	if d.dev != nil {
		return errors.New("device is already open")
	}

	cfg, err := ParseConfig(config)
	if err != nil {
		return err
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return err
	}

	ctx, err := NewContext()
	if err != nil {
		return errors.Wrap(sensor.ErrNoDevice, err.Error())
	}
	if n := ctx.NumDevices(); cfg.DeviceIndex >= n {
		return multierr.Append(
			errors.Wrapf(sensor.ErrNoDevice, "device %d requested, %d plugged in", cfg.DeviceIndex, n),
			ctx.Destroy(),
		)
	}
	dev, err := ctx.OpenDevice(cfg.DeviceIndex)
	if err != nil {
		return multierr.Append(errors.Wrap(sensor.ErrNoDevice, err.Error()), ctx.Destroy())
	}
	if err := dev.SetLED(ledColors[cfg.LED]); err != nil {
		d.logger.Warnw("could not set led", "led", cfg.LED, "error", err)
	}

	d.cfg = cfg
	d.timeout = timeout
	d.ctx = ctx
	d.dev = dev
	d.nodes = make(map[sensor.NodeKind]*node)
	d.frameID = 0
	d.mirror = false

	d.logger.Infow("kinect opened", "index", cfg.DeviceIndex, "devices", ctx.NumDevices())
	return nil
}

// Close stops the streams, turns the LED off and releases the device.
func (d *Driver) Close() error {
	if d.dev == nil {
		return sensor.ErrNotOpen
	}

	var err error
	for _, kind := range []sensor.NodeKind{sensor.NodeIR, sensor.NodeImage, sensor.NodeDepth} {
		err = multierr.Append(err, d.DisableNode(kind))
	}
	err = multierr.Append(err, d.dev.SetLED(LEDColorOff))
	err = multierr.Append(err, d.dev.Destroy())
	err = multierr.Append(err, d.ctx.Destroy())

	d.dev, d.ctx = nil, nil
	d.nodes = nil
	d.depth, d.image, d.ir = nil, nil, nil
	return err
}

func (d *Driver) EnableNode(kind sensor.NodeKind) error {
	if d.dev == nil {
		return sensor.ErrNotOpen
	}
	if _, ok := d.nodes[kind]; ok {
		return nil
	}

	switch kind {
	case sensor.NodeDepth:
		d.dev.SetDepthCallback(d.onDepth)
		if err := d.dev.StartDepthStream(ResolutionMedium, DepthFormatMM); err != nil {
			return err
		}
		n := d.addNode(kind, d.dev.depthMode)
		d.depth = make([]uint16, n.width*n.height)

	case sensor.NodeImage, sensor.NodeIR:
		if d.videoNode() >= 0 {
			return errors.Wrapf(sensor.ErrUnsupported, "%s node shares the video stream with %s", kind, d.videoNode())
		}
		format := VideoFormatRGB
		if kind == sensor.NodeIR {
			format = VideoFormatIR10Bit
		}
		d.dev.SetVideoCallback(d.onVideo)
		if err := d.dev.StartVideoStream(ResolutionMedium, format); err != nil {
			return err
		}
		n := d.addNode(kind, d.dev.videoMode)
		if kind == sensor.NodeImage {
			d.image = make([]uint8, n.width*n.height*3)
		} else {
			d.ir = make([]uint16, n.width*n.height)
		}

	default:
		return errors.Wrapf(sensor.ErrUnsupported, "no %s node on kinect", kind)
	}

	d.logger.Debugw("node enabled", "node", kind)
	return nil
}

func (d *Driver) addNode(kind sensor.NodeKind, mode frameMode) *node {
	n := &node{width: mode.width, height: mode.height}
	d.nodes[kind] = n
	return n
}

// videoNode returns the node using the video stream, or -1.
func (d *Driver) videoNode() sensor.NodeKind {
	for _, kind := range []sensor.NodeKind{sensor.NodeImage, sensor.NodeIR} {
		if _, ok := d.nodes[kind]; ok {
			return kind
		}
	}
	return -1
}

func (d *Driver) DisableNode(kind sensor.NodeKind) error {
	if d.dev == nil {
		return sensor.ErrNotOpen
	}
	if _, ok := d.nodes[kind]; !ok {
		return nil
	}
	delete(d.nodes, kind)

	switch kind {
	case sensor.NodeDepth:
		d.depth = nil
		return d.dev.StopDepthStream()
	case sensor.NodeImage:
		d.image = nil
	case sensor.NodeIR:
		d.ir = nil
	}
	return d.dev.StopVideoStream()
}

func (d *Driver) onDepth(_ *Device, depth []uint16, _ uint32) {
	n, ok := d.nodes[sensor.NodeDepth]
	if !ok {
		return
	}
	copy(d.depth, depth)
	n.fresh = true
}

func (d *Driver) onVideo(_ *Device, video []byte, _ uint32) {
	if n, ok := d.nodes[sensor.NodeImage]; ok {
		copy(d.image, video)
		n.fresh = true
	}
	if n, ok := d.nodes[sensor.NodeIR]; ok {
		decodeIR10(d.ir, video)
		n.fresh = true
	}
}

// WaitAndUpdateAll processes USB events until every enabled node has received a frame, or
// fails once the configured frame timeout has passed.
func (d *Driver) WaitAndUpdateAll() error {
	if d.dev == nil {
		return sensor.ErrNotOpen
	}

	deadline := time.Now().Add(d.timeout)
	for !d.allFresh() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errors.Errorf("no frame from kinect within %s", d.timeout)
		}
		if err := d.ctx.ProcessEvents(min(remaining, pollInterval)); err != nil {
			return err
		}
	}

	d.frameID++
	for _, n := range d.nodes {
		n.frameID = d.frameID
		n.fresh = false
	}
	return nil
}

func (d *Driver) allFresh() bool {
	for _, n := range d.nodes {
		if !n.fresh {
			return false
		}
	}
	return true
}

func (d *Driver) DepthMetaData() sensor.Metadata[uint16] {
	return metadata(d, sensor.NodeDepth, d.depth)
}

func (d *Driver) ImageMetaData() sensor.Metadata[uint8] {
	return metadata(d, sensor.NodeImage, d.image)
}

func (d *Driver) IRMetaData() sensor.Metadata[uint16] {
	return metadata(d, sensor.NodeIR, d.ir)
}

func (d *Driver) SceneMetaData() sensor.Metadata[uint16] {
	return sensor.Metadata[uint16]{}
}

func metadata[T uint8 | uint16](d *Driver, kind sensor.NodeKind, data []T) sensor.Metadata[T] {
	n, ok := d.nodes[kind]
	if !ok {
		return sensor.Metadata[T]{}
	}
	md := sensor.Metadata[T]{Width: n.width, Height: n.height, FrameID: n.frameID}
	if n.frameID != 0 {
		md.Data = data
	}
	return md
}

func (d *Driver) FieldOfView() sensor.FieldOfView {
	return sensor.FieldOfView{Horizontal: HorizontalFOV, Vertical: VerticalFOV}
}

// Floor is never known; the kinect has no scene analysis.
func (d *Driver) Floor() (sensor.Plane, bool) {
	return sensor.Plane{}, false
}

func (d *Driver) SetMirror(on bool) error {
	if d.dev == nil {
		return sensor.ErrNotOpen
	}
	if err := multierr.Combine(
		d.dev.SetFlag(FlagMirrorDepth, on),
		d.dev.SetFlag(FlagMirrorVideo, on),
	); err != nil {
		return err
	}
	d.mirror = on
	return nil
}

func (d *Driver) Mirror() bool {
	return d.mirror
}
