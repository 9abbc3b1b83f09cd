// Package device pumps frames out of a sensor driver and serves the current frame to the
// application.
//
// A Context owns one driver session. Update advances the driver by one frame, refreshes the
// metadata of every enabled node and then hands the user, calibration and pose events raised
// during the frame to the user tracker. Derived buffers (depth images, real world points,
// histograms, ...) are computed on demand from the current frame and reused until the next
// Update.
//
// A Context is not safe for concurrent use. Observers run on the goroutine calling Update and
// must not call Update themselves.
package device

import (
	"io"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"essaim.dev/depthsense/buffer"
	"essaim.dev/depthsense/coord"
	"essaim.dev/depthsense/sensor"
	"essaim.dev/depthsense/tracking"
)

// APIVersion is reported by Version.
const APIVersion = 2

var (
	// ErrNotInitialized is returned by every operation but Init outside of a session.
	ErrNotInitialized = errors.New("context is not initialized")
	// ErrAlreadyInitialized is returned by Init during a session.
	ErrAlreadyInitialized = errors.New("context is already initialized")
	// ErrNoFrame is returned by accessors called before the first Update.
	ErrNoFrame = errors.New("no frame has been received")
	// ErrShortBuffer is returned by accessors given a destination too small for the frame.
	ErrShortBuffer = errors.New("destination buffer is too short")
	// ErrReentrantUpdate is returned by Update, Close and DisableNode when called from an
	// observer.
	ErrReentrantUpdate = errors.New("update called from inside update")
)

// Context is a device session and the buffers derived from its current frame.
type Context struct {
	logger *zap.SugaredLogger
	log    *zap.SugaredLogger

	driver  sensor.Driver
	users   sensor.UserDriver
	tracker *tracking.Tracker

	session  uuid.UUID
	init     bool
	updating bool
	enabled  map[sensor.NodeKind]bool
	pending  []sensor.Event

	depthMD sensor.Metadata[uint16]
	imageMD sensor.Metadata[uint8]
	irMD    sensor.Metadata[uint16]
	sceneMD sensor.Metadata[uint16]

	converter *coord.Converter
	colorizer *buffer.Colorizer

	depthMap   *buffer.Plane[int]
	depthImage *buffer.Plane[uint32]
	depthReal  *buffer.Plane[r3.Vector]
	depthHist  *buffer.Plane[float32]
	rgbImage   *buffer.Plane[uint32]
	irMap      *buffer.Plane[int]
	irImage    *buffer.Plane[uint32]
	sceneMap   *buffer.Plane[int]
	sceneImage *buffer.Plane[uint32]
}

// New returns an uninitialized context over driver.
func New(driver sensor.Driver, logger *zap.SugaredLogger) *Context {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	c := &Context{
		logger:    logger,
		log:       logger,
		driver:    driver,
		tracker:   tracking.NewTracker(logger.Named("tracking")),
		enabled:   make(map[sensor.NodeKind]bool),
		colorizer: buffer.NewColorizer(),
	}
	c.users, _ = driver.(sensor.UserDriver)
	c.resetPlanes()
	return c
}

func (c *Context) resetPlanes() {
	c.depthMap = buffer.NewPlane[int](1)
	c.depthImage = buffer.NewPlane[uint32](1)
	c.depthReal = buffer.NewPlane[r3.Vector](1)
	c.depthHist = buffer.NewPlane[float32](1)
	c.rgbImage = buffer.NewPlane[uint32](1)
	c.irMap = buffer.NewPlane[int](1)
	c.irImage = buffer.NewPlane[uint32](1)
	c.sceneMap = buffer.NewPlane[int](1)
	c.sceneImage = buffer.NewPlane[uint32](1)
}

// Init opens a driver session. config is handed to the driver untouched; nil selects the
// driver defaults.
func (c *Context) Init(config io.Reader) error {
	if c.init {
		return ErrAlreadyInitialized
	}
	if err := c.driver.Open(config); err != nil {
		return errors.Wrap(err, "could not open device")
	}

	c.session = uuid.New()
	c.log = c.logger.With("session", c.session.String())
	c.init = true

	c.log.Infow("device initialized", "users", c.users != nil)
	return nil
}

// IsInit reports whether a session is open.
func (c *Context) IsInit() bool {
	return c.init
}

// Session returns the id of the current session, the zero UUID outside of one.
func (c *Context) Session() uuid.UUID {
	if !c.init {
		return uuid.Nil
	}
	return c.session
}

// Version returns the API version.
func (c *Context) Version() int {
	return APIVersion
}

func (c *Context) enable(kind sensor.NodeKind) error {
	if !c.init {
		return ErrNotInitialized
	}
	if c.enabled[kind] {
		return nil
	}
	if err := c.driver.EnableNode(kind); err != nil {
		return errors.Wrapf(err, "could not enable %s node", kind)
	}

	c.enabled[kind] = true
	c.refreshMetadata(kind)
	c.log.Debugw("node enabled", "node", kind)
	return nil
}

// EnableDepth enables the depth node.
func (c *Context) EnableDepth() error {
	if err := c.enable(sensor.NodeDepth); err != nil {
		return err
	}
	if err := c.updateConverter(); err != nil {
		return multierr.Append(err, c.DisableNode(sensor.NodeDepth))
	}
	return nil
}

// EnableRGB enables the color image node.
func (c *Context) EnableRGB() error {
	return c.enable(sensor.NodeImage)
}

// EnableIR enables the infrared node.
func (c *Context) EnableIR() error {
	return c.enable(sensor.NodeIR)
}

// EnableScene enables the scene segmentation node, and the depth node it is computed from.
func (c *Context) EnableScene() error {
	if err := c.EnableDepth(); err != nil {
		return err
	}
	return c.enable(sensor.NodeScene)
}

// EnableUser enables user detection with the given skeleton profile, and the depth node it
// is computed from. Calling it again with the node enabled only changes the profile.
func (c *Context) EnableUser(profile sensor.SkeletonProfile) error {
	if !c.init {
		return ErrNotInitialized
	}
	if c.users == nil {
		return errors.Wrap(sensor.ErrUnsupported, "driver cannot detect users")
	}
	if err := c.EnableDepth(); err != nil {
		return err
	}

	enabling := !c.enabled[sensor.NodeUser]
	if enabling {
		if err := c.enable(sensor.NodeUser); err != nil {
			return err
		}
		c.users.SetEventHandler(c.enqueue)
		c.tracker.SetDriver(c.users)
	}

	if err := c.users.SetSkeletonProfile(profile); err != nil {
		err = errors.Wrap(err, "could not set skeleton profile")
		if enabling {
			err = multierr.Append(err, c.DisableNode(sensor.NodeUser))
		}
		return err
	}
	return nil
}

// enqueue is the driver event handler. Events are held until the frame they were raised on
// is current.
func (c *Context) enqueue(ev sensor.Event) {
	c.pending = append(c.pending, ev)
}

// DisableNode disables a node and frees its buffers. The depth node cannot be disabled while
// the scene or user node depends on it, nor from an observer during Update.
func (c *Context) DisableNode(kind sensor.NodeKind) error {
	if !c.init {
		return ErrNotInitialized
	}
	if c.updating {
		return ErrReentrantUpdate
	}
	if !c.enabled[kind] {
		return nil
	}
	if kind == sensor.NodeDepth && (c.enabled[sensor.NodeUser] || c.enabled[sensor.NodeScene]) {
		return errors.New("depth node is in use by the scene or user node")
	}
	if err := c.driver.DisableNode(kind); err != nil {
		return errors.Wrapf(err, "could not disable %s node", kind)
	}

	delete(c.enabled, kind)
	switch kind {
	case sensor.NodeDepth:
		c.depthMD = sensor.Metadata[uint16]{}
		c.converter = nil
		c.depthMap.Release()
		c.depthImage.Release()
		c.depthReal.Release()
		c.depthHist.Release()
	case sensor.NodeImage:
		c.imageMD = sensor.Metadata[uint8]{}
		c.rgbImage.Release()
	case sensor.NodeIR:
		c.irMD = sensor.Metadata[uint16]{}
		c.irMap.Release()
		c.irImage.Release()
	case sensor.NodeScene:
		c.sceneMD = sensor.Metadata[uint16]{}
		c.sceneMap.Release()
		c.sceneImage.Release()
	case sensor.NodeUser:
		c.users.SetEventHandler(nil)
		c.tracker.SetDriver(nil)
		c.tracker.Reset()
		c.pending = nil
	}

	c.log.Debugw("node disabled", "node", kind)
	return nil
}

func (c *Context) refreshMetadata(kind sensor.NodeKind) {
	switch kind {
	case sensor.NodeDepth:
		c.depthMD = c.driver.DepthMetaData()
	case sensor.NodeImage:
		c.imageMD = c.driver.ImageMetaData()
	case sensor.NodeIR:
		c.irMD = c.driver.IRMetaData()
	case sensor.NodeScene:
		c.sceneMD = c.driver.SceneMetaData()
	}
}

// updateConverter rebuilds the coordinate converter when the depth resolution changed.
func (c *Context) updateConverter() error {
	w, h := c.depthMD.Width, c.depthMD.Height
	if c.converter != nil {
		if cw, ch := c.converter.Size(); cw == w && ch == h {
			return nil
		}
	}

	conv, err := coord.New(w, h, c.driver.FieldOfView())
	if err != nil {
		c.converter = nil
		return errors.Wrap(err, "could not build coordinate converter")
	}
	c.converter = conv
	return nil
}

// Update waits for the next frame, refreshes every enabled node and dispatches the events
// raised on the frame. Derived buffers are recomputed on their next access.
func (c *Context) Update() error {
	if !c.init {
		return ErrNotInitialized
	}
	if c.updating {
		return ErrReentrantUpdate
	}
	c.updating = true
	defer func() { c.updating = false }()

	if err := c.driver.WaitAndUpdateAll(); err != nil {
		return errors.Wrap(err, "could not update device")
	}

	for _, kind := range sensor.NodeKinds {
		if c.enabled[kind] {
			c.refreshMetadata(kind)
		}
	}
	if c.enabled[sensor.NodeDepth] {
		if err := c.updateConverter(); err != nil {
			return err
		}
	}

	events := c.pending
	c.pending = nil
	for _, ev := range events {
		c.log.Debugw("driver event", "event", ev.Kind, "user", ev.User, "frame", c.depthMD.FrameID)
		c.tracker.HandleEvent(ev)
	}
	return nil
}

// Close disables every node, closes the driver and forgets every user and buffer. Observers
// stay registered for the next session.
func (c *Context) Close() error {
	if !c.init {
		return ErrNotInitialized
	}
	if c.updating {
		return ErrReentrantUpdate
	}

	var err error
	for _, kind := range []sensor.NodeKind{
		sensor.NodeUser, sensor.NodeScene, sensor.NodeIR, sensor.NodeImage, sensor.NodeDepth,
	} {
		err = multierr.Append(err, c.DisableNode(kind))
	}
	err = multierr.Append(err, errors.Wrap(c.driver.Close(), "could not close device"))

	c.tracker.SetDriver(nil)
	c.tracker.Reset()
	clear(c.enabled)
	c.pending = nil
	c.converter = nil
	c.depthMD = sensor.Metadata[uint16]{}
	c.imageMD = sensor.Metadata[uint8]{}
	c.irMD = sensor.Metadata[uint16]{}
	c.sceneMD = sensor.Metadata[uint16]{}
	c.resetPlanes()
	c.init = false

	c.log.Infow("device closed", "error", err)
	c.log = c.logger
	return err
}

// Enabled reports whether a node is enabled.
func (c *Context) Enabled(kind sensor.NodeKind) bool {
	return c.init && c.enabled[kind]
}

// SceneFloor returns the floor plane detected in the current frame. It is only available
// with the scene node enabled.
func (c *Context) SceneFloor() (sensor.Plane, bool) {
	if !c.Enabled(sensor.NodeScene) {
		return sensor.Plane{}, false
	}
	return c.driver.Floor()
}

// SetMirror mirrors the frames produced from the next Update on.
func (c *Context) SetMirror(on bool) error {
	if !c.init {
		return ErrNotInitialized
	}
	if err := c.driver.SetMirror(on); err != nil {
		return errors.Wrap(err, "could not set mirror")
	}
	return nil
}

// Mirror reports whether frames are mirrored.
func (c *Context) Mirror() bool {
	return c.init && c.driver.Mirror()
}

func (c *Context) DepthWidth() int  { return c.depthMD.Width }
func (c *Context) DepthHeight() int { return c.depthMD.Height }
func (c *Context) RGBWidth() int    { return c.imageMD.Width }
func (c *Context) RGBHeight() int   { return c.imageMD.Height }
func (c *Context) IRWidth() int     { return c.irMD.Width }
func (c *Context) IRHeight() int    { return c.irMD.Height }
func (c *Context) SceneWidth() int  { return c.sceneMD.Width }
func (c *Context) SceneHeight() int { return c.sceneMD.Height }

// FrameID returns the id of the current depth frame, 0 before the first Update.
func (c *Context) FrameID() uint64 {
	return c.depthMD.FrameID
}

// DepthMapSize returns the number of depth pixels, 0 with the depth node disabled.
func (c *Context) DepthMapSize() int {
	return c.depthMD.Pixels()
}

// DepthHistSize returns the number of histogram buckets, 0 with the depth node disabled.
func (c *Context) DepthHistSize() int {
	if !c.Enabled(sensor.NodeDepth) {
		return 0
	}
	return buffer.MaxDepth
}
