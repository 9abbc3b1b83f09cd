// Package fake provides a deterministic in-process sensor driver. Frames can be staged by
// tests or rendered from a synthetic scene, and user, calibration and pose events can be
// emitted by hand or scripted from the configuration.
package fake

import (
	"io"
	"sort"

	bclock "github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"essaim.dev/depthsense/clock"
	"essaim.dev/depthsense/sensor"
)

func init() {
	sensor.Register("fake", func(logger *zap.SugaredLogger) sensor.Driver {
		return New(WithLogger(logger))
	})
}

// Call is a command received from the application.
type Call struct {
	Name  string
	User  sensor.UserID
	Force bool
	Pose  string
}

const defaultUserDistance = 1500

type calibrationPhase int

const (
	phaseIdle calibrationPhase = iota
	phaseRequested
	phaseCalibrating
)

type simUser struct {
	id       sensor.UserID
	distance uint16
	failures int

	phase    calibrationPhase
	tracking bool
	pose     string
	inPose   bool

	joints map[sensor.Joint]sensor.JointPosition
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock sets the clock used to pace frames.
func WithClock(clk bclock.Clock) Option {
	return func(d *Driver) {
		d.clk = clk
	}
}

// Driver is a fake sensor.Driver and sensor.UserDriver.
type Driver struct {
	logger *zap.SugaredLogger
	clk    bclock.Clock

	cfg    Config
	open   bool
	frames *clock.FrameClock

	enabled   map[sensor.NodeKind]bool
	nodeFrame map[sensor.NodeKind]uint64
	frameID   uint64

	depth []uint16
	image []uint8
	ir    []uint16
	scene []uint16

	stagedDepth []uint16
	stagedImage []uint8
	stagedIR    []uint16
	stagedScene []uint16

	floor   *sensor.Plane
	mirror  bool
	failure error

	handler sensor.EventHandler
	profile sensor.SkeletonProfile
	queued  []sensor.Event
	users   map[sensor.UserID]*simUser
	calls   []Call
}

var (
	_ sensor.Driver     = (*Driver)(nil)
	_ sensor.UserDriver = (*Driver)(nil)
)

// New returns a closed fake driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		logger: zap.NewNop().Sugar(),
		clk:    bclock.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.reset()
	return d
}

func (d *Driver) reset() {
	d.enabled = make(map[sensor.NodeKind]bool)
	d.nodeFrame = make(map[sensor.NodeKind]uint64)
	d.frameID = 0
	d.depth, d.image, d.ir, d.scene = nil, nil, nil, nil
	d.stagedDepth, d.stagedImage, d.stagedIR, d.stagedScene = nil, nil, nil, nil
	d.floor = nil
	d.mirror = false
	d.failure = nil
	d.handler = nil
	d.profile = sensor.SkeletonNone
	d.queued = nil
	d.users = make(map[sensor.UserID]*simUser)
}

// Open starts a session from a Config document, or DefaultConfig when config is nil.
func (d *Driver) Open(config io.Reader) error {
	if d.open {
		return errors.New("device is already open")
	}

	cfg, err := ParseConfig(config)
	if err != nil {
		return err
	}
	if cfg.Depth == nil && cfg.Image == nil && cfg.IR == nil {
		return errors.Wrap(sensor.ErrNoDevice, "configuration has no nodes")
	}
	interval, err := cfg.interval()
	if err != nil {
		return err
	}

	d.reset()
	d.cfg = cfg
	d.frames = clock.NewFrameClock(d.clk, interval)
	d.open = true

	d.logger.Debugw("fake device opened", "interval", interval, "synthetic", cfg.Synthetic)
	return nil
}

// Close ends the session.
func (d *Driver) Close() error {
	if !d.open {
		return sensor.ErrNotOpen
	}
	d.reset()
	d.open = false
	return nil
}

func (d *Driver) resolution(kind sensor.NodeKind) *Resolution {
	switch kind {
	case sensor.NodeDepth:
		return d.cfg.Depth
	case sensor.NodeImage:
		return d.cfg.Image
	case sensor.NodeIR:
		return d.cfg.IR
	case sensor.NodeScene:
		if d.cfg.Scene {
			return d.cfg.Depth
		}
	case sensor.NodeUser:
		if d.cfg.User {
			return d.cfg.Depth
		}
	}
	return nil
}

// EnableNode starts producing frames for a node.
func (d *Driver) EnableNode(kind sensor.NodeKind) error {
	if !d.open {
		return sensor.ErrNotOpen
	}
	res := d.resolution(kind)
	if res == nil {
		return errors.Wrapf(sensor.ErrUnsupported, "no %s node on device", kind)
	}
	if (kind == sensor.NodeScene || kind == sensor.NodeUser) && !d.enabled[sensor.NodeDepth] {
		return errors.Errorf("%s node needs the depth node", kind)
	}
	if d.enabled[kind] {
		return nil
	}

	n := res.Width * res.Height
	switch kind {
	case sensor.NodeDepth:
		d.depth = make([]uint16, n)
	case sensor.NodeImage:
		d.image = make([]uint8, n*3)
	case sensor.NodeIR:
		d.ir = make([]uint16, n)
	case sensor.NodeScene:
		d.scene = make([]uint16, n)
	}
	d.enabled[kind] = true
	d.nodeFrame[kind] = 0
	return nil
}

// DisableNode stops producing frames for a node.
func (d *Driver) DisableNode(kind sensor.NodeKind) error {
	if !d.open {
		return sensor.ErrNotOpen
	}
	if !d.enabled[kind] {
		return nil
	}

	switch kind {
	case sensor.NodeDepth:
		d.depth = nil
	case sensor.NodeImage:
		d.image = nil
	case sensor.NodeIR:
		d.ir = nil
	case sensor.NodeScene:
		d.scene = nil
	case sensor.NodeUser:
		d.handler = nil
	}
	delete(d.enabled, kind)
	delete(d.nodeFrame, kind)
	return nil
}

// WaitAndUpdateAll produces the next frame and dispatches the events raised on it.
func (d *Driver) WaitAndUpdateAll() error {
	if !d.open {
		return sensor.ErrNotOpen
	}
	if d.failure != nil {
		err := d.failure
		d.failure = nil
		return err
	}

	d.frames.Wait()
	d.frameID++

	events := d.queued
	d.queued = nil
	events = append(events, d.script()...)
	events = append(events, d.simulate()...)

	d.render()

	if !d.enabled[sensor.NodeUser] || d.handler == nil {
		return nil
	}
	for _, ev := range events {
		d.handler(ev)
	}
	return nil
}

func (d *Driver) script() []sensor.Event {
	var events []sensor.Event
	for _, su := range d.cfg.Users {
		id := sensor.UserID(su.ID)
		enter := su.EnterFrame
		if enter == 0 {
			enter = 1
		}

		switch d.frameID {
		case enter:
			dist := su.Distance
			if dist == 0 {
				dist = defaultUserDistance
			}
			d.users[id] = &simUser{id: id, distance: dist, failures: su.FailCalibrations}
			events = append(events, sensor.Event{Kind: sensor.EventNewUser, User: id})
		case su.ExitFrame:
			if _, ok := d.users[id]; ok {
				delete(d.users, id)
				events = append(events, sensor.Event{Kind: sensor.EventLostUser, User: id})
			}
		}
	}
	return events
}

// simulate advances requested calibrations and pose detections when AutoCalibrate is set.
// Users being detected for a pose take it on the next frame.
func (d *Driver) simulate() []sensor.Event {
	if !d.cfg.AutoCalibrate {
		return nil
	}

	var events []sensor.Event
	for _, id := range d.userIDs() {
		u := d.users[id]
		if u.pose != "" && !u.inPose {
			u.inPose = true
			events = append(events, sensor.Event{Kind: sensor.EventPoseStarted, User: id, Pose: u.pose})
		}

		switch u.phase {
		case phaseRequested:
			u.phase = phaseCalibrating
			events = append(events, sensor.Event{Kind: sensor.EventCalibrationStarted, User: id})
		case phaseCalibrating:
			u.phase = phaseIdle
			success := u.failures == 0
			if !success {
				u.failures--
			}
			events = append(events, sensor.Event{Kind: sensor.EventCalibrationEnded, User: id, Success: success})
		}
	}
	return events
}

func (d *Driver) userIDs() []sensor.UserID {
	ids := make([]sensor.UserID, 0, len(d.users))
	for id := range d.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Emit queues an event for the next frame. New and lost user events also update the
// users known to the driver.
func (d *Driver) Emit(ev sensor.Event) {
	switch ev.Kind {
	case sensor.EventNewUser:
		d.users[ev.User] = &simUser{id: ev.User, distance: defaultUserDistance}
	case sensor.EventLostUser:
		delete(d.users, ev.User)
	}
	d.queued = append(d.queued, ev)
}

// Fail makes the next WaitAndUpdateAll return err.
func (d *Driver) Fail(err error) {
	d.failure = err
}

// Frame returns the id of the last produced frame.
func (d *Driver) Frame() uint64 {
	return d.frameID
}

// Calls returns the commands received so far.
func (d *Driver) Calls() []Call {
	return append([]Call(nil), d.calls...)
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
	return metadata(d, sensor.NodeScene, d.scene)
}

func metadata[T uint8 | uint16](d *Driver, kind sensor.NodeKind, data []T) sensor.Metadata[T] {
	res := d.resolution(kind)
	if !d.enabled[kind] || res == nil {
		return sensor.Metadata[T]{}
	}

	md := sensor.Metadata[T]{
		Width:   res.Width,
		Height:  res.Height,
		FrameID: d.nodeFrame[kind],
	}
	if md.FrameID != 0 {
		md.Data = data
	}
	return md
}

func (d *Driver) FieldOfView() sensor.FieldOfView {
	return sensor.FieldOfView{Horizontal: d.cfg.HorizontalFOV, Vertical: d.cfg.VerticalFOV}
}

// Floor returns the staged floor, or the synthetic one.
func (d *Driver) Floor() (sensor.Plane, bool) {
	if !d.enabled[sensor.NodeScene] || d.nodeFrame[sensor.NodeScene] == 0 {
		return sensor.Plane{}, false
	}
	if d.floor != nil {
		return *d.floor, true
	}
	if d.cfg.Synthetic {
		return sensor.Plane{
			Point:  r3.Vector{Y: -1000, Z: float64(d.cfg.BackgroundDistance)},
			Normal: r3.Vector{Y: 1},
		}, true
	}
	return sensor.Plane{}, false
}

// SetFloor stages the floor plane reported while the scene node is enabled. Nil clears it.
func (d *Driver) SetFloor(p *sensor.Plane) {
	d.floor = p
}

func (d *Driver) SetMirror(on bool) error {
	if !d.open {
		return sensor.ErrNotOpen
	}
	d.mirror = on
	return nil
}

func (d *Driver) Mirror() bool {
	return d.mirror
}
