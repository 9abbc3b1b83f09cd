package device

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"essaim.dev/depthsense/sensor"
	"essaim.dev/depthsense/sensor/fake"
	"essaim.dev/depthsense/tracking"
)

const autoCalibrating = `{
	"depth": {"width": 16, "height": 8},
	"scene": true,
	"user": true,
	"horizontal_fov": 1, "vertical_fov": 1,
	"synthetic": true,
	"auto_calibrate": true,
	"users": [{"id": 1, "enter_frame": 1}],
}`

// calibrator calibrates every new user and optionally tracks it once calibrated.
type calibrator struct {
	c     *Context
	track bool

	events    []string
	updateErr error
	depthErr  error
	errs      []error
}

func (o *calibrator) OnNewUser(user sensor.UserID) {
	o.events = append(o.events, "new")
	o.updateErr = o.c.Update()
	_, o.depthErr = o.c.DepthMap(make([]int, o.c.DepthMapSize()))
	o.errs = append(o.errs, o.c.RequestCalibration(user, false))
}

func (o *calibrator) OnLostUser(user sensor.UserID) {
	o.events = append(o.events, "lost")
}

func (o *calibrator) OnCalibrationStarted(user sensor.UserID) {
	o.events = append(o.events, "calibration started")
}

func (o *calibrator) OnCalibrationEnded(user sensor.UserID, success bool) {
	o.events = append(o.events, "calibration ended")
	if success && o.track {
		o.errs = append(o.errs, o.c.StartTracking(user))
	}
}

func startCalibrating(t *testing.T, track bool) (*Context, *fake.Driver, *calibrator) {
	t.Helper()

	c, drv := newContext(t, autoCalibrating)
	require.NoError(t, c.EnableUser(sensor.SkeletonAll))

	obs := &calibrator{c: c, track: track}
	require.NoError(t, c.Observe(obs))
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Update())
	}
	for _, err := range obs.errs {
		require.NoError(t, err)
	}
	return c, drv, obs
}

func TestUserLifecycle(t *testing.T) {
	c, drv, obs := startCalibrating(t, true)

	assert.Equal(t, []string{"new", "calibration started", "calibration ended"}, obs.events)
	assert.True(t, c.IsCalibrated(1))
	assert.True(t, c.IsTracking(1))

	head, err := c.JointPosition(1, sensor.JointHead)
	require.NoError(t, err)
	assert.Equal(t, 1.0, head.Confidence)
	assert.Equal(t, 1500.0, head.Position.Z)

	u, ok := c.User(1)
	require.True(t, ok)
	assert.Equal(t, head, u.Joints[sensor.JointHead])
	assert.Equal(t, 1, u.CalibrationAttempts)

	assert.Equal(t, []fake.Call{
		{Name: "RequestCalibration", User: 1},
		{Name: "StartTracking", User: 1},
	}, drv.Calls())
}

func TestObserverCannotUpdate(t *testing.T) {
	_, _, obs := startCalibrating(t, false)

	assert.True(t, errors.Is(obs.updateErr, ErrReentrantUpdate), "got %v", obs.updateErr)
	// Metadata is refreshed before the events of a frame are dispatched.
	assert.NoError(t, obs.depthErr)
}

// disabler turns the user node off as soon as a user shows up.
type disabler struct {
	c   *Context
	err error
}

func (o *disabler) OnNewUser(user sensor.UserID) {
	o.err = o.c.DisableNode(sensor.NodeUser)
}

func (o *disabler) OnLostUser(user sensor.UserID) {}

func TestObserverCannotDisableNodes(t *testing.T) {
	c, drv := newContext(t, smallDevice)
	require.NoError(t, c.EnableUser(sensor.SkeletonAll))

	obs := &disabler{c: c}
	require.NoError(t, c.Observe(obs))

	drv.Emit(sensor.Event{Kind: sensor.EventNewUser, User: 1})
	drv.Emit(sensor.Event{Kind: sensor.EventNewUser, User: 2})
	require.NoError(t, c.Update())

	assert.True(t, errors.Is(obs.err, ErrReentrantUpdate), "got %v", obs.err)
	assert.True(t, c.Enabled(sensor.NodeUser))
	assert.Equal(t, []sensor.UserID{1, 2}, c.Users())

	require.NoError(t, c.DisableNode(sensor.NodeUser))
	assert.Empty(t, c.Users())
}

func TestCalibratedButNotTrackedHasNoJoints(t *testing.T) {
	c, _, _ := startCalibrating(t, false)
	require.True(t, c.IsCalibrated(1))
	require.False(t, c.IsTracking(1))

	for _, j := range sensor.Joints() {
		_, err := c.JointPosition(1, j)
		assert.True(t, errors.Is(err, tracking.ErrNotTracking), "%s: got %v", j, err)
	}
}

func TestJointPositionErrors(t *testing.T) {
	c, _ := newContext(t, smallDevice)

	_, err := c.JointPosition(1, sensor.Joint(0))
	assert.True(t, errors.Is(err, sensor.ErrUnknownJoint), "got %v", err)
	_, err = c.JointPosition(1, sensor.Joint(25))
	assert.True(t, errors.Is(err, sensor.ErrUnknownJoint), "got %v", err)

	_, err = c.JointPosition(1, sensor.JointHead)
	assert.True(t, errors.Is(err, sensor.ErrNodeNotEnabled), "got %v", err)

	require.NoError(t, c.EnableUser(sensor.SkeletonAll))
	_, err = c.JointPosition(7, sensor.JointHead)
	assert.True(t, errors.Is(err, tracking.ErrNotTracking), "got %v", err)
}

func TestRepeatedCalibrationRequest(t *testing.T) {
	c, drv := newContext(t, smallDevice)
	require.NoError(t, c.EnableUser(sensor.SkeletonAll))
	drv.Emit(sensor.Event{Kind: sensor.EventNewUser, User: 2})
	require.NoError(t, c.Update())

	require.NoError(t, c.RequestCalibration(2, false))
	require.NoError(t, c.RequestCalibration(2, false))
	assert.Len(t, drv.Calls(), 1)

	require.NoError(t, c.RequestCalibration(2, true))
	assert.Equal(t, []fake.Call{
		{Name: "RequestCalibration", User: 2},
		{Name: "RequestCalibration", User: 2, Force: true},
	}, drv.Calls())

	u, _ := c.User(2)
	assert.Equal(t, tracking.Requested, u.Calibration)
	assert.Equal(t, 2, u.CalibrationAttempts)
}

func TestLostUserStartsFresh(t *testing.T) {
	c, drv := newContext(t, smallDevice)
	require.NoError(t, c.EnableUser(sensor.SkeletonAll))
	drv.Emit(sensor.Event{Kind: sensor.EventNewUser, User: 3})
	require.NoError(t, c.Update())

	require.NoError(t, c.RequestCalibration(3, false))
	require.NoError(t, c.StartPoseDetection("Psi", 3))
	drv.Emit(sensor.Event{Kind: sensor.EventCalibrationStarted, User: 3})
	drv.Emit(sensor.Event{Kind: sensor.EventPoseStarted, User: 3, Pose: "Psi"})
	require.NoError(t, c.Update())

	u, _ := c.User(3)
	require.Equal(t, tracking.Calibrating, u.Calibration)
	require.Equal(t, tracking.PoseInProgress, u.Pose)

	drv.Emit(sensor.Event{Kind: sensor.EventLostUser, User: 3})
	drv.Emit(sensor.Event{Kind: sensor.EventNewUser, User: 3})
	require.NoError(t, c.Update())

	u, ok := c.User(3)
	require.True(t, ok)
	if diff := cmp.Diff(tracking.User{ID: 3}, u); diff != "" {
		t.Errorf("user after rejoining (-want +got):\n%s", diff)
	}
}
