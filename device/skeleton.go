package device

import (
	"github.com/pkg/errors"

	"essaim.dev/depthsense/sensor"
	"essaim.dev/depthsense/tracking"
)

func (c *Context) userNode() error {
	if !c.init {
		return ErrNotInitialized
	}
	if !c.enabled[sensor.NodeUser] {
		return errors.Wrap(sensor.ErrNodeNotEnabled, "user node")
	}
	return nil
}

// Observe registers o for every tracking observer interface it implements. Observers are
// called from inside Update, after the event they report has been applied.
func (c *Context) Observe(o any) error {
	return c.tracker.Observe(o)
}

// Users returns the ids of the users detected so far, in increasing order.
func (c *Context) Users() []sensor.UserID {
	return c.tracker.Users()
}

// User returns a snapshot of a user's tracking record.
func (c *Context) User(id sensor.UserID) (tracking.User, bool) {
	return c.tracker.User(id)
}

func (c *Context) IsCalibrated(id sensor.UserID) bool {
	return c.tracker.IsCalibrated(id)
}

func (c *Context) IsTracking(id sensor.UserID) bool {
	return c.tracker.IsTracking(id)
}

// RequestCalibration asks for the user's skeleton to be calibrated. force restarts a
// calibration in progress or already done.
func (c *Context) RequestCalibration(id sensor.UserID, force bool) error {
	if err := c.userNode(); err != nil {
		return err
	}
	return c.tracker.RequestCalibration(id, force)
}

// StartTracking starts tracking a calibrated user's skeleton.
func (c *Context) StartTracking(id sensor.UserID) error {
	if err := c.userNode(); err != nil {
		return err
	}
	return c.tracker.StartTracking(id)
}

func (c *Context) StopTracking(id sensor.UserID) error {
	if err := c.userNode(); err != nil {
		return err
	}
	return c.tracker.StopTracking(id)
}

// StartPoseDetection starts looking for pose on the user.
func (c *Context) StartPoseDetection(pose string, id sensor.UserID) error {
	if err := c.userNode(); err != nil {
		return err
	}
	return c.tracker.StartPoseDetection(pose, id)
}

func (c *Context) StopPoseDetection(id sensor.UserID) error {
	if err := c.userNode(); err != nil {
		return err
	}
	return c.tracker.StopPoseDetection(id)
}

// JointPosition returns the real world position of a tracked user's joint and the driver's
// confidence in it.
func (c *Context) JointPosition(id sensor.UserID, joint sensor.Joint) (sensor.JointPosition, error) {
	if !joint.Valid() {
		return sensor.JointPosition{}, errors.Wrapf(sensor.ErrUnknownJoint, "joint %d", int(joint))
	}
	if err := c.userNode(); err != nil {
		return sensor.JointPosition{}, err
	}
	if !c.tracker.IsTracking(id) {
		return sensor.JointPosition{}, errors.Wrapf(tracking.ErrNotTracking, "user %d", id)
	}

	pos, err := c.users.JointPosition(id, joint)
	if err != nil {
		return sensor.JointPosition{}, errors.Wrapf(err, "could not read %s of user %d", joint, id)
	}
	c.tracker.RecordJoint(id, joint, pos)
	return pos, nil
}
