package fake

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"essaim.dev/depthsense/sensor"
)

// Joint offsets from the user's torso, in millimeters, y up.
var skeleton = map[sensor.Joint]r3.Vector{
	sensor.JointHead:           {X: 0, Y: 450, Z: 0},
	sensor.JointNeck:           {X: 0, Y: 300, Z: 0},
	sensor.JointTorso:          {X: 0, Y: 0, Z: 0},
	sensor.JointWaist:          {X: 0, Y: -150, Z: 0},
	sensor.JointLeftCollar:     {X: -80, Y: 280, Z: 0},
	sensor.JointLeftShoulder:   {X: -180, Y: 270, Z: 0},
	sensor.JointLeftElbow:      {X: -300, Y: 50, Z: 0},
	sensor.JointLeftWrist:      {X: -320, Y: -150, Z: 0},
	sensor.JointLeftHand:       {X: -330, Y: -220, Z: 0},
	sensor.JointLeftFingertip:  {X: -335, Y: -300, Z: 0},
	sensor.JointRightCollar:    {X: 80, Y: 280, Z: 0},
	sensor.JointRightShoulder:  {X: 180, Y: 270, Z: 0},
	sensor.JointRightElbow:     {X: 300, Y: 50, Z: 0},
	sensor.JointRightWrist:     {X: 320, Y: -150, Z: 0},
	sensor.JointRightHand:      {X: 330, Y: -220, Z: 0},
	sensor.JointRightFingertip: {X: 335, Y: -300, Z: 0},
	sensor.JointLeftHip:        {X: -100, Y: -250, Z: 0},
	sensor.JointLeftKnee:       {X: -110, Y: -650, Z: 20},
	sensor.JointLeftAnkle:      {X: -110, Y: -1000, Z: 0},
	sensor.JointLeftFoot:       {X: -110, Y: -1050, Z: -80},
	sensor.JointRightHip:       {X: 100, Y: -250, Z: 0},
	sensor.JointRightKnee:      {X: 110, Y: -650, Z: 20},
	sensor.JointRightAnkle:     {X: 110, Y: -1000, Z: 0},
	sensor.JointRightFoot:      {X: 110, Y: -1050, Z: -80},
}

// profileTracks reports whether a skeleton profile includes a joint.
func profileTracks(p sensor.SkeletonProfile, j sensor.Joint) bool {
	switch p {
	case sensor.SkeletonAll:
		return true
	case sensor.SkeletonUpper:
		return j < sensor.JointLeftHip
	case sensor.SkeletonLower:
		return j == sensor.JointTorso || j == sensor.JointWaist || j >= sensor.JointLeftHip
	case sensor.SkeletonHeadHands:
		return j == sensor.JointHead || j == sensor.JointLeftHand || j == sensor.JointRightHand
	default:
		return false
	}
}

func (d *Driver) SetEventHandler(h sensor.EventHandler) {
	d.handler = h
}

func (d *Driver) SetSkeletonProfile(p sensor.SkeletonProfile) error {
	if p < sensor.SkeletonNone || p > sensor.SkeletonHeadHands {
		return errors.Errorf("unknown skeleton profile %d", p)
	}
	d.profile = p
	return nil
}

func (d *Driver) simUser(id sensor.UserID) (*simUser, error) {
	if !d.open {
		return nil, sensor.ErrNotOpen
	}
	u, ok := d.users[id]
	if !ok {
		return nil, errors.Wrapf(sensor.ErrUnknownUser, "user %d", id)
	}
	return u, nil
}

func (d *Driver) RequestCalibration(id sensor.UserID, force bool) error {
	u, err := d.simUser(id)
	if err != nil {
		return err
	}
	d.calls = append(d.calls, Call{Name: "RequestCalibration", User: id, Force: force})

	u.tracking = false
	if d.cfg.AutoCalibrate {
		u.phase = phaseRequested
	}
	return nil
}

func (d *Driver) StartTracking(id sensor.UserID) error {
	u, err := d.simUser(id)
	if err != nil {
		return err
	}
	d.calls = append(d.calls, Call{Name: "StartTracking", User: id})
	u.tracking = true
	return nil
}

func (d *Driver) StopTracking(id sensor.UserID) error {
	u, err := d.simUser(id)
	if err != nil {
		return err
	}
	d.calls = append(d.calls, Call{Name: "StopTracking", User: id})
	u.tracking = false
	return nil
}

func (d *Driver) StartPoseDetection(pose string, id sensor.UserID) error {
	u, err := d.simUser(id)
	if err != nil {
		return err
	}
	d.calls = append(d.calls, Call{Name: "StartPoseDetection", User: id, Pose: pose})
	u.pose = pose
	u.inPose = false
	return nil
}

func (d *Driver) StopPoseDetection(id sensor.UserID) error {
	u, err := d.simUser(id)
	if err != nil {
		return err
	}
	d.calls = append(d.calls, Call{Name: "StopPoseDetection", User: id})
	u.pose = ""
	u.inPose = false
	return nil
}

// SetJoint overrides the position reported for a user's joint.
func (d *Driver) SetJoint(id sensor.UserID, joint sensor.Joint, pos sensor.JointPosition) error {
	u, err := d.simUser(id)
	if err != nil {
		return err
	}
	if u.joints == nil {
		u.joints = make(map[sensor.Joint]sensor.JointPosition)
	}
	u.joints[joint] = pos
	return nil
}

// JointPosition reports a joint of a tracked user. Joints outside the skeleton profile are
// reported with zero confidence.
func (d *Driver) JointPosition(id sensor.UserID, joint sensor.Joint) (sensor.JointPosition, error) {
	if !joint.Valid() {
		return sensor.JointPosition{}, errors.Wrapf(sensor.ErrUnknownJoint, "joint %d", int(joint))
	}
	u, err := d.simUser(id)
	if err != nil {
		return sensor.JointPosition{}, err
	}
	if !u.tracking {
		return sensor.JointPosition{}, errors.Errorf("user %d is not tracked", id)
	}

	if pos, ok := u.joints[joint]; ok {
		return pos, nil
	}
	if !profileTracks(d.profile, joint) {
		return sensor.JointPosition{}, nil
	}

	slot := float64(int(u.id-1) % 4)
	torso := r3.Vector{X: (slot - 1.5) * 600, Y: 0, Z: float64(u.distance)}
	return sensor.JointPosition{
		Position:   torso.Add(skeleton[joint]),
		Confidence: 1,
	}, nil
}
