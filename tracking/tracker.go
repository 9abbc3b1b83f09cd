// Package tracking keeps the presence, calibration, tracking and pose state of every user in
// step with the driver's events.
//
// Every state change goes through one of the transition tables in state.go. Driver events
// that have no entry for the user's current state are logged and dropped; commands that have
// no effect in the current state are accepted without reaching the driver.
package tracking

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"essaim.dev/depthsense/sensor"
)

var (
	// ErrNoDriver is returned by commands issued while no user capable driver is attached.
	ErrNoDriver = errors.New("user tracking is not enabled")
	// ErrNotCalibrated is returned when tracking a user whose skeleton is not calibrated.
	ErrNotCalibrated = errors.New("user is not calibrated")
	// ErrNotTracking is returned for skeleton queries on users that are not tracked.
	ErrNotTracking = errors.New("user is not tracked")
	// ErrNoObserver is returned by Observe for values implementing no observer interface.
	ErrNoObserver = errors.New("value implements no observer interface")
)

// Tracker holds one User per detected person. It is driven from the frame pump and is not
// safe for concurrent use.
type Tracker struct {
	logger *zap.SugaredLogger
	driver Commander

	users map[sensor.UserID]*User

	userObservers        []UserObserver
	calibrationObservers []CalibrationObserver
	poseObservers        []PoseObserver
}

// NewTracker returns a tracker with no driver attached.
func NewTracker(logger *zap.SugaredLogger) *Tracker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Tracker{
		logger: logger,
		users:  make(map[sensor.UserID]*User),
	}
}

// SetDriver attaches the driver commands are sent to. A nil driver detaches it.
func (t *Tracker) SetDriver(d Commander) {
	t.driver = d
}

// Observe registers o for every observer interface it implements.
func (t *Tracker) Observe(o any) error {
	registered := false

	if uo, ok := o.(UserObserver); ok {
		t.userObservers = append(t.userObservers, uo)
		registered = true
	}
	if co, ok := o.(CalibrationObserver); ok {
		t.calibrationObservers = append(t.calibrationObservers, co)
		registered = true
	}
	if po, ok := o.(PoseObserver); ok {
		t.poseObservers = append(t.poseObservers, po)
		registered = true
	}

	if !registered {
		return errors.Wrapf(ErrNoObserver, "%T", o)
	}
	return nil
}

// Reset forgets every user. Observers stay registered.
func (t *Tracker) Reset() {
	clear(t.users)
}

// Users returns the ids of the detected users in increasing order.
func (t *Tracker) Users() []sensor.UserID {
	ids := make([]sensor.UserID, 0, len(t.users))
	for id := range t.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// User returns a copy of a user's record.
func (t *Tracker) User(id sensor.UserID) (User, bool) {
	u, ok := t.users[id]
	if !ok {
		return User{}, false
	}
	return u.clone(), true
}

// IsCalibrated reports whether the user's skeleton is calibrated.
func (t *Tracker) IsCalibrated(id sensor.UserID) bool {
	u, ok := t.users[id]
	return ok && u.Calibration == Calibrated
}

// IsTracking reports whether the user's skeleton is tracked.
func (t *Tracker) IsTracking(id sensor.UserID) bool {
	u, ok := t.users[id]
	return ok && u.Tracking == Tracking
}

func (t *Tracker) user(id sensor.UserID) (*User, error) {
	if t.driver == nil {
		return nil, ErrNoDriver
	}
	u, ok := t.users[id]
	if !ok {
		return nil, errors.Wrapf(sensor.ErrUnknownUser, "user %d", id)
	}
	return u, nil
}

// RequestCalibration asks the driver to calibrate the user's skeleton. Without force, a
// request for a user already requested, calibrating or calibrated does nothing. With force,
// calibration restarts from any state and tracking stops.
func (t *Tracker) RequestCalibration(id sensor.UserID, force bool) error {
	u, err := t.user(id)
	if err != nil {
		return err
	}

	trigger := calibrationRequest
	if force {
		trigger = calibrationForce
	}
	s, ok := calibrationTable[calibrationKey{u.Calibration, trigger}]
	if !ok {
		return errors.Errorf("cannot request calibration of user %d while %s", id, u.Calibration)
	}
	if !s.command {
		return nil
	}

	if err := t.driver.RequestCalibration(id, force); err != nil {
		return errors.Wrapf(err, "could not request calibration of user %d", id)
	}

	u.Calibration = s.next
	u.CalibrationAttempts++
	u.Tracking = NotTracking
	u.Joints = nil

	t.logger.Debugw("calibration requested", "user", id, "force", force, "attempt", u.CalibrationAttempts)
	return nil
}

// StartTracking starts skeleton tracking of a calibrated user.
func (t *Tracker) StartTracking(id sensor.UserID) error {
	u, err := t.user(id)
	if err != nil {
		return err
	}
	if u.Calibration != Calibrated {
		return errors.Wrapf(ErrNotCalibrated, "user %d is %s", id, u.Calibration)
	}

	return t.track(u, trackingStart)
}

// StopTracking stops skeleton tracking of a user.
func (t *Tracker) StopTracking(id sensor.UserID) error {
	u, err := t.user(id)
	if err != nil {
		return err
	}

	return t.track(u, trackingStop)
}

func (t *Tracker) track(u *User, trigger trackingTrigger) error {
	s, ok := trackingTable[trackingKey{u.Tracking, trigger}]
	if !ok {
		return errors.Errorf("cannot change tracking of user %d while %s", u.ID, u.Tracking)
	}
	if !s.command {
		return nil
	}

	cmd := t.driver.StartTracking
	if trigger == trackingStop {
		cmd = t.driver.StopTracking
	}
	if err := cmd(u.ID); err != nil {
		return errors.Wrapf(err, "could not change tracking of user %d", u.ID)
	}

	u.Tracking = s.next
	if u.Tracking == NotTracking {
		u.Joints = nil
	}

	t.logger.Debugw("tracking changed", "user", u.ID, "state", u.Tracking)
	return nil
}

// StartPoseDetection starts looking for the named pose on a user, replacing any pose
// detection already running for that user.
func (t *Tracker) StartPoseDetection(pose string, id sensor.UserID) error {
	u, err := t.user(id)
	if err != nil {
		return err
	}
	if pose == "" {
		return errors.New("pose name is empty")
	}

	s, ok := poseTable[poseKey{u.Pose, poseStart}]
	if !ok {
		return errors.Errorf("cannot start pose detection of user %d while %s", id, u.Pose)
	}
	if err := t.driver.StartPoseDetection(pose, id); err != nil {
		return errors.Wrapf(err, "could not start pose detection of user %d", id)
	}

	u.Pose = s.next
	u.PoseName = pose
	return nil
}

// StopPoseDetection stops pose detection on a user.
func (t *Tracker) StopPoseDetection(id sensor.UserID) error {
	u, err := t.user(id)
	if err != nil {
		return err
	}

	s, ok := poseTable[poseKey{u.Pose, poseStop}]
	if !ok {
		return errors.Errorf("cannot stop pose detection of user %d while %s", id, u.Pose)
	}
	if s.command {
		if err := t.driver.StopPoseDetection(id); err != nil {
			return errors.Wrapf(err, "could not stop pose detection of user %d", id)
		}
	}

	u.Pose = s.next
	u.PoseName = ""
	return nil
}

// RecordJoint stores the last known position of a tracked user's joint.
func (t *Tracker) RecordJoint(id sensor.UserID, joint sensor.Joint, pos sensor.JointPosition) {
	u, ok := t.users[id]
	if !ok || u.Tracking != Tracking {
		return
	}
	if u.Joints == nil {
		u.Joints = make(map[sensor.Joint]sensor.JointPosition)
	}
	u.Joints[joint] = pos
}

// HandleEvent applies a driver event and notifies the observers when it changed state.
// It never fails: events that do not fit the user's state are logged and dropped.
func (t *Tracker) HandleEvent(ev sensor.Event) {
	switch ev.Kind {
	case sensor.EventNewUser:
		if _, ok := t.users[ev.User]; ok {
			t.logger.Warnw("new user event for a known user, starting a fresh record", "user", ev.User)
		}
		t.users[ev.User] = &User{ID: ev.User}
		for _, o := range t.userObservers {
			t.notify(ev, func() { o.OnNewUser(ev.User) })
		}

	case sensor.EventLostUser:
		if _, ok := t.users[ev.User]; !ok {
			t.logger.Warnw("lost user event for an unknown user", "user", ev.User)
			return
		}
		delete(t.users, ev.User)
		for _, o := range t.userObservers {
			t.notify(ev, func() { o.OnLostUser(ev.User) })
		}

	case sensor.EventCalibrationStarted:
		if !t.applyCalibration(ev, calibrationStart) {
			return
		}
		for _, o := range t.calibrationObservers {
			t.notify(ev, func() { o.OnCalibrationStarted(ev.User) })
		}

	case sensor.EventCalibrationEnded:
		trigger := calibrationFailure
		if ev.Success {
			trigger = calibrationSuccess
		}
		if !t.applyCalibration(ev, trigger) {
			return
		}
		for _, o := range t.calibrationObservers {
			t.notify(ev, func() { o.OnCalibrationEnded(ev.User, ev.Success) })
		}

	case sensor.EventPoseStarted:
		if !t.applyPose(ev, poseBegan) {
			return
		}
		for _, o := range t.poseObservers {
			t.notify(ev, func() { o.OnPoseStarted(ev.Pose, ev.User) })
		}

	case sensor.EventPoseEnded:
		if !t.applyPose(ev, poseFinished) {
			return
		}
		for _, o := range t.poseObservers {
			t.notify(ev, func() { o.OnPoseEnded(ev.Pose, ev.User) })
		}

	default:
		t.logger.Warnw("unknown driver event", "event", ev.Kind, "user", ev.User)
	}
}

func (t *Tracker) applyCalibration(ev sensor.Event, trigger calibrationTrigger) bool {
	u, ok := t.users[ev.User]
	if !ok {
		t.logger.Warnw("calibration event for an unknown user", "event", ev.Kind, "user", ev.User)
		return false
	}

	s, ok := calibrationTable[calibrationKey{u.Calibration, trigger}]
	if !ok {
		t.logger.Warnw("dropping calibration event", "event", ev.Kind, "user", ev.User, "state", u.Calibration)
		return false
	}

	u.Calibration = s.next
	t.logger.Debugw("calibration changed", "user", ev.User, "state", u.Calibration)
	return true
}

func (t *Tracker) applyPose(ev sensor.Event, trigger poseTrigger) bool {
	u, ok := t.users[ev.User]
	if !ok {
		t.logger.Warnw("pose event for an unknown user", "event", ev.Kind, "user", ev.User)
		return false
	}
	if ev.Pose != u.PoseName {
		t.logger.Warnw("dropping event for a pose not being detected",
			"event", ev.Kind, "user", ev.User, "pose", ev.Pose, "detecting", u.PoseName)
		return false
	}

	s, ok := poseTable[poseKey{u.Pose, trigger}]
	if !ok {
		t.logger.Warnw("dropping pose event", "event", ev.Kind, "user", ev.User, "state", u.Pose)
		return false
	}

	u.Pose = s.next
	return true
}

func (t *Tracker) notify(ev sensor.Event, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Errorw("observer panicked", "event", ev.Kind, "user", ev.User, "panic", r)
		}
	}()
	fn()
}
