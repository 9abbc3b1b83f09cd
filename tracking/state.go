package tracking

import (
	"fmt"

	"essaim.dev/depthsense/sensor"
)

// CalibrationState is the skeleton calibration axis of a user.
type CalibrationState int

const (
	NotRequested CalibrationState = iota
	Requested
	Calibrating
	Calibrated
	Failed
)

func (s CalibrationState) String() string {
	switch s {
	case NotRequested:
		return "not requested"
	case Requested:
		return "requested"
	case Calibrating:
		return "calibrating"
	case Calibrated:
		return "calibrated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("calibration(%d)", int(s))
	}
}

// TrackingState is the skeleton tracking axis of a user.
type TrackingState int

const (
	NotTracking TrackingState = iota
	Tracking
)

func (s TrackingState) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "not tracking"
}

// PoseState is the pose detection axis of a user.
type PoseState int

const (
	PoseIdle PoseState = iota
	PoseDetecting
	PoseInProgress
)

func (s PoseState) String() string {
	switch s {
	case PoseIdle:
		return "idle"
	case PoseDetecting:
		return "detecting"
	case PoseInProgress:
		return "in pose"
	default:
		return fmt.Sprintf("pose(%d)", int(s))
	}
}

// User is the tracking record of a detected person.
type User struct {
	ID sensor.UserID

	Calibration CalibrationState
	Tracking    TrackingState

	Pose     PoseState
	PoseName string

	// CalibrationAttempts counts the calibration requests sent to the driver.
	CalibrationAttempts int

	// Joints holds the last joint positions read while tracking.
	Joints map[sensor.Joint]sensor.JointPosition
}

func (u *User) clone() User {
	c := *u
	if u.Joints != nil {
		c.Joints = make(map[sensor.Joint]sensor.JointPosition, len(u.Joints))
		for j, p := range u.Joints {
			c.Joints[j] = p
		}
	}
	return c
}

type calibrationTrigger int

const (
	calibrationRequest calibrationTrigger = iota
	calibrationForce
	calibrationStart
	calibrationSuccess
	calibrationFailure
)

type calibrationKey struct {
	from    CalibrationState
	trigger calibrationTrigger
}

// step is a table entry: the next state, and whether the driver has to be commanded.
type step[S any] struct {
	next    S
	command bool
}

var calibrationTable = map[calibrationKey]step[CalibrationState]{
	{NotRequested, calibrationRequest}: {Requested, true},
	{Failed, calibrationRequest}:       {Requested, true},
	{Requested, calibrationRequest}:    {Requested, false},
	{Calibrating, calibrationRequest}:  {Calibrating, false},
	{Calibrated, calibrationRequest}:   {Calibrated, false},

	{NotRequested, calibrationForce}: {Requested, true},
	{Requested, calibrationForce}:    {Requested, true},
	{Calibrating, calibrationForce}:  {Requested, true},
	{Calibrated, calibrationForce}:   {Requested, true},
	{Failed, calibrationForce}:       {Requested, true},

	// Drivers may start calibrating on their own, for instance after a calibration pose.
	{NotRequested, calibrationStart}: {Calibrating, false},
	{Requested, calibrationStart}:    {Calibrating, false},
	{Failed, calibrationStart}:       {Calibrating, false},

	{Calibrating, calibrationSuccess}: {Calibrated, false},
	{Calibrating, calibrationFailure}: {Failed, false},
}

type trackingTrigger int

const (
	trackingStart trackingTrigger = iota
	trackingStop
)

type trackingKey struct {
	from    TrackingState
	trigger trackingTrigger
}

var trackingTable = map[trackingKey]step[TrackingState]{
	{NotTracking, trackingStart}: {Tracking, true},
	{Tracking, trackingStart}:    {Tracking, false},
	{Tracking, trackingStop}:     {NotTracking, true},
	{NotTracking, trackingStop}:  {NotTracking, false},
}

type poseTrigger int

const (
	poseStart poseTrigger = iota
	poseStop
	poseBegan
	poseFinished
)

type poseKey struct {
	from    PoseState
	trigger poseTrigger
}

var poseTable = map[poseKey]step[PoseState]{
	{PoseIdle, poseStart}:       {PoseDetecting, true},
	{PoseDetecting, poseStart}:  {PoseDetecting, true},
	{PoseInProgress, poseStart}: {PoseDetecting, true},

	{PoseIdle, poseStop}:       {PoseIdle, false},
	{PoseDetecting, poseStop}:  {PoseIdle, true},
	{PoseInProgress, poseStop}: {PoseIdle, true},

	{PoseDetecting, poseBegan}:     {PoseInProgress, false},
	{PoseInProgress, poseFinished}: {PoseDetecting, false},
}
