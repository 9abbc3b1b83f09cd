package sensor

import "fmt"

// EventKind identifies a driver event.
type EventKind int

const (
	EventNewUser EventKind = iota
	EventLostUser
	EventCalibrationStarted
	EventCalibrationEnded
	EventPoseStarted
	EventPoseEnded
)

func (k EventKind) String() string {
	switch k {
	case EventNewUser:
		return "new user"
	case EventLostUser:
		return "lost user"
	case EventCalibrationStarted:
		return "calibration started"
	case EventCalibrationEnded:
		return "calibration ended"
	case EventPoseStarted:
		return "pose started"
	case EventPoseEnded:
		return "pose ended"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a user, calibration or pose notification raised by the driver.
type Event struct {
	Kind EventKind
	User UserID

	// Pose is set for pose events.
	Pose string
	// Success is set for EventCalibrationEnded.
	Success bool
}

// EventHandler receives driver events. It must not return errors to the driver; failures are
// handled on the receiving side.
type EventHandler func(Event)
