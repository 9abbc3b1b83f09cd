package tracking

import "essaim.dev/depthsense/sensor"

// UserObserver is notified when users appear and disappear.
type UserObserver interface {
	OnNewUser(user sensor.UserID)
	OnLostUser(user sensor.UserID)
}

// CalibrationObserver is notified of skeleton calibration progress.
type CalibrationObserver interface {
	OnCalibrationStarted(user sensor.UserID)
	OnCalibrationEnded(user sensor.UserID, success bool)
}

// PoseObserver is notified when a user enters or leaves the pose being detected.
type PoseObserver interface {
	OnPoseStarted(pose string, user sensor.UserID)
	OnPoseEnded(pose string, user sensor.UserID)
}

// Commander sends tracking commands to the driver.
type Commander interface {
	RequestCalibration(user sensor.UserID, force bool) error
	StartTracking(user sensor.UserID) error
	StopTracking(user sensor.UserID) error
	StartPoseDetection(pose string, user sensor.UserID) error
	StopPoseDetection(user sensor.UserID) error
}
