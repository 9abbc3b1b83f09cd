package sensor

import "github.com/pkg/errors"

var (
	// ErrNoDevice is returned by Open when no device could be found or opened.
	ErrNoDevice = errors.New("no device available")
	// ErrNotOpen is returned by driver calls made outside of a device session.
	ErrNotOpen = errors.New("device is not open")
	// ErrUnsupported is returned when the driver lacks a capability.
	ErrUnsupported = errors.New("capability not supported by driver")
	// ErrNodeNotEnabled is returned when a node's data is requested before it is enabled.
	ErrNodeNotEnabled = errors.New("node is not enabled")
	// ErrUnknownJoint is returned for joint ids outside the known range.
	ErrUnknownJoint = errors.New("unknown joint")
	// ErrUnknownUser is returned for user ids the driver is not tracking.
	ErrUnknownUser = errors.New("unknown user")
)
