// Package sensor defines the contract between depthsense and a depth camera driver.
//
// A Driver owns the device session and its generation nodes. It is advanced one frame at
// a time with WaitAndUpdateAll, after which the metadata of every enabled node describes the
// new frame. Drivers that can detect people also implement UserDriver; their user,
// calibration and pose events are handed to the registered EventHandler from inside
// WaitAndUpdateAll, on the calling goroutine.
package sensor

import (
	"fmt"
	"io"

	"github.com/golang/geo/r3"
)

// NodeKind identifies a generation node.
type NodeKind int

const (
	NodeDepth NodeKind = iota
	NodeImage
	NodeIR
	NodeScene
	NodeUser
)

// NodeKinds lists every node kind in enable order.
var NodeKinds = []NodeKind{NodeDepth, NodeImage, NodeIR, NodeScene, NodeUser}

func (k NodeKind) String() string {
	switch k {
	case NodeDepth:
		return "depth"
	case NodeImage:
		return "image"
	case NodeIR:
		return "ir"
	case NodeScene:
		return "scene"
	case NodeUser:
		return "user"
	default:
		return fmt.Sprintf("node(%d)", int(k))
	}
}

// SkeletonProfile selects which joints the driver tracks once a user is calibrated.
type SkeletonProfile int

const (
	SkeletonNone SkeletonProfile = iota
	SkeletonAll
	SkeletonUpper
	SkeletonLower
	SkeletonHeadHands
)

// UserID is the small positive id a driver assigns to a detected person.
type UserID uint32

// Metadata describes the most recent frame of one node. Data is a view into a buffer
// owned by the driver and is overwritten by the next WaitAndUpdateAll.
type Metadata[T uint8 | uint16] struct {
	Width   int
	Height  int
	FrameID uint64
	Data    []T
}

// Pixels returns the number of pixels in the frame.
func (m Metadata[T]) Pixels() int {
	return m.Width * m.Height
}

// FieldOfView is the angular field of view of the depth sensor, in radians.
type FieldOfView struct {
	Horizontal float64
	Vertical   float64
}

// Plane is a point on a plane and its normal vector.
type Plane struct {
	Point  r3.Vector
	Normal r3.Vector
}

// Driver is the native sensor driver.
type Driver interface {
	// Open starts a device session from an opaque driver specific configuration.
	// A nil config selects the driver defaults.
	Open(config io.Reader) error
	Close() error

	EnableNode(kind NodeKind) error
	DisableNode(kind NodeKind) error

	// WaitAndUpdateAll blocks until every enabled node has a new frame.
	WaitAndUpdateAll() error

	DepthMetaData() Metadata[uint16]
	// ImageMetaData holds RGB24 samples, three bytes per pixel.
	ImageMetaData() Metadata[uint8]
	IRMetaData() Metadata[uint16]
	// SceneMetaData holds one user label per pixel, 0 for background.
	SceneMetaData() Metadata[uint16]

	FieldOfView() FieldOfView
	Floor() (Plane, bool)

	SetMirror(on bool) error
	Mirror() bool
}

// UserDriver is implemented by drivers able to detect users and estimate skeletons.
type UserDriver interface {
	SetEventHandler(h EventHandler)
	SetSkeletonProfile(p SkeletonProfile) error

	RequestCalibration(user UserID, force bool) error
	StartTracking(user UserID) error
	StopTracking(user UserID) error

	StartPoseDetection(pose string, user UserID) error
	StopPoseDetection(user UserID) error

	JointPosition(user UserID, joint Joint) (JointPosition, error)
}
