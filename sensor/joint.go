package sensor

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Joint identifies a skeleton joint. Values follow the OpenNI numbering.
type Joint int

const (
	JointHead Joint = iota + 1
	JointNeck
	JointTorso
	JointWaist
	JointLeftCollar
	JointLeftShoulder
	JointLeftElbow
	JointLeftWrist
	JointLeftHand
	JointLeftFingertip
	JointRightCollar
	JointRightShoulder
	JointRightElbow
	JointRightWrist
	JointRightHand
	JointRightFingertip
	JointLeftHip
	JointLeftKnee
	JointLeftAnkle
	JointLeftFoot
	JointRightHip
	JointRightKnee
	JointRightAnkle
	JointRightFoot
)

var jointNames = [...]string{
	JointHead:           "head",
	JointNeck:           "neck",
	JointTorso:          "torso",
	JointWaist:          "waist",
	JointLeftCollar:     "left collar",
	JointLeftShoulder:   "left shoulder",
	JointLeftElbow:      "left elbow",
	JointLeftWrist:      "left wrist",
	JointLeftHand:       "left hand",
	JointLeftFingertip:  "left fingertip",
	JointRightCollar:    "right collar",
	JointRightShoulder:  "right shoulder",
	JointRightElbow:     "right elbow",
	JointRightWrist:     "right wrist",
	JointRightHand:      "right hand",
	JointRightFingertip: "right fingertip",
	JointLeftHip:        "left hip",
	JointLeftKnee:       "left knee",
	JointLeftAnkle:      "left ankle",
	JointLeftFoot:       "left foot",
	JointRightHip:       "right hip",
	JointRightKnee:      "right knee",
	JointRightAnkle:     "right ankle",
	JointRightFoot:      "right foot",
}

// Joints lists every known joint.
func Joints() []Joint {
	joints := make([]Joint, 0, JointRightFoot)
	for j := JointHead; j <= JointRightFoot; j++ {
		joints = append(joints, j)
	}
	return joints
}

// Valid reports whether j is a known joint.
func (j Joint) Valid() bool {
	return j >= JointHead && j <= JointRightFoot
}

func (j Joint) String() string {
	if !j.Valid() {
		return fmt.Sprintf("joint(%d)", int(j))
	}
	return jointNames[j]
}

// JointPosition is a joint location in real world millimeters and the driver's confidence
// in it, between 0 and 1.
type JointPosition struct {
	Position   r3.Vector
	Confidence float64
}
