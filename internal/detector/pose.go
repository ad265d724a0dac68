// Package detector provides pose detection interfaces and types for the poseball demo.
package detector

// Pose landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// Connection is a pair of landmark indices joined by a skeleton line.
type Connection struct {
	From int
	To   int
}

// PoseConnections is the MediaPipe pose skeleton.
var PoseConnections = []Connection{
	{0, 1}, {1, 2}, {2, 3}, {3, 7}, {0, 4}, {4, 5}, {5, 6}, {6, 8},
	{9, 10}, {11, 12}, {11, 13}, {13, 15}, {15, 17}, {15, 19}, {15, 21},
	{17, 19}, {12, 14}, {14, 16}, {16, 18}, {16, 20}, {16, 22}, {18, 20},
	{11, 23}, {12, 24}, {23, 24}, {23, 25}, {24, 26}, {25, 27}, {26, 28},
	{27, 29}, {28, 30}, {29, 31}, {30, 32}, {27, 31}, {28, 32},
}

// Landmark is a detected body point. X and Y are normalized to the frame size,
// Z is depth relative to the hips (smaller is closer to the camera).
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility,omitempty"`
}

// Pose is the ordered landmark set of one detected person.
type Pose struct {
	Landmarks []Landmark `json:"landmarks"`
}

// Landmark returns the landmark at index i and whether the pose has it.
func (p *Pose) Landmark(i int) (Landmark, bool) {
	if p == nil || i < 0 || i >= len(p.Landmarks) {
		return Landmark{}, false
	}
	return p.Landmarks[i], true
}

// Result is the model output for one frame.
type Result struct {
	Poses       []Pose `json:"poses"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// First returns the first detected pose, or nil when nobody was found.
func (r *Result) First() *Pose {
	if r == nil || len(r.Poses) == 0 {
		return nil
	}
	return &r.Poses[0]
}
