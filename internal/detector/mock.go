package detector

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu         sync.Mutex
	poses      []Pose
	err        error
	modeErr    error
	mode       RunningMode
	modeCalls  int
	detections []int64
	block      chan struct{}
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetPoses sets the poses that will be returned by Detect.
func (m *MockDetector) SetPoses(poses []Pose) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poses = poses
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetModeError sets the error that will be returned by SetRunningMode.
func (m *MockDetector) SetModeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modeErr = err
}

// Block makes Detect wait until the returned function is called or the
// context is cancelled.
func (m *MockDetector) Block() (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.block = ch
	m.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// SetRunningMode records the requested mode.
func (m *MockDetector) SetRunningMode(ctx context.Context, mode RunningMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modeCalls++
	if m.modeErr != nil {
		return m.modeErr
	}
	m.mode = mode
	return nil
}

// Detect returns the pre-configured poses or error.
func (m *MockDetector) Detect(ctx context.Context, frame *gocv.Mat, timestampMs int64) (Result, error) {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = append(m.detections, timestampMs)
	if m.err != nil {
		return Result{}, m.err
	}
	return Result{Poses: m.poses, TimestampMs: timestampMs}, nil
}

// Mode returns the last mode successfully set.
func (m *MockDetector) Mode() RunningMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// ModeCalls returns how many times SetRunningMode was called.
func (m *MockDetector) ModeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modeCalls
}

// Detections returns the timestamps of every Detect call that completed.
func (m *MockDetector) Detections() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.detections))
	copy(out, m.detections)
	return out
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// StandingPose returns a preset Pose of a person standing centered in the
// frame with both arms raised to shoulder height.
func StandingPose() Pose {
	lm := make([]Landmark, NumLandmarks)

	lm[Nose] = Landmark{X: 0.50, Y: 0.20, Z: -0.30, Visibility: 0.99}
	lm[LeftEyeInner] = Landmark{X: 0.51, Y: 0.18, Z: -0.28, Visibility: 0.99}
	lm[LeftEye] = Landmark{X: 0.52, Y: 0.18, Z: -0.28, Visibility: 0.99}
	lm[LeftEyeOuter] = Landmark{X: 0.53, Y: 0.18, Z: -0.28, Visibility: 0.99}
	lm[RightEyeInner] = Landmark{X: 0.49, Y: 0.18, Z: -0.28, Visibility: 0.99}
	lm[RightEye] = Landmark{X: 0.48, Y: 0.18, Z: -0.28, Visibility: 0.99}
	lm[RightEyeOuter] = Landmark{X: 0.47, Y: 0.18, Z: -0.28, Visibility: 0.99}
	lm[LeftEar] = Landmark{X: 0.55, Y: 0.19, Z: -0.15, Visibility: 0.95}
	lm[RightEar] = Landmark{X: 0.45, Y: 0.19, Z: -0.15, Visibility: 0.95}
	lm[MouthLeft] = Landmark{X: 0.52, Y: 0.23, Z: -0.27, Visibility: 0.99}
	lm[MouthRight] = Landmark{X: 0.48, Y: 0.23, Z: -0.27, Visibility: 0.99}

	// Arms out to the sides at shoulder height
	lm[LeftShoulder] = Landmark{X: 0.60, Y: 0.32, Z: -0.10, Visibility: 0.99}
	lm[RightShoulder] = Landmark{X: 0.40, Y: 0.32, Z: -0.10, Visibility: 0.99}
	lm[LeftElbow] = Landmark{X: 0.72, Y: 0.32, Z: -0.12, Visibility: 0.95}
	lm[RightElbow] = Landmark{X: 0.28, Y: 0.32, Z: -0.12, Visibility: 0.95}
	lm[LeftWrist] = Landmark{X: 0.84, Y: 0.32, Z: -0.15, Visibility: 0.90}
	lm[RightWrist] = Landmark{X: 0.16, Y: 0.32, Z: -0.15, Visibility: 0.90}
	lm[LeftPinky] = Landmark{X: 0.87, Y: 0.33, Z: -0.16, Visibility: 0.85}
	lm[RightPinky] = Landmark{X: 0.13, Y: 0.33, Z: -0.16, Visibility: 0.85}
	lm[LeftIndex] = Landmark{X: 0.88, Y: 0.31, Z: -0.16, Visibility: 0.85}
	lm[RightIndex] = Landmark{X: 0.12, Y: 0.31, Z: -0.16, Visibility: 0.85}
	lm[LeftThumb] = Landmark{X: 0.86, Y: 0.30, Z: -0.15, Visibility: 0.85}
	lm[RightThumb] = Landmark{X: 0.14, Y: 0.30, Z: -0.15, Visibility: 0.85}

	lm[LeftHip] = Landmark{X: 0.56, Y: 0.60, Z: 0.00, Visibility: 0.99}
	lm[RightHip] = Landmark{X: 0.44, Y: 0.60, Z: 0.00, Visibility: 0.99}
	lm[LeftKnee] = Landmark{X: 0.57, Y: 0.76, Z: 0.02, Visibility: 0.90}
	lm[RightKnee] = Landmark{X: 0.43, Y: 0.76, Z: 0.02, Visibility: 0.90}
	lm[LeftAnkle] = Landmark{X: 0.57, Y: 0.92, Z: 0.05, Visibility: 0.80}
	lm[RightAnkle] = Landmark{X: 0.43, Y: 0.92, Z: 0.05, Visibility: 0.80}
	lm[LeftHeel] = Landmark{X: 0.57, Y: 0.94, Z: 0.06, Visibility: 0.75}
	lm[RightHeel] = Landmark{X: 0.43, Y: 0.94, Z: 0.06, Visibility: 0.75}
	lm[LeftFootIndex] = Landmark{X: 0.59, Y: 0.96, Z: 0.02, Visibility: 0.75}
	lm[RightFootIndex] = Landmark{X: 0.41, Y: 0.96, Z: 0.02, Visibility: 0.75}

	return Pose{Landmarks: lm}
}
