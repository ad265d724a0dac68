package detector

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"
)

// RunningMode is the processing mode of the pose model.
type RunningMode int

const (
	// ModeImage treats every frame as an unrelated still image.
	ModeImage RunningMode = iota
	// ModeVideo lets the model track poses across consecutive frames.
	ModeVideo
)

// String returns the MediaPipe name of the mode.
func (m RunningMode) String() string {
	switch m {
	case ModeImage:
		return "IMAGE"
	case ModeVideo:
		return "VIDEO"
	default:
		return fmt.Sprintf("RunningMode(%d)", int(m))
	}
}

// Delegate selects the inference backend.
type Delegate string

const (
	DelegateGPU Delegate = "GPU"
	DelegateCPU Delegate = "CPU"
)

// Detector defines the interface for pose detection implementations.
type Detector interface {
	// SetRunningMode switches the model between image and video processing.
	SetRunningMode(ctx context.Context, mode RunningMode) error

	// Detect analyzes a video frame captured at timestampMs and returns the
	// detected poses. Returns an empty result if nobody is detected.
	Detect(ctx context.Context, frame *gocv.Mat, timestampMs int64) (Result, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for pose detection.
type Config struct {
	// ModelPath is the .task model bundle handed to the pose service.
	ModelPath string

	// Delegate is the preferred inference backend (default: GPU).
	Delegate Delegate

	// RunningMode is the initial processing mode (default: IMAGE).
	RunningMode RunningMode

	// MaxPoses is the maximum number of poses to detect (default: 1).
	MaxPoses int

	// MinConfidence is the minimum pose detection confidence (0.0-1.0).
	MinConfidence float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelPath:     "models/pose_landmarker_lite.task",
		Delegate:      DelegateGPU,
		RunningMode:   ModeImage,
		MaxPoses:      1,
		MinConfidence: 0.5,
	}
}
