package capture

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrEndOfFrames is returned by a non-looping MockCamera once its sequence is used up.
var ErrEndOfFrames = errors.New("end of recorded frames")

// MockCamera replays a fixed frame sequence in place of a webcam. It counts
// Open and Close calls so callers can assert on camera ownership.
type MockCamera struct {
	mu sync.Mutex

	frames []*gocv.Mat
	next   int
	loop   bool

	open    bool
	openErr error
	opens   int
	closes  int
}

// NewMockCamera returns a closed MockCamera over frames. With loop set,
// playback wraps around instead of failing with ErrEndOfFrames.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{frames: frames, loop: loop}
}

// SetOpenError makes subsequent Open calls fail with err.
func (m *MockCamera) SetOpenError(err error) {
	m.mu.Lock()
	m.openErr = err
	m.mu.Unlock()
}

// Open rewinds playback and marks the camera open.
func (m *MockCamera) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openErr != nil {
		return m.openErr
	}
	m.open = true
	m.next = 0
	m.opens++
	return nil
}

// Close is a no-op on a closed camera.
func (m *MockCamera) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		m.open = false
		m.closes++
	}
	return nil
}

// ReadFrame returns a copy of the next recorded frame.
func (m *MockCamera) ReadFrame() (*gocv.Mat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !m.open:
		return nil, ErrCameraNotOpen
	case len(m.frames) == 0:
		return nil, ErrNoFrame
	case m.next >= len(m.frames) && !m.loop:
		return nil, ErrEndOfFrames
	}

	frame := m.frames[m.next%len(m.frames)].Clone()
	m.next = m.next%len(m.frames) + 1
	return &frame, nil
}

func (m *MockCamera) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Opens returns how many times the camera was successfully opened.
func (m *MockCamera) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Closes returns how many times an open camera was closed.
func (m *MockCamera) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}
