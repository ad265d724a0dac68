// Package app provides the frame loop that drives the poseball demo: it pulls
// camera frames, runs pose detection, moves the ball and draws the overlay.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/poseball/internal/capture"
	"github.com/ayusman/poseball/internal/detector"
	"github.com/ayusman/poseball/internal/physics"
	"github.com/ayusman/poseball/internal/render"
	"github.com/ayusman/poseball/internal/store"
)

// Frame loop timing constants.
const (
	// FrameInterval is the minimum time between processed frames (~30 FPS).
	FrameInterval = 33 * time.Millisecond
	// RefreshInterval is how often the loop is scheduled, matching a 60 Hz display.
	RefreshInterval = time.Second / 60
)

var (
	// ErrModelNotReady is returned when the webcam is toggled before the pose model has loaded.
	ErrModelNotReady = errors.New("pose model not loaded yet")
	// ErrCameraAcquisition is returned when the video stream cannot be opened.
	ErrCameraAcquisition = errors.New("error accessing webcam")
)

// WebcamState is the state of the frame loop.
type WebcamState int

const (
	Stopped WebcamState = iota
	Running
)

// String returns the state name.
func (s WebcamState) String() string {
	if s == Running {
		return "RUNNING"
	}
	return "STOPPED"
}

// ButtonLabel returns the label of the toggle control in this state.
func (s WebcamState) ButtonLabel() string {
	if s == Running {
		return "DISABLE WEBCAM"
	}
	return "ENABLE WEBCAM"
}

// Config holds configuration options for the application.
type Config struct {
	Store           *store.Store
	CameraID        int
	Width           int
	Height          int
	GloveImage      string
	FrameInterval   time.Duration
	RefreshInterval time.Duration
	// Seed seeds ball velocity and hit colors. Zero picks a time-based seed.
	Seed int64
}

// Session is the state owned by the frame loop. Only the loop goroutine
// (or Tick, when driven directly) mutates it.
type Session struct {
	Ball      *physics.Ball
	Mode      detector.RunningMode
	LastFrame time.Duration
	RunID     string
	Frames    int
	Hits      int
	MaxSpeed  float64
	// Landmarks holds the first pose of the last processed frame in pixels.
	Landmarks []physics.Vec2
}

// App is the frame loop controller.
type App struct {
	config   Config
	camera   capture.Camera
	detector detector.Detector
	canvas   render.Canvas
	glove    *render.Asset
	rng      *rand.Rand
	epoch    time.Time
	session  *Session

	// opMu serializes Toggle/Enable/Disable; mu guards the fields below and
	// the dependencies above.
	opMu   sync.Mutex
	mu     sync.RWMutex
	state  WebcamState
	cancel context.CancelFunc
	done   chan struct{}

	snapMu    sync.RWMutex
	snapshot  Snapshot
	listeners []func(Snapshot)
}

// New creates a new App with the given configuration. The pose model is not
// loaded; call LoadModel or SetDetector before enabling the webcam.
func New(config Config) *App {
	if config.FrameInterval <= 0 {
		config.FrameInterval = FrameInterval
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = RefreshInterval
	}
	if config.Width <= 0 {
		config.Width = capture.DefaultWidth
	}
	if config.Height <= 0 {
		config.Height = capture.DefaultHeight
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(seed))

	a := &App{
		config:  config,
		camera:  capture.NewCameraWithSize(config.CameraID, config.Width, config.Height),
		canvas:  render.NewMatSurface(image.Pt(config.Width, config.Height)),
		rng:     rng,
		epoch:   time.Now(),
		session: &Session{Ball: physics.NewDefaultBall(rng), Mode: detector.ModeImage},
		state:   Stopped,
	}

	if config.GloveImage != "" {
		a.glove = render.LoadAssetAsync(config.GloveImage)
	} else {
		a.glove = render.NewAsset()
	}

	a.publish()
	return a
}

// LoadModel fetches the pose model if it is missing, starts the MediaPipe
// service and waits until the model has loaded. Only then is the detector
// installed; until a detector is set, toggling the webcam fails with
// ErrModelNotReady.
func (a *App) LoadModel(ctx context.Context, cfg detector.Config) error {
	if err := detector.EnsureModel(ctx, cfg.ModelPath, detector.ModelURL); err != nil {
		return fmt.Errorf("load pose model: %w", err)
	}
	mp, err := detector.NewMediaPipeDetector(cfg)
	if err != nil {
		return fmt.Errorf("load pose model: %w", err)
	}
	if err := a.install(ctx, mp); err != nil {
		return err
	}
	log.Println("Using MediaPipe pose detection")
	return nil
}

// startableDetector is a detector whose model loads asynchronously.
type startableDetector interface {
	detector.Detector
	Start(ctx context.Context) error
}

// install waits for d to load its model and then sets it. A detector that
// fails to load is closed and never set.
func (a *App) install(ctx context.Context, d startableDetector) error {
	if err := d.Start(ctx); err != nil {
		d.Close()
		return fmt.Errorf("load pose model: %w", err)
	}
	a.SetDetector(d)
	return nil
}

// SetDetector sets the pose detector implementation to use and publishes the
// new model readiness.
func (a *App) SetDetector(d detector.Detector) {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	a.detector = d
	running := a.state == Running
	a.mu.Unlock()

	// While running, the loop owns the session and publishes every frame.
	if !running {
		a.publish()
	}
}

// SetCamera replaces the video source. It must be called while stopped.
func (a *App) SetCamera(c capture.Camera) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera = c
}

// SetCanvas replaces the rendering surface.
func (a *App) SetCanvas(c render.Canvas) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.canvas = c
}

// SetGlove replaces the glove image.
func (a *App) SetGlove(g *render.Asset) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.glove = g
}

// ModelReady reports whether a pose detector is available.
func (a *App) ModelReady() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector != nil
}

// State returns the current webcam state.
func (a *App) State() WebcamState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.camera
}

// Canvas returns the rendering surface.
func (a *App) Canvas() render.Canvas {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.canvas
}

// Detector returns the pose detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// Toggle is the single user action of the demo. When stopped it acquires the
// camera and starts the frame loop; when running it stops the loop and
// releases the camera.
func (a *App) Toggle() (WebcamState, error) {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	if !a.ModelReady() {
		log.Println("Pose model not loaded yet.")
		return a.State(), ErrModelNotReady
	}

	if a.State() == Running {
		a.stop()
		return Stopped, nil
	}

	if err := a.start(); err != nil {
		return Stopped, err
	}
	return Running, nil
}

// Enable starts the frame loop if it is not already running.
func (a *App) Enable() error {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	if !a.ModelReady() {
		log.Println("Pose model not loaded yet.")
		return ErrModelNotReady
	}
	if a.State() == Running {
		return nil
	}
	return a.start()
}

// Disable stops the frame loop if it is running.
func (a *App) Disable() {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	if a.State() == Running {
		a.stop()
	}
}

// start opens the camera and launches the loop. Caller holds opMu.
func (a *App) start() error {
	cam := a.Camera()
	if err := cam.Open(); err != nil {
		log.Printf("Error accessing webcam: %v", err)
		return fmt.Errorf("%w: %w", ErrCameraAcquisition, err)
	}

	a.beginRun()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	a.mu.Lock()
	a.state = Running
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	a.publish()
	go a.run(ctx, done)

	log.Println("Webcam enabled")
	return nil
}

// stop cancels the loop, waits for it to exit and releases the camera.
// Caller holds opMu.
func (a *App) stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.state = Stopped
	a.cancel = nil
	a.done = nil
	cam := a.camera
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if err := cam.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}

	a.endRun()
	a.publish()
	log.Println("Webcam disabled")
}

// beginRun opens a run record for hit history.
func (a *App) beginRun() {
	s := a.session
	s.RunID = uuid.New().String()
	s.Frames = 0
	s.Hits = 0
	s.MaxSpeed = s.Ball.Speed()

	if a.config.Store == nil {
		return
	}
	if err := a.config.Store.Runs().Create(&store.Run{ID: s.RunID}); err != nil {
		log.Printf("Failed to record run: %v", err)
	}
}

// endRun closes the current run record.
func (a *App) endRun() {
	s := a.session
	if a.config.Store != nil && s.RunID != "" {
		if err := a.config.Store.Runs().Finish(s.RunID, s.Frames, s.MaxSpeed); err != nil {
			log.Printf("Failed to finish run %s: %v", s.RunID, err)
		}
	}
}

// Close stops the loop and releases the detector, glove image and canvas.
func (a *App) Close() error {
	a.Disable()

	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close detector: %w", err))
		}
	}
	if a.glove != nil {
		a.glove.Close()
	}
	if c, ok := a.canvas.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close canvas: %w", err))
		}
	}
	return errors.Join(errs...)
}
