package app

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/poseball/internal/capture"
	"github.com/ayusman/poseball/internal/detector"
	"github.com/ayusman/poseball/internal/physics"
	"github.com/ayusman/poseball/internal/render"
	"github.com/ayusman/poseball/internal/store"
	"github.com/ayusman/poseball/testdata"
)

type fixture struct {
	app    *App
	camera *capture.MockCamera
	det    *detector.MockDetector
	canvas *render.RecordingSurface
}

func newFixture(t *testing.T, config Config) *fixture {
	t.Helper()

	frames := testdata.Sequence(3, testdata.FrameWidth, testdata.FrameHeight)
	t.Cleanup(func() { testdata.Close(frames) })

	if config.Seed == 0 {
		config.Seed = 1
	}

	f := &fixture{
		app:    New(config),
		camera: capture.NewMockCamera(frames, true),
		det:    detector.NewMockDetector(),
		canvas: render.NewRecordingSurface(testdata.FrameSize()),
	}
	f.app.SetCamera(f.camera)
	f.app.SetDetector(f.det)
	f.app.SetCanvas(f.canvas)
	t.Cleanup(func() { f.app.Disable() })
	return f
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// singlePointPose places every landmark in the bottom-left corner except idx.
func singlePointPose(idx int, x, y float64) detector.Pose {
	lm := make([]detector.Landmark, detector.NumLandmarks)
	for i := range lm {
		lm[i] = detector.Landmark{X: 0, Y: 1}
	}
	lm[idx] = detector.Landmark{X: x, Y: y}
	return detector.Pose{Landmarks: lm}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWebcamState_Labels(t *testing.T) {
	tests := []struct {
		state WebcamState
		name  string
		label string
	}{
		{Stopped, "STOPPED", "ENABLE WEBCAM"},
		{Running, "RUNNING", "DISABLE WEBCAM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.String(); got != tt.name {
				t.Errorf("String() = %s, want %s", got, tt.name)
			}
			if got := tt.state.ButtonLabel(); got != tt.label {
				t.Errorf("ButtonLabel() = %s, want %s", got, tt.label)
			}
		})
	}
}

func TestNew_InitialSession(t *testing.T) {
	a := New(Config{Seed: 42})

	if a.State() != Stopped {
		t.Errorf("State() = %v, want STOPPED", a.State())
	}
	if a.ModelReady() {
		t.Error("ModelReady() should be false before a detector is set")
	}

	snap := a.Snapshot()
	if snap.Label != "ENABLE WEBCAM" {
		t.Errorf("Label = %s, want ENABLE WEBCAM", snap.Label)
	}
	if snap.Mode != "IMAGE" {
		t.Errorf("Mode = %s, want IMAGE", snap.Mode)
	}
	if snap.Ball.Pos != (physics.Vec2{X: physics.DefaultX, Y: physics.DefaultY}) {
		t.Errorf("Ball.Pos = %+v, want (240, 180)", snap.Ball.Pos)
	}
	if snap.Color != "#FF0000" {
		t.Errorf("Color = %s, want #FF0000", snap.Color)
	}
	if snap.Speed > physics.DefaultMaxSpeed*1.5 {
		t.Errorf("Speed = %f exceeds the initial velocity range", snap.Speed)
	}
}

func TestApp_Toggle_ModelNotReady(t *testing.T) {
	a := New(Config{Seed: 1})
	cam := capture.NewMockCamera(nil, false)
	a.SetCamera(cam)

	state, err := a.Toggle()
	if !errors.Is(err, ErrModelNotReady) {
		t.Errorf("Toggle() error = %v, want ErrModelNotReady", err)
	}
	if state != Stopped {
		t.Errorf("state = %v, want STOPPED", state)
	}
	if cam.Opens() != 0 {
		t.Errorf("camera opened %d times, want 0", cam.Opens())
	}

	if err := a.Enable(); !errors.Is(err, ErrModelNotReady) {
		t.Errorf("Enable() error = %v, want ErrModelNotReady", err)
	}
}

func TestApp_Toggle_TwiceOpensCameraOnce(t *testing.T) {
	f := newFixture(t, Config{})

	state, err := f.app.Toggle()
	if err != nil {
		t.Fatalf("first Toggle() error = %v", err)
	}
	if state != Running {
		t.Errorf("first Toggle() state = %v, want RUNNING", state)
	}
	if got := f.app.Snapshot().Label; got != "DISABLE WEBCAM" {
		t.Errorf("Label = %s, want DISABLE WEBCAM", got)
	}

	state, err = f.app.Toggle()
	if err != nil {
		t.Fatalf("second Toggle() error = %v", err)
	}
	if state != Stopped {
		t.Errorf("second Toggle() state = %v, want STOPPED", state)
	}

	if f.camera.Opens() != 1 {
		t.Errorf("camera opened %d times, want 1", f.camera.Opens())
	}
	if f.camera.Closes() != 1 {
		t.Errorf("camera closed %d times, want 1", f.camera.Closes())
	}
	if f.camera.IsOpen() {
		t.Error("camera should be released after the second toggle")
	}
}

func TestApp_Toggle_CameraFailure(t *testing.T) {
	f := newFixture(t, Config{})
	cause := errors.New("permission denied")
	f.camera.SetOpenError(cause)

	state, err := f.app.Toggle()
	if !errors.Is(err, ErrCameraAcquisition) {
		t.Errorf("Toggle() error = %v, want ErrCameraAcquisition", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Toggle() error = %v, want it to wrap the cause", err)
	}
	if state != Stopped || f.app.State() != Stopped {
		t.Errorf("state = %v, want STOPPED", f.app.State())
	}
	if f.camera.Opens() != 0 {
		t.Errorf("camera opened %d times, want 0", f.camera.Opens())
	}
}

func TestApp_EnableDisable_Idempotent(t *testing.T) {
	f := newFixture(t, Config{})

	if err := f.app.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if err := f.app.Enable(); err != nil {
		t.Fatalf("second Enable() error = %v", err)
	}
	if f.camera.Opens() != 1 {
		t.Errorf("camera opened %d times, want 1", f.camera.Opens())
	}

	f.app.Disable()
	f.app.Disable()
	if f.camera.Closes() != 1 {
		t.Errorf("camera closed %d times, want 1", f.camera.Closes())
	}
	if f.app.State() != Stopped {
		t.Errorf("State() = %v, want STOPPED", f.app.State())
	}
}

func TestApp_Tick_RateLimit(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.camera.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		ts   time.Duration
		want bool
	}{
		{0, false},
		{10 * time.Millisecond, false},
		{20 * time.Millisecond, false},
		{40 * time.Millisecond, true},
	}

	for _, tt := range tests {
		if got := f.app.Tick(ctx, tt.ts); got != tt.want {
			t.Errorf("Tick(%v) = %v, want %v", tt.ts, got, tt.want)
		}
	}

	detections := f.det.Detections()
	if len(detections) != 1 || detections[0] != 40 {
		t.Errorf("detections = %v, want [40]", detections)
	}
	if f.canvas.Count(render.OpPresent) != 1 {
		t.Errorf("presented %d frames, want 1", f.canvas.Count(render.OpPresent))
	}
}

func TestApp_Tick_ThresholdFromLastProcessed(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.camera.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()

	f.app.Tick(ctx, 40*time.Millisecond)
	if f.app.Tick(ctx, 70*time.Millisecond) {
		t.Error("Tick(70ms) should be rate limited after a frame at 40ms")
	}
	if !f.app.Tick(ctx, 73*time.Millisecond) {
		t.Error("Tick(73ms) should process a frame 33ms after 40ms")
	}
}

func TestApp_Tick_SwitchesModeOnce(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.camera.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		f.app.Tick(ctx, time.Duration(i)*50*time.Millisecond)
	}

	if f.det.ModeCalls() != 1 {
		t.Errorf("SetRunningMode called %d times, want 1", f.det.ModeCalls())
	}
	if f.det.Mode() != detector.ModeVideo {
		t.Errorf("detector mode = %v, want VIDEO", f.det.Mode())
	}
	if got := f.app.Snapshot().Mode; got != "VIDEO" {
		t.Errorf("Snapshot().Mode = %s, want VIDEO", got)
	}
	if len(f.det.Detections()) != 5 {
		t.Errorf("detections = %d, want 5", len(f.det.Detections()))
	}
}

func TestApp_Tick_ModeSwitchFailureSkipsFrame(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.camera.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()

	f.det.SetModeError(errors.New("graph not ready"))
	if f.app.Tick(ctx, 50*time.Millisecond) {
		t.Error("Tick() should skip the frame when the mode switch fails")
	}
	if len(f.det.Detections()) != 0 {
		t.Error("no detection should run before the mode switch succeeds")
	}

	f.det.SetModeError(nil)
	if !f.app.Tick(ctx, 100*time.Millisecond) {
		t.Error("Tick() should process the frame once the mode switch succeeds")
	}
	if f.det.ModeCalls() != 2 {
		t.Errorf("SetRunningMode called %d times, want 2", f.det.ModeCalls())
	}
}

func TestApp_Tick_NoFrame(t *testing.T) {
	f := newFixture(t, Config{})

	// Camera never opened.
	if f.app.Tick(context.Background(), 50*time.Millisecond) {
		t.Error("Tick() should not process without a frame")
	}
	if len(f.det.Detections()) != 0 {
		t.Error("detection should not run without a frame")
	}
}

func TestApp_Tick_DetectorErrorSkipsFrame(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.camera.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	f.det.SetError(errors.New("inference failed"))

	before := *f.app.session.Ball
	if f.app.Tick(context.Background(), 50*time.Millisecond) {
		t.Error("Tick() should skip the frame on detector error")
	}
	if f.app.session.Ball.Pos != before.Pos {
		t.Error("ball should not move when detection fails")
	}
}

func TestApp_Tick_DrawOrder(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.camera.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	f.det.SetPoses([]detector.Pose{detector.StandingPose()})

	if !f.app.Tick(context.Background(), 50*time.Millisecond) {
		t.Fatal("Tick() = false, want true")
	}

	ops := f.canvas.Ops()
	if len(ops) < 3 {
		t.Fatalf("got %d ops, want at least 3", len(ops))
	}
	if ops[0].Kind != render.OpClear {
		t.Errorf("first op = %s, want clear", ops[0].Kind)
	}
	if ops[1].Kind != render.OpCircle {
		t.Errorf("second op = %s, want ball circle", ops[1].Kind)
	}
	if ops[len(ops)-1].Kind != render.OpPresent {
		t.Errorf("last op = %s, want present", ops[len(ops)-1].Kind)
	}
	if got := f.canvas.Count(render.OpPoint); got != detector.NumLandmarks {
		t.Errorf("drew %d landmarks, want %d", got, detector.NumLandmarks)
	}
	if got := f.canvas.Count(render.OpLine); got != len(detector.PoseConnections) {
		t.Errorf("drew %d connectors, want %d", got, len(detector.PoseConnections))
	}
	// Glove image never loaded.
	if got := f.canvas.Count(render.OpBlit); got != 0 {
		t.Errorf("drew %d gloves, want 0 before the asset loads", got)
	}
	if size := f.canvas.Size(); size != testdata.FrameSize() {
		t.Errorf("canvas size = %v, want frame size %v", size, testdata.FrameSize())
	}
}

func TestApp_Tick_StepsBall(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.camera.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	f.app.session.Ball.Vel = physics.Vec2{X: 6, Y: 0}

	f.app.Tick(context.Background(), 50*time.Millisecond)

	snap := f.app.Snapshot()
	if snap.Ball.Pos.X != physics.DefaultX+6 {
		t.Errorf("Ball.Pos.X = %f, want %f", snap.Ball.Pos.X, physics.DefaultX+6.0)
	}
	if snap.Frames != 1 {
		t.Errorf("Frames = %d, want 1", snap.Frames)
	}
}

func TestApp_Tick_HitBouncesBallAndRecords(t *testing.T) {
	s := newTestStore(t)
	f := newFixture(t, Config{Store: s})
	if err := f.camera.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	f.app.beginRun()

	// After one step the ball center lands exactly on the left wrist.
	ball := f.app.session.Ball
	ball.Vel = physics.Vec2{X: 5, Y: 3}
	ball.Pos = physics.Vec2{X: 240 - 5, Y: 180 - 3}
	pose := singlePointPose(detector.LeftWrist, 240.0/testdata.FrameWidth, 180.0/testdata.FrameHeight)
	f.det.SetPoses([]detector.Pose{pose})

	if !f.app.Tick(context.Background(), 50*time.Millisecond) {
		t.Fatal("Tick() = false, want true")
	}

	snap := f.app.Snapshot()
	if math.Abs(snap.Ball.Vel.X+5.25) > 1e-9 || math.Abs(snap.Ball.Vel.Y+3.15) > 1e-9 {
		t.Errorf("Ball.Vel = %+v, want (-5.25, -3.15)", snap.Ball.Vel)
	}
	if snap.Hits != 1 {
		t.Errorf("Hits = %d, want 1", snap.Hits)
	}
	if len(snap.Landmarks) != detector.NumLandmarks {
		t.Errorf("Landmarks = %d, want %d", len(snap.Landmarks), detector.NumLandmarks)
	}

	hits, err := s.Runs().Hits(snap.RunID)
	if err != nil {
		t.Fatalf("Hits() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("stored %d hits, want 1", len(hits))
	}
	if hits[0].LandmarkIndex != detector.LeftWrist {
		t.Errorf("LandmarkIndex = %d, want %d", hits[0].LandmarkIndex, detector.LeftWrist)
	}
	if hits[0].Color != snap.Color {
		t.Errorf("stored color = %s, want ball color %s", hits[0].Color, snap.Color)
	}
}

func TestApp_Tick_CancelledDetectionDiscarded(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.camera.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	f.det.SetPoses([]detector.Pose{detector.StandingPose()})
	release := f.det.Block()
	defer release()

	before := *f.app.session.Ball

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	if f.app.Tick(ctx, 50*time.Millisecond) {
		t.Error("Tick() should discard a detection cancelled by stop")
	}
	if f.app.session.Ball.Pos != before.Pos || f.app.session.Ball.Vel != before.Vel {
		t.Error("ball should not change after a cancelled detection")
	}
	if n := len(f.canvas.Ops()); n != 0 {
		t.Errorf("canvas got %d ops, want none after a cancelled detection", n)
	}
}

func TestApp_RunLoop(t *testing.T) {
	s := newTestStore(t)
	f := newFixture(t, Config{Store: s})
	f.det.SetPoses([]detector.Pose{detector.StandingPose()})

	frames := make(chan Snapshot, 64)
	f.app.OnFrame(func(snap Snapshot) {
		select {
		case frames <- snap:
		default:
		}
	})

	if err := f.app.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	runID := f.app.Snapshot().RunID
	if runID == "" {
		t.Fatal("RunID should be set while running")
	}

	waitFor(t, 2*time.Second, func() bool { return f.app.Snapshot().Frames >= 3 })
	f.app.Disable()

	if f.app.State() != Stopped {
		t.Errorf("State() = %v, want STOPPED", f.app.State())
	}
	if f.camera.Closes() != 1 {
		t.Errorf("camera closed %d times, want 1", f.camera.Closes())
	}
	if len(frames) == 0 {
		t.Error("OnFrame listener received no snapshots")
	}

	run, err := s.Runs().GetByID(runID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if run.EndedAt == nil {
		t.Error("run should be finished after Disable")
	}
	if run.Frames < 3 {
		t.Errorf("run.Frames = %d, want >= 3", run.Frames)
	}

	// No more frames are processed after stop.
	processed := len(f.det.Detections())
	time.Sleep(100 * time.Millisecond)
	if got := len(f.det.Detections()); got != processed {
		t.Errorf("detections grew from %d to %d after Disable", processed, got)
	}
}

func TestApp_BallSurvivesRestart(t *testing.T) {
	f := newFixture(t, Config{})

	if err := f.app.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return f.app.Snapshot().Frames >= 1 })
	f.app.Disable()

	ball := f.app.session.Ball
	last := f.app.session.LastFrame

	if err := f.app.Enable(); err != nil {
		t.Fatalf("second Enable() error = %v", err)
	}
	f.app.Disable()

	if f.app.session.Ball != ball {
		t.Error("ball should never be recreated")
	}
	if f.app.session.LastFrame < last {
		t.Error("last processed timestamp should not be reset")
	}
	if f.det.ModeCalls() != 1 {
		t.Errorf("SetRunningMode called %d times, want 1", f.det.ModeCalls())
	}
}

func TestApp_Close(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.app.Enable(); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	if err := f.app.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if f.app.State() != Stopped {
		t.Errorf("State() = %v, want STOPPED", f.app.State())
	}
}

func TestApp_SetDetector_PublishesReadiness(t *testing.T) {
	a := New(Config{Seed: 1})

	var published []Snapshot
	a.OnFrame(func(s Snapshot) { published = append(published, s) })

	if a.Snapshot().ModelReady {
		t.Fatal("snapshot reports a model before one is set")
	}

	a.SetDetector(detector.NewMockDetector())

	if !a.Snapshot().ModelReady {
		t.Error("Snapshot().ModelReady = false after SetDetector")
	}
	if len(published) != 1 || !published[0].ModelReady {
		t.Errorf("listeners got %+v, want one snapshot with the model ready", published)
	}
}

// loadingDetector is a detector whose model load result is fixed.
type loadingDetector struct {
	*detector.MockDetector
	startErr error
	closed   bool
}

func (d *loadingDetector) Start(ctx context.Context) error { return d.startErr }

func (d *loadingDetector) Close() error {
	d.closed = true
	return nil
}

func TestApp_Install(t *testing.T) {
	t.Run("failed load leaves the model not ready", func(t *testing.T) {
		a := New(Config{Seed: 1})
		a.SetCamera(capture.NewMockCamera(nil, false))
		d := &loadingDetector{MockDetector: detector.NewMockDetector(), startErr: errors.New("model not found")}

		if err := a.install(context.Background(), d); err == nil {
			t.Fatal("install() should return the load error")
		}
		if !d.closed {
			t.Error("detector that failed to load was not closed")
		}
		if a.ModelReady() || a.Snapshot().ModelReady {
			t.Error("model reported ready after a failed load")
		}
		if _, err := a.Toggle(); !errors.Is(err, ErrModelNotReady) {
			t.Errorf("Toggle() error = %v, want ErrModelNotReady", err)
		}
	})

	t.Run("loaded model is installed", func(t *testing.T) {
		a := New(Config{Seed: 1})
		d := &loadingDetector{MockDetector: detector.NewMockDetector()}

		if err := a.install(context.Background(), d); err != nil {
			t.Fatalf("install() error = %v", err)
		}
		if !a.ModelReady() || a.Detector() != d {
			t.Error("loaded detector was not set")
		}
		if !a.Snapshot().ModelReady {
			t.Error("snapshot does not report the loaded model")
		}
	})
}
