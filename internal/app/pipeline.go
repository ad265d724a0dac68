package app

import (
	"context"
	"image"
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/poseball/internal/detector"
	"github.com/ayusman/poseball/internal/physics"
	"github.com/ayusman/poseball/internal/render"
	"github.com/ayusman/poseball/internal/store"
)

// run is the frame loop. It is scheduled once per display refresh and exits
// when ctx is cancelled.
func (a *App) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick(ctx, time.Since(a.epoch))
		}
	}
}

type detection struct {
	result detector.Result
	err    error
}

// Tick processes at most one frame. ts is the time since the app started.
// It returns true when a frame was detected, simulated and drawn.
//
// Steps:
// 1. Skip if less than FrameInterval has passed since the last processed frame
// 2. Switch the detector to VIDEO mode once and wait for it
// 3. Read a camera frame and run detection as a cancellable task
// 4. Clear, step the ball, draw ball, skeletons and gloves
// 5. Bounce the ball off the first pose's landmarks and record hits
func (a *App) Tick(ctx context.Context, ts time.Duration) bool {
	s := a.session
	if ts-s.LastFrame < a.config.FrameInterval {
		return false
	}
	s.LastFrame = ts

	a.mu.RLock()
	cam, det, canvas, glove := a.camera, a.detector, a.canvas, a.glove
	a.mu.RUnlock()

	if det == nil {
		return false
	}

	if s.Mode != detector.ModeVideo {
		if err := det.SetRunningMode(ctx, detector.ModeVideo); err != nil {
			log.Printf("Error switching pose model to video mode: %v", err)
			return false
		}
		s.Mode = detector.ModeVideo
	}

	frame, err := cam.ReadFrame()
	if err != nil {
		return false
	}
	defer frame.Close()

	result, ok := a.detect(ctx, det, frame, ts.Milliseconds())
	if !ok {
		return false
	}

	size := image.Pt(frame.Cols(), frame.Rows())
	canvas.Resize(size)
	canvas.Clear()

	physics.Step(s.Ball, physics.Bounds{Width: float64(size.X), Height: float64(size.Y)})
	render.DrawBall(canvas, s.Ball)

	for i := range result.Poses {
		render.DrawPose(canvas, &result.Poses[i])
	}

	s.Landmarks = nil
	if pose := result.First(); pose != nil {
		render.DrawGloves(canvas, pose, glove)
		s.Landmarks = render.PosePixels(pose, size)
		a.recordHits(physics.Interact(s.Ball, s.Landmarks, a.rng))
	}

	if err := canvas.Present(*frame); err != nil {
		log.Printf("Error presenting frame: %v", err)
	}

	s.Frames++
	if speed := s.Ball.Speed(); speed > s.MaxSpeed {
		s.MaxSpeed = speed
	}

	a.publish()
	return true
}

// detect runs one detection on a copy of frame. The result is discarded when
// ctx is cancelled before or while the detector runs.
func (a *App) detect(ctx context.Context, det detector.Detector, frame *gocv.Mat, timestampMs int64) (detector.Result, bool) {
	input := frame.Clone()
	ch := make(chan detection, 1)

	go func() {
		defer input.Close()
		res, err := det.Detect(ctx, &input, timestampMs)
		ch <- detection{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return detector.Result{}, false
	case d := <-ch:
		if ctx.Err() != nil {
			return detector.Result{}, false
		}
		if d.err != nil {
			log.Printf("Error detecting pose: %v", d.err)
			return detector.Result{}, false
		}
		return d.result, true
	}
}

// recordHits counts hits for the current run and stores them.
func (a *App) recordHits(hits []physics.Hit) {
	s := a.session
	s.Hits += len(hits)

	if a.config.Store == nil || s.RunID == "" {
		return
	}

	for _, h := range hits {
		err := a.config.Store.Runs().AddHit(&store.Hit{
			RunID:         s.RunID,
			LandmarkIndex: h.Index,
			BallX:         h.Pos.X,
			BallY:         h.Pos.Y,
			VelX:          h.Vel.X,
			VelY:          h.Vel.Y,
			Color:         physics.HexColor(h.Color),
		})
		if err != nil {
			log.Printf("Failed to record hit: %v", err)
		}
	}
}
