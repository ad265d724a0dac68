// Package render draws the ball, skeleton and glove overlays on top of camera frames.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"
)

// Surface is a 2D drawing target whose pixel size matches the video frames.
type Surface interface {
	Size() image.Point
	Clear()
	FillCircle(center image.Point, radius int, c color.RGBA)
	Blit(sprite gocv.Mat, r image.Rectangle)
	Line(a, b image.Point, c color.RGBA, thickness int)
	Point(p image.Point, radius int, c color.RGBA)
}

// Canvas is a Surface that can be resized to the incoming video and
// presented over a frame.
type Canvas interface {
	Surface
	Resize(size image.Point)
	Present(frame gocv.Mat) error
}

// MatSurface draws into an overlay Mat and composes it over camera frames.
// A single-channel mask records which overlay pixels were drawn, so any
// color, black included, stays visible.
type MatSurface struct {
	mu      sync.Mutex
	overlay gocv.Mat
	mask    gocv.Mat
	alloc   bool
	size    image.Point
	latest  []byte
}

var opaque = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// NewMatSurface creates an overlay of the given size.
func NewMatSurface(size image.Point) *MatSurface {
	s := &MatSurface{}
	s.resize(size)
	return s
}

// Size returns the surface size in pixels.
func (s *MatSurface) Size() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Resize reallocates the overlay when the frame size changes.
func (s *MatSurface) Resize(size image.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size == s.size {
		return
	}
	s.resize(size)
}

func (s *MatSurface) resize(size image.Point) {
	if s.alloc {
		s.overlay.Close()
		s.mask.Close()
	}
	s.size = size
	s.overlay = gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3)
	s.mask = gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC1)
	s.alloc = true
	s.clear()
}

// Clear erases the overlay.
func (s *MatSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

func (s *MatSurface) clear() {
	s.overlay.SetTo(gocv.NewScalar(0, 0, 0, 0))
	s.mask.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

// FillCircle draws a filled circle.
func (s *MatSurface) FillCircle(center image.Point, radius int, c color.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gocv.Circle(&s.overlay, center, radius, c, -1)
	gocv.Circle(&s.mask, center, radius, opaque, -1)
}

// Line draws a line segment.
func (s *MatSurface) Line(a, b image.Point, c color.RGBA, thickness int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gocv.Line(&s.overlay, a, b, c, thickness)
	gocv.Line(&s.mask, a, b, opaque, thickness)
}

// Point draws a landmark dot.
func (s *MatSurface) Point(p image.Point, radius int, c color.RGBA) {
	s.FillCircle(p, radius, c)
}

// Blit scales sprite into r. Black sprite pixels are left undrawn and parts
// of r outside the surface are clipped.
func (s *MatSurface) Blit(sprite gocv.Mat, r image.Rectangle) {
	if sprite.Empty() || r.Empty() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	visible := r.Intersect(image.Rectangle{Max: s.size})
	if visible.Empty() {
		return
	}

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(sprite, &scaled, r.Size(), 0, 0, gocv.InterpolationLinear)

	src := scaled.Region(visible.Sub(r.Min))
	defer src.Close()
	dst := s.overlay.Region(visible)
	defer dst.Close()

	// Sprites have no alpha channel; their black background is the cutout.
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	cutout := gocv.NewMat()
	defer cutout.Close()
	gocv.Threshold(gray, &cutout, 0, 255, gocv.ThresholdBinary)

	src.CopyToWithMask(&dst, cutout)

	maskDst := s.mask.Region(visible)
	defer maskDst.Close()
	gocv.BitwiseOr(maskDst, cutout, &maskDst)
}

// Present composes the overlay over frame and keeps the JPEG encoding of the
// result for LatestJPEG.
func (s *MatSurface) Present(frame gocv.Mat) error {
	if frame.Empty() {
		return errors.New("empty frame")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if frame.Cols() != s.size.X || frame.Rows() != s.size.Y {
		return fmt.Errorf("frame %dx%d does not match surface %dx%d",
			frame.Cols(), frame.Rows(), s.size.X, s.size.Y)
	}

	out := s.compose(frame)
	defer out.Close()

	buf, err := gocv.IMEncode(".jpg", out)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	s.latest = append(s.latest[:0], buf.GetBytes()...)
	return nil
}

// compose returns a copy of frame with every drawn overlay pixel on top.
// Caller holds mu.
func (s *MatSurface) compose(frame gocv.Mat) gocv.Mat {
	out := frame.Clone()
	s.overlay.CopyToWithMask(&out, s.mask)
	return out
}

// LatestJPEG returns a copy of the last presented frame, or nil before the
// first Present.
func (s *MatSurface) LatestJPEG() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latest) == 0 {
		return nil
	}
	out := make([]byte, len(s.latest))
	copy(out, s.latest)
	return out
}

// Close releases the overlay.
func (s *MatSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alloc {
		s.overlay.Close()
		s.mask.Close()
		s.alloc = false
	}
	return nil
}
