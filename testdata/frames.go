// Package testdata provides synthetic camera frames for tests.
package testdata

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Default frame size used by tests. It matches the demo's 480x360 surface.
const (
	FrameWidth  = 480
	FrameHeight = 360
)

// Frame creates a solid BGR frame of the given size.
// The caller is responsible for closing it.
func Frame(width, height int, c color.RGBA) *gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0),
		height, width, gocv.MatTypeCV8UC3,
	)
	return &mat
}

// Sequence creates n frames with a square moving left to right, so that
// consecutive frames differ.
func Sequence(n, width, height int) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		frame := Frame(width, height, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		x := (i * width / max(n, 1)) % width
		rect := image.Rect(x, height/3, x+width/10, height/3+height/10)
		gocv.Rectangle(frame, rect, color.RGBA{R: 200, G: 200, B: 200, A: 255}, -1)
		frames = append(frames, frame)
	}
	return frames
}

// Close releases every frame in frames.
func Close(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

// FrameSize returns the default test frame size.
func FrameSize() image.Point {
	return image.Pt(FrameWidth, FrameHeight)
}
