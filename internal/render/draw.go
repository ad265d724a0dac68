package render

import (
	"image"
	"image/color"
	"math"

	"github.com/ayusman/poseball/internal/detector"
	"github.com/ayusman/poseball/internal/physics"
)

// Overlay styling.
const (
	GloveSize          = 50
	ConnectorThickness = 2
)

var (
	LandmarkColor  = color.RGBA{R: 0xFF, A: 0xFF}
	ConnectorColor = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
)

// Lerp maps v from [min, max] onto [start, end], clamping outside the range.
func Lerp(v, min, max, start, end float64) float64 {
	if max == min {
		return start
	}
	t := (v - min) / (max - min)
	t = math.Max(0, math.Min(1, t))
	return start + (end-start)*t
}

// LandmarkRadius sizes a landmark dot by depth: closer points are larger.
func LandmarkRadius(z float64) int {
	return int(math.Round(Lerp(z, -0.15, 0.1, 5, 1)))
}

// ToPixel converts a normalized landmark to surface coordinates.
func ToPixel(l detector.Landmark, size image.Point) physics.Vec2 {
	return physics.Vec2{X: l.X * float64(size.X), Y: l.Y * float64(size.Y)}
}

// PosePixels converts every landmark of pose to surface coordinates.
func PosePixels(pose *detector.Pose, size image.Point) []physics.Vec2 {
	if pose == nil {
		return nil
	}
	out := make([]physics.Vec2, len(pose.Landmarks))
	for i, l := range pose.Landmarks {
		out[i] = ToPixel(l, size)
	}
	return out
}

func pt(v physics.Vec2) image.Point {
	return image.Pt(int(math.Round(v.X)), int(math.Round(v.Y)))
}

// DrawBall fills the ball with its current color.
func DrawBall(s Surface, b *physics.Ball) {
	s.FillCircle(pt(b.Pos), int(math.Round(b.Radius)), b.Color)
}

// DrawPose draws the landmark dots and skeleton connectors of one pose.
func DrawPose(s Surface, pose *detector.Pose) {
	if pose == nil {
		return
	}
	size := s.Size()

	for _, l := range pose.Landmarks {
		s.Point(pt(ToPixel(l, size)), LandmarkRadius(l.Z), LandmarkColor)
	}

	for _, c := range detector.PoseConnections {
		from, ok := pose.Landmark(c.From)
		if !ok {
			continue
		}
		to, ok := pose.Landmark(c.To)
		if !ok {
			continue
		}
		s.Line(pt(ToPixel(from, size)), pt(ToPixel(to, size)), ConnectorColor, ConnectorThickness)
	}
}

// DrawGloves blits the glove image centered on both wrists. Nothing is drawn
// until the glove asset has loaded.
func DrawGloves(s Surface, pose *detector.Pose, glove *Asset) {
	mat, ok := glove.Mat()
	if !ok || pose == nil {
		return
	}
	size := s.Size()

	for _, idx := range []int{detector.LeftWrist, detector.RightWrist} {
		wrist, ok := pose.Landmark(idx)
		if !ok {
			continue
		}
		center := ToPixel(wrist, size)
		min := image.Pt(int(center.X)-GloveSize/2, int(center.Y)-GloveSize/2)
		s.Blit(mat, image.Rectangle{Min: min, Max: min.Add(image.Pt(GloveSize, GloveSize))})
	}
}
