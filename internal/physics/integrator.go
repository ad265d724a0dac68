package physics

// Bounds is the size of the rendering surface in pixels.
type Bounds struct {
	Width  float64
	Height float64
}

// Step advances the ball by one frame and reflects its velocity off the
// surface edges. Each axis is checked independently; the step is tied to the
// frame rate and is not scaled by elapsed time.
func Step(b *Ball, bounds Bounds) {
	b.Pos = b.Pos.Add(b.Vel)

	if b.Pos.X+b.Radius > bounds.Width || b.Pos.X-b.Radius < 0 {
		b.Vel.X = -b.Vel.X
	}
	if b.Pos.Y+b.Radius > bounds.Height || b.Pos.Y-b.Radius < 0 {
		b.Vel.Y = -b.Vel.Y
	}
}
