// Package physics provides the ball model, the per-frame integrator and the
// landmark hit test for the poseball demo.
package physics

import (
	"image/color"
	"math"
	"math/rand"
)

// Ball defaults.
const (
	DefaultX        = 240
	DefaultY        = 180
	DefaultRadius   = 20
	DefaultMaxSpeed = 5
)

// DefaultColor is the fill color of a ball that has not been hit yet.
var DefaultColor = color.RGBA{R: 0xFF, A: 0xFF}

// Vec2 is a 2D vector in pixel space.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Scale returns v * s.
func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

// Dist returns the Euclidean distance between v and o.
func (v Vec2) Dist(o Vec2) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Ball is the bouncing ball. Radius never changes after construction.
type Ball struct {
	Pos    Vec2       `json:"pos"`
	Radius float64    `json:"radius"`
	Vel    Vec2       `json:"vel"`
	Color  color.RGBA `json:"-"`
}

// NewBall creates a ball at (x, y) whose velocity components are each drawn
// uniformly from [-maxSpeed, maxSpeed).
func NewBall(x, y, radius, maxSpeed float64, rng *rand.Rand) *Ball {
	return &Ball{
		Pos:    Vec2{X: x, Y: y},
		Radius: radius,
		Vel: Vec2{
			X: (rng.Float64()*2 - 1) * maxSpeed,
			Y: (rng.Float64()*2 - 1) * maxSpeed,
		},
		Color: DefaultColor,
	}
}

// NewDefaultBall creates the demo ball centered at (240, 180) with radius 20.
func NewDefaultBall(rng *rand.Rand) *Ball {
	return NewBall(DefaultX, DefaultY, DefaultRadius, DefaultMaxSpeed, rng)
}

// Speed returns the magnitude of the ball's velocity.
func (b *Ball) Speed() float64 {
	return math.Hypot(b.Vel.X, b.Vel.Y)
}

// HexColor returns the fill color as #RRGGBB.
func (b *Ball) HexColor() string {
	return HexColor(b.Color)
}

// HexColor formats c as #RRGGBB.
func HexColor(c color.RGBA) string {
	const digits = "0123456789ABCDEF"
	buf := []byte{'#', 0, 0, 0, 0, 0, 0}
	for i, v := range []uint8{c.R, c.G, c.B} {
		buf[1+i*2] = digits[v>>4]
		buf[2+i*2] = digits[v&0x0F]
	}
	return string(buf)
}
