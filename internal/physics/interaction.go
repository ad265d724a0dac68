package physics

import (
	"image/color"
	"math/rand"
)

// HitSpeedup is applied to both velocity components on every qualifying contact.
const HitSpeedup = 1.05

// Hit describes one landmark contact.
type Hit struct {
	Index    int        `json:"index"`
	Landmark Vec2       `json:"landmark"`
	Pos      Vec2       `json:"pos"`
	Vel      Vec2       `json:"vel"`
	Color    color.RGBA `json:"-"`
}

// Interact tests every landmark against the ball. Each landmark closer to the
// center than the radius reverses the ball and speeds it up by HitSpeedup, so
// simultaneous contacts compound. A new fill color is drawn per contact.
// Points must already be in pixel space.
func Interact(b *Ball, points []Vec2, rng *rand.Rand) []Hit {
	var hits []Hit
	for i, p := range points {
		if b.Pos.Dist(p) >= b.Radius {
			continue
		}

		b.Vel = b.Vel.Scale(-HitSpeedup)
		b.Color = RandomColor(rng)

		hits = append(hits, Hit{
			Index:    i,
			Landmark: p,
			Pos:      b.Pos,
			Vel:      b.Vel,
			Color:    b.Color,
		})
	}
	return hits
}

// RandomColor picks an opaque color uniformly from the 24-bit RGB space.
func RandomColor(rng *rand.Rand) color.RGBA {
	v := rng.Intn(1 << 24)
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xFF,
	}
}
