package render

import (
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"
)

// OpKind identifies a recorded drawing call.
type OpKind string

const (
	OpClear   OpKind = "clear"
	OpCircle  OpKind = "circle"
	OpBlit    OpKind = "blit"
	OpLine    OpKind = "line"
	OpPoint   OpKind = "point"
	OpPresent OpKind = "present"
)

// Op is one recorded drawing call.
type Op struct {
	Kind   OpKind
	At     image.Point
	To     image.Point
	Rect   image.Rectangle
	Radius int
	Color  color.RGBA
}

// RecordingSurface is a Canvas that records drawing calls instead of
// rendering them. It is used by tests.
type RecordingSurface struct {
	mu   sync.Mutex
	size image.Point
	ops  []Op
}

// NewRecordingSurface creates a recorder of the given size.
func NewRecordingSurface(size image.Point) *RecordingSurface {
	return &RecordingSurface{size: size}
}

func (r *RecordingSurface) record(op Op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *RecordingSurface) Size() image.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *RecordingSurface) Resize(size image.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.size = size
}

func (r *RecordingSurface) Clear() {
	r.record(Op{Kind: OpClear})
}

func (r *RecordingSurface) FillCircle(center image.Point, radius int, c color.RGBA) {
	r.record(Op{Kind: OpCircle, At: center, Radius: radius, Color: c})
}

func (r *RecordingSurface) Blit(sprite gocv.Mat, rect image.Rectangle) {
	r.record(Op{Kind: OpBlit, Rect: rect})
}

func (r *RecordingSurface) Line(a, b image.Point, c color.RGBA, thickness int) {
	r.record(Op{Kind: OpLine, At: a, To: b, Radius: thickness, Color: c})
}

func (r *RecordingSurface) Point(p image.Point, radius int, c color.RGBA) {
	r.record(Op{Kind: OpPoint, At: p, Radius: radius, Color: c})
}

func (r *RecordingSurface) Present(frame gocv.Mat) error {
	r.record(Op{Kind: OpPresent})
	return nil
}

// Ops returns a copy of every recorded call.
func (r *RecordingSurface) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Op, len(r.ops))
	copy(out, r.ops)
	return out
}

// Count returns how many calls of the given kind were recorded.
func (r *RecordingSurface) Count(kind OpKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, op := range r.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Reset forgets all recorded calls.
func (r *RecordingSurface) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
}
