package app

import (
	"github.com/ayusman/poseball/internal/physics"
)

// Snapshot is a read-only copy of the frame loop state, published after every
// processed frame and every state change.
type Snapshot struct {
	State       string         `json:"state"`
	Label       string         `json:"label"`
	ModelReady  bool           `json:"modelReady"`
	Mode        string         `json:"mode"`
	Ball        physics.Ball   `json:"ball"`
	Color       string         `json:"color"`
	Speed       float64        `json:"speed"`
	RunID       string         `json:"runId,omitempty"`
	Frames      int            `json:"frames"`
	Hits        int            `json:"hits"`
	Landmarks   []physics.Vec2 `json:"landmarks,omitempty"`
	TimestampMs int64          `json:"timestampMs"`
}

// Snapshot returns the most recently published state.
func (a *App) Snapshot() Snapshot {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return a.snapshot
}

// OnFrame registers fn to be called with every published snapshot. fn runs on
// the frame loop goroutine and must not block.
func (a *App) OnFrame(fn func(Snapshot)) {
	a.snapMu.Lock()
	defer a.snapMu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// publish copies the session into a new snapshot and notifies listeners.
func (a *App) publish() {
	s := a.session
	state := a.State()

	snap := Snapshot{
		State:       state.String(),
		Label:       state.ButtonLabel(),
		ModelReady:  a.ModelReady(),
		Mode:        s.Mode.String(),
		Ball:        *s.Ball,
		Color:       s.Ball.HexColor(),
		Speed:       s.Ball.Speed(),
		RunID:       s.RunID,
		Frames:      s.Frames,
		Hits:        s.Hits,
		TimestampMs: s.LastFrame.Milliseconds(),
	}
	if len(s.Landmarks) > 0 {
		snap.Landmarks = make([]physics.Vec2, len(s.Landmarks))
		copy(snap.Landmarks, s.Landmarks)
	}

	a.snapMu.Lock()
	a.snapshot = snap
	listeners := make([]func(Snapshot), len(a.listeners))
	copy(listeners, a.listeners)
	a.snapMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
