// Package tray provides a system tray control for the poseball demo.
package tray

import (
	"fmt"
	"log"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/poseball/internal/app"
)

// Toggler is the single action the tray drives.
type Toggler interface {
	Toggle() (app.WebcamState, error)
}

// Tray represents the system tray application.
type Tray struct {
	toggler Toggler
	onOpen  func()
	onQuit  func()
	state   app.WebcamState
	mu      sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuStatus *systray.MenuItem
}

// New creates a new Tray for toggler. The webcam starts disabled.
func New(toggler Toggler) *Tray {
	return &Tray{
		toggler: toggler,
		state:   app.Stopped,
	}
}

// OnOpen sets the callback function to be called when the open menu item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the system tray.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Poseball")
	systray.SetTooltip("Poseball webcam demo")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(t.state.ButtonLabel(), "Start or stop the webcam")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem(statusTitle(0, 0), "Hits and ball speed of the current run")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open in Browser...", "Open the live view in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Poseball")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleToggle flips the webcam and relabels the menu item with the
// resulting state.
func (t *Tray) handleToggle() {
	state, err := t.toggler.Toggle()
	if err != nil {
		log.Printf("Toggle webcam: %v", err)
	}
	t.setState(state)
}

func (t *Tray) setState(state app.WebcamState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = state
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(state.ButtonLabel())
	}
}

// handleOpen handles the open menu item click.
func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Update reflects a frame loop snapshot in the menu. It is safe to call
// before the tray is running.
func (t *Tray) Update(snap app.Snapshot) {
	state := app.Stopped
	if snap.State == app.Running.String() {
		state = app.Running
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if state != t.state {
		t.state = state
		if t.menuToggle != nil {
			t.menuToggle.SetTitle(state.ButtonLabel())
		}
	}
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(snap.Hits, snap.Speed))
	}
}

// Label returns the current toggle label.
func (t *Tray) Label() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.ButtonLabel()
}

func statusTitle(hits int, speed float64) string {
	return fmt.Sprintf("Hits: %d  Speed: %.1f", hits, speed)
}
