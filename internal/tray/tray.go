// Package tray provides a system tray interface for mudra.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/mudra/internal/display"
)

// Tray represents the system tray application. It doubles as a display.
type Tray struct {
	onToggle func(enabled bool)
	onOpen   func()
	onQuit   func()
	enabled  bool
	status   display.Status
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle     *systray.MenuItem
	menuFingers    *systray.MenuItem
	menuBrightness *systray.MenuItem
	menuMQTT       *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback for the "Open Status Page" item.
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
// This function blocks until Quit is called and must run on the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit ends Run.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra gesture lamp control")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem("● Enabled", "Pause or resume gesture detection")
	systray.AddSeparator()

	t.menuFingers = systray.AddMenuItem("", "Fingers currently detected")
	t.menuFingers.Disable()
	t.menuBrightness = systray.AddMenuItem("", "Last brightness sent to the lamp")
	t.menuBrightness.Disable()
	t.menuMQTT = systray.AddMenuItem("", "Broker connection")
	t.menuMQTT.Disable()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Status Page...", "Open the status page in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")
	t.render()
	t.mu.Unlock()

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

func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.renderToggle()
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

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

// Show implements display.Display.
func (t *Tray) Show(s display.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Equal(s) {
		return
	}
	t.status = s
	t.render()
}

// render updates menu titles; callers hold t.mu.
func (t *Tray) render() {
	if t.menuFingers == nil {
		return
	}
	fingers, brightness, mqtt := menuTitles(t.status)
	t.menuFingers.SetTitle(fingers)
	t.menuBrightness.SetTitle(brightness)
	t.menuMQTT.SetTitle(mqtt)
	t.renderToggle()
}

func (t *Tray) renderToggle() {
	if t.menuToggle == nil {
		return
	}
	if t.enabled {
		t.menuToggle.SetTitle("● Enabled")
	} else {
		t.menuToggle.SetTitle("○ Paused")
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func menuTitles(s display.Status) (fingers, brightness, mqtt string) {
	fingers = "Fingers: -"
	if s.Observation.Detected {
		fingers = fmt.Sprintf("Fingers: %d", s.Observation.Count)
	}

	brightness = "Brightness: -"
	if s.HasPublish {
		brightness = fmt.Sprintf("Brightness: %d%%", s.Last.Percent())
	}

	mqtt = "MQTT: offline"
	if s.Connected {
		mqtt = "MQTT: connected"
	}
	return fingers, brightness, mqtt
}
