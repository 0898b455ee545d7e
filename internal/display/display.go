// Package display presents the controller's per-cycle status.
package display

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/command"
	"github.com/ayusman/mudra/internal/stability"
)

// Status is what the controller reports once per cycle.
type Status struct {
	Observation stability.Observation
	State       stability.State
	Last        command.Level // meaningful only when HasPublish
	HasPublish  bool
	Connected   bool
	Paused      bool
	At          time.Time
}

// statusJSON is the wire form of Status used by the HTTP API.
type statusJSON struct {
	HandDetected bool      `json:"hand_detected"`
	Fingers      *int      `json:"fingers"`
	State        string    `json:"state"`
	Slider       *int      `json:"slider"`
	Brightness   *int      `json:"brightness_percent"`
	Connected    bool      `json:"mqtt_connected"`
	Paused       bool      `json:"paused"`
	At           time.Time `json:"at"`
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	out := statusJSON{
		HandDetected: s.Observation.Detected,
		State:        s.State.String(),
		Connected:    s.Connected,
		Paused:       s.Paused,
		At:           s.At,
	}
	if s.Observation.Detected {
		n := s.Observation.Count
		out.Fingers = &n
	}
	if s.HasPublish {
		slider, pct := int(s.Last), s.Last.Percent()
		out.Slider = &slider
		out.Brightness = &pct
	}
	return json.Marshal(out)
}

// Equal reports whether two statuses would render the same, ignoring time.
func (s Status) Equal(o Status) bool {
	s.At, o.At = time.Time{}, time.Time{}
	return s == o
}

// Display receives one Status per cycle. Implementations must not block the
// caller for long and must not modify controller state.
type Display interface {
	Show(Status)
}

// Func adapts a function to Display.
type Func func(Status)

// Show calls f(s).
func (f Func) Show(s Status) { f(s) }

// Multi fans a status out to several displays in order.
type Multi []Display

// Show implements Display.
func (m Multi) Show(s Status) {
	for _, d := range m {
		if d != nil {
			d.Show(s)
		}
	}
}

// Tracker remembers the latest status and pushes changes to subscribers.
type Tracker struct {
	mu     sync.RWMutex
	latest Status
	seen   bool
	subs   map[chan Status]struct{}
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{subs: make(map[chan Status]struct{})}
}

// Show implements Display. Subscribers only hear about changed statuses; a
// subscriber that is not keeping up misses intermediate values.
func (t *Tracker) Show(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := !t.seen || !t.latest.Equal(s)
	t.latest = s
	t.seen = true

	if !changed {
		return
	}
	for ch := range t.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Latest returns the last status shown, if any.
func (t *Tracker) Latest() (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest, t.seen
}

// Subscribe returns a channel of status changes and a function that ends the
// subscription.
func (t *Tracker) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 8)

	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, ch)
			t.mu.Unlock()
			close(ch)
		})
	}
}
