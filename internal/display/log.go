package display

import (
	"log/slog"
	"sync"
)

// LogDisplay writes a structured log line whenever the status changes.
type LogDisplay struct {
	logger *slog.Logger

	mu   sync.Mutex
	last Status
	seen bool
}

// NewLogDisplay creates a LogDisplay. A nil logger uses slog.Default().
func NewLogDisplay(logger *slog.Logger) *LogDisplay {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDisplay{logger: logger}
}

// Show implements Display.
func (l *LogDisplay) Show(s Status) {
	l.mu.Lock()
	if l.seen && l.last.Equal(s) {
		l.mu.Unlock()
		return
	}
	l.last, l.seen = s, true
	l.mu.Unlock()

	attrs := []any{
		"state", s.State.String(),
		"mqtt_connected", s.Connected,
	}
	if s.Observation.Detected {
		attrs = append(attrs, "fingers", s.Observation.Count)
	} else {
		attrs = append(attrs, "fingers", "-")
	}
	if s.HasPublish {
		attrs = append(attrs, "slider", int(s.Last), "brightness_percent", s.Last.Percent())
	}
	if s.Paused {
		attrs = append(attrs, "paused", true)
	}

	l.logger.Info("status", attrs...)
}
