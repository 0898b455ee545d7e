// Package app runs the observe, debounce and publish cycle that turns hand
// gestures into lamp commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/command"
	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/publish"
	"github.com/ayusman/mudra/internal/stability"
	"github.com/ayusman/mudra/internal/store"
)

// PausePollInterval is how often a paused app checks for resume or stop.
const PausePollInterval = 100 * time.Millisecond

// Link reports whether the transport is connected.
type Link interface {
	IsConnected() bool
}

// Journal records publish decisions. *store.PublishRepository satisfies it.
type Journal interface {
	Record(p *store.Publish) error
}

// Config holds the collaborators of an App.
type Config struct {
	Source    classifier.Source
	Threshold int // buffer capacity; < 1 means stability.DefaultThreshold
	Mapper    *command.Mapper
	Gate      *publish.Gate
	Link      Link            // optional
	Display   display.Display // optional
	Journal   Journal         // optional
	Interval  time.Duration   // minimum cycle duration; 0 runs as fast as the source delivers
	Logger    *slog.Logger
}

// App is the cycle controller. Buffer and gate state are owned by the
// goroutine running the loop.
type App struct {
	config Config
	buffer *stability.Buffer
	logger *slog.Logger

	mu      sync.RWMutex
	enabled bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// New creates an App. Source, Mapper and Gate are required.
func New(config Config) (*App, error) {
	if config.Source == nil {
		return nil, errors.New("app: source is required")
	}
	if config.Mapper == nil {
		return nil, errors.New("app: mapper is required")
	}
	if config.Gate == nil {
		return nil, errors.New("app: gate is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &App{
		config:  config,
		buffer:  stability.NewBuffer(config.Threshold),
		logger:  config.Logger,
		enabled: true,
	}, nil
}

// SetEnabled pauses or resumes the cycle. A paused app neither reads the
// source nor touches the buffer or gate.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	changed := a.enabled != enabled
	a.enabled = enabled
	a.mu.Unlock()

	if changed {
		a.logger.Info("detection toggled", "enabled", enabled)
	}
}

// IsEnabled returns whether the cycle is running (not paused).
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Start runs the loop in a new goroutine. Calling Start on a running app is a no-op.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go func(done chan struct{}) {
		err := a.Run(ctx)

		a.mu.Lock()
		a.err = err
		a.mu.Unlock()

		close(done)
	}(a.done)

	a.logger.Info("cycle started", "threshold", a.buffer.Cap(), "topic", a.config.Gate.Topic())
}

// Done is closed when a started loop has returned. It is nil before Start.
func (a *App) Done() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.done
}

// Err returns the error the loop ended with, if any.
func (a *App) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Stop requests the loop to end, waits for the cycle in progress to finish
// and closes the source.
func (a *App) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if err := a.config.Source.Close(); err != nil {
		a.logger.Warn("error closing source", "error", err)
	}

	a.logger.Info("cycle stopped")
}

// Run executes cycles until ctx is cancelled or the source closes. The stop
// request is checked once per cycle, before the cycle starts; a cycle that
// has started always completes.
func (a *App) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if !a.IsEnabled() {
			a.show(stability.Absent(), true)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(PausePollInterval):
			}
			continue
		}

		started := time.Now()

		_, err := a.RunCycle(context.WithoutCancel(ctx))
		if errors.Is(err, classifier.ErrSourceClosed) {
			a.logger.Info("source closed, stopping", "reason", err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("cycle: %w", err)
		}

		if wait := a.config.Interval - time.Since(started); wait > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
		}
	}
}

// Last returns the last level the gate published.
func (a *App) Last() (command.Level, bool) {
	return a.config.Gate.Last()
}

// BufferState returns the buffer state. Only safe from the loop goroutine or
// when the loop is not running.
func (a *App) BufferState() stability.State {
	return a.buffer.State()
}

func (a *App) connected() bool {
	if a.config.Link == nil {
		return false
	}
	return a.config.Link.IsConnected()
}

func (a *App) show(o stability.Observation, paused bool) {
	if a.config.Display == nil {
		return
	}
	last, has := a.config.Gate.Last()
	a.config.Display.Show(display.Status{
		Observation: o,
		State:       a.buffer.State(),
		Last:        last,
		HasPublish:  has,
		Connected:   a.connected(),
		Paused:      paused,
		At:          time.Now(),
	})
}
