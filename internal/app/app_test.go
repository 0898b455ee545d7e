package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/command"
	"github.com/ayusman/mudra/internal/display"
	"github.com/ayusman/mudra/internal/publish"
	"github.com/ayusman/mudra/internal/stability"
	"github.com/ayusman/mudra/internal/store"
)

type sent struct {
	topic   string
	payload []byte
}

// recordingTransport captures publishes and can be told to fail.
type recordingTransport struct {
	mu        sync.Mutex
	sent      []sent
	err       error
	connected bool
}

func (r *recordingTransport) Publish(topic string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{topic: topic, payload: payload})
	return r.err
}

func (r *recordingTransport) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingTransport) sliders(t *testing.T) []int {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int, 0, len(r.sent))
	for _, s := range r.sent {
		var cmd command.Command
		require.NoError(t, json.Unmarshal(s.payload, &cmd))
		assert.True(t, cmd.On)
		out = append(out, cmd.Slider)
	}
	return out
}

// flakySource fails with err on the listed call numbers (1-based) and
// otherwise replays steps.
type flakySource struct {
	steps  []stability.Observation
	failOn map[int]bool
	calls  int
	closed bool
}

func (f *flakySource) Observe(ctx context.Context) (stability.Observation, error) {
	f.calls++
	if f.failOn[f.calls] {
		return stability.Absent(), errors.New("camera hiccup")
	}
	if len(f.steps) == 0 {
		return stability.Absent(), classifier.ErrSourceClosed
	}
	o := f.steps[0]
	f.steps = f.steps[1:]
	return o, nil
}

func (f *flakySource) Close() error {
	f.closed = true
	return nil
}

type failingJournal struct{ calls int }

func (j *failingJournal) Record(*store.Publish) error {
	j.calls++
	return errors.New("disk full")
}

func repeat(o stability.Observation, n int) []stability.Observation {
	out := make([]stability.Observation, n)
	for i := range out {
		out[i] = o
	}
	return out
}

func scenario() []stability.Observation {
	var steps []stability.Observation
	steps = append(steps, stability.Absent())
	steps = append(steps, repeat(stability.Count(1), 10)...)
	steps = append(steps, repeat(stability.Count(2), 5)...)
	steps = append(steps, stability.Absent())
	steps = append(steps, repeat(stability.Count(2), 5)...)
	return steps
}

func newTestApp(t *testing.T, src classifier.Source, tr *recordingTransport, policy publish.Policy, opts ...func(*Config)) *App {
	t.Helper()

	mapper, err := command.NewMapper(command.DefaultMapping())
	require.NoError(t, err)

	cfg := Config{
		Source:    src,
		Threshold: stability.DefaultThreshold,
		Mapper:    mapper,
		Gate:      publish.NewGate(tr, publish.GateConfig{Topic: "lampada/command", Policy: policy}),
		Link:      tr,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(&cfg)
	}

	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

func TestNew_RequiresCollaborators(t *testing.T) {
	mapper, _ := command.NewMapper(command.DefaultMapping())
	gate := publish.NewGate(&recordingTransport{}, publish.GateConfig{Topic: "t"})
	src := classifier.NewScriptSource(nil)

	_, err := New(Config{Mapper: mapper, Gate: gate})
	assert.Error(t, err)
	_, err = New(Config{Source: src, Gate: gate})
	assert.Error(t, err)
	_, err = New(Config{Source: src, Mapper: mapper})
	assert.Error(t, err)
}

func TestRun_EndToEndScenario(t *testing.T) {
	tr := &recordingTransport{connected: true}
	a := newTestApp(t, classifier.NewScriptSource(scenario()), tr, publish.CommitAlways)

	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, []int{2048, 2560}, tr.sliders(t))
	for _, s := range tr.sent {
		assert.Equal(t, "lampada/command", s.topic)
	}

	last, ok := a.Last()
	require.True(t, ok)
	assert.Equal(t, command.Level(2560), last)
}

func TestRunCycle_Reports(t *testing.T) {
	steps := repeat(stability.Count(3), 6)
	tr := &recordingTransport{}
	a := newTestApp(t, classifier.NewScriptSource(steps), tr, publish.CommitAlways)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		r, err := a.RunCycle(ctx)
		require.NoError(t, err)
		assert.False(t, r.Stable)
		assert.Equal(t, publish.NoCandidate, r.Result)
	}
	assert.Equal(t, stability.StateAccumulating, a.BufferState())

	r, err := a.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, r.Stable)
	assert.Equal(t, 3, r.StableCount)
	assert.Equal(t, command.Level(3072), r.Candidate)
	assert.Equal(t, publish.Published, r.Result)

	r, err = a.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, publish.Suppressed, r.Result)

	_, err = a.RunCycle(ctx)
	assert.ErrorIs(t, err, classifier.ErrSourceClosed)

	assert.Len(t, tr.sent, 1)
}

func TestRunCycle_TransientErrorSkipsFrame(t *testing.T) {
	// failures in the middle of a run of 1s must not reset the buffer
	src := &flakySource{
		steps:  repeat(stability.Count(1), 5),
		failOn: map[int]bool{3: true, 4: true},
	}
	tr := &recordingTransport{}
	a := newTestApp(t, src, tr, publish.CommitAlways)

	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, []int{2048}, tr.sliders(t))
	assert.Equal(t, 8, src.calls)
}

func TestRunCycle_PublishFailurePolicies(t *testing.T) {
	steps := repeat(stability.Count(4), 7)

	t.Run("always commits and does not retry", func(t *testing.T) {
		tr := &recordingTransport{err: errors.New("offline")}
		a := newTestApp(t, classifier.NewScriptSource(steps), tr, publish.CommitAlways)

		require.NoError(t, a.Run(context.Background()))
		assert.Len(t, tr.sent, 1)
	})

	t.Run("on_success retries each stable cycle", func(t *testing.T) {
		tr := &recordingTransport{err: errors.New("offline")}
		a := newTestApp(t, classifier.NewScriptSource(steps), tr, publish.CommitOnSuccess)

		require.NoError(t, a.Run(context.Background()))
		assert.Len(t, tr.sent, 3)

		_, ok := a.Last()
		assert.False(t, ok)
	})
}

func TestRunCycle_Journal(t *testing.T) {
	s, err := store.New(":memory:")
	require.NoError(t, err)
	defer s.Close()

	tr := &recordingTransport{}
	a := newTestApp(t, classifier.NewScriptSource(scenario()), tr, publish.CommitAlways, func(c *Config) {
		c.Journal = s.Publishes()
	})
	require.NoError(t, a.Run(context.Background()))

	list, err := s.Publishes().List(10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 2560, list[0].Level)
	assert.Equal(t, 2, list[0].FingerCount)
	assert.Equal(t, 2048, list[1].Level)
	assert.Equal(t, "lampada/command", list[1].Topic)
}

func TestRunCycle_JournalFailureIsNotFatal(t *testing.T) {
	j := &failingJournal{}
	tr := &recordingTransport{}
	a := newTestApp(t, classifier.NewScriptSource(scenario()), tr, publish.CommitAlways, func(c *Config) {
		c.Journal = j
	})

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, 2, j.calls)
	assert.Len(t, tr.sent, 2)
}

func TestRunCycle_Display(t *testing.T) {
	var shown []display.Status
	tr := &recordingTransport{connected: true}
	steps := append(repeat(stability.Count(5), 5), stability.Absent())
	a := newTestApp(t, classifier.NewScriptSource(steps), tr, publish.CommitAlways, func(c *Config) {
		c.Display = display.Func(func(s display.Status) { shown = append(shown, s) })
	})

	require.NoError(t, a.Run(context.Background()))
	require.Len(t, shown, 6)

	assert.False(t, shown[3].HasPublish)
	assert.Equal(t, stability.StateAccumulating, shown[3].State)

	assert.True(t, shown[4].HasPublish)
	assert.Equal(t, command.Level(4095), shown[4].Last)
	assert.Equal(t, stability.StateStable, shown[4].State)
	assert.True(t, shown[4].Connected)

	// the raw observation is reported, and the lamp keeps its last level
	assert.False(t, shown[5].Observation.Detected)
	assert.Equal(t, stability.StateIdle, shown[5].State)
	assert.Equal(t, command.Level(4095), shown[5].Last)
}

func TestApp_PausedSkipsCycles(t *testing.T) {
	src := &flakySource{steps: repeat(stability.Count(1), 5)}
	tr := &recordingTransport{}
	var paused int
	a := newTestApp(t, src, tr, publish.CommitAlways, func(c *Config) {
		c.Display = display.Func(func(s display.Status) {
			if s.Paused {
				paused++
			}
		})
	})
	a.SetEnabled(false)
	assert.False(t, a.IsEnabled())

	ctx, cancel := context.WithTimeout(context.Background(), 3*PausePollInterval)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, 0, src.calls)
	assert.Empty(t, tr.sent)
	assert.Greater(t, paused, 0)
}

func TestApp_StartStop(t *testing.T) {
	t.Run("stops when the source is exhausted", func(t *testing.T) {
		tr := &recordingTransport{}
		src := classifier.NewScriptSource(scenario())
		a := newTestApp(t, src, tr, publish.CommitAlways)

		assert.Nil(t, a.Done())
		a.Start(context.Background())
		a.Start(context.Background()) // no-op

		select {
		case <-a.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("loop did not end on exhausted source")
		}
		assert.NoError(t, a.Err())
		assert.Len(t, tr.sent, 2)

		a.Stop()
	})

	t.Run("stop ends a running loop and closes the source", func(t *testing.T) {
		tr := &recordingTransport{}
		src := classifier.NewScriptSource(repeat(stability.Count(2), 1000))
		a := newTestApp(t, src, tr, publish.CommitAlways, func(c *Config) {
			c.Interval = 5 * time.Millisecond
		})

		a.Start(context.Background())
		assert.Eventually(t, func() bool { return tr.count() == 1 }, 2*time.Second, 5*time.Millisecond)

		a.Stop()
		<-a.Done()

		remaining := src.Remaining()
		assert.Greater(t, remaining, 0)

		_, err := src.Observe(context.Background())
		assert.ErrorIs(t, err, classifier.ErrSourceClosed)
	})
}
