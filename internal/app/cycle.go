package app

import (
	"context"
	"errors"

	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/command"
	"github.com/ayusman/mudra/internal/publish"
	"github.com/ayusman/mudra/internal/stability"
	"github.com/ayusman/mudra/internal/store"
)

// Report describes what one cycle did.
type Report struct {
	Observation stability.Observation
	Skipped     bool // the source failed transiently; nothing else ran

	Stable       bool // buffer full and unanimous
	StableCount  int
	Candidate    command.Level
	HasCandidate bool // stable count has a mapped level

	Result     publish.Result
	PublishErr error
}

// RunCycle performs one observe, buffer, evaluate, map, publish and display
// step. It returns an error only when the source is closed; transient source
// failures and transport failures are logged and reported.
func (a *App) RunCycle(ctx context.Context) (Report, error) {
	obs, err := a.config.Source.Observe(ctx)
	if err != nil {
		if errors.Is(err, classifier.ErrSourceClosed) {
			return Report{Skipped: true}, err
		}
		a.logger.Warn("observation failed, skipping frame", "error", err)
		return Report{Skipped: true, Observation: stability.Absent()}, nil
	}

	r := Report{Observation: obs}

	a.buffer.Observe(obs)
	if count, ok := stability.Evaluate(a.buffer); ok {
		r.Stable = true
		r.StableCount = count
		r.Candidate, r.HasCandidate = a.config.Mapper.Map(count)
		if !r.HasCandidate {
			a.logger.Debug("stable count has no mapping", "fingers", count)
		}
	}

	r.Result, r.PublishErr = a.config.Gate.MaybePublish(r.Candidate, r.HasCandidate)

	switch {
	case r.Result == publish.Published && r.PublishErr != nil:
		a.logger.Warn("publish failed", "fingers", r.StableCount, "slider", int(r.Candidate), "error", r.PublishErr)
	case r.Result == publish.Published:
		a.logger.Info("command published",
			"fingers", r.StableCount,
			"slider", int(r.Candidate),
			"brightness_percent", r.Candidate.Percent(),
			"topic", a.config.Gate.Topic(),
		)
	case r.PublishErr != nil:
		a.logger.Error("command not published", "error", r.PublishErr)
	}

	if r.Result == publish.Published {
		a.journal(r)
	}

	a.show(obs, false)
	return r, nil
}

func (a *App) journal(r Report) {
	if a.config.Journal == nil {
		return
	}

	p := &store.Publish{
		FingerCount: r.StableCount,
		Level:       int(r.Candidate),
		Topic:       a.config.Gate.Topic(),
	}
	if r.PublishErr != nil {
		p.Error = r.PublishErr.Error()
	}

	if err := a.config.Journal.Record(p); err != nil {
		a.logger.Warn("failed to journal publish", "error", err)
	}
}
