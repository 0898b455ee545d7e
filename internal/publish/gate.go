// Package publish sends lamp commands only when the commanded level changes.
package publish

import (
	"fmt"

	"github.com/ayusman/mudra/internal/command"
)

// Result is the outcome of one MaybePublish call.
type Result int

const (
	// NoCandidate means there was no stable mapped level this cycle.
	NoCandidate Result = iota
	// Suppressed means the candidate equals the last published level.
	Suppressed
	// Published means a publish call was issued for the candidate.
	Published
)

func (r Result) String() string {
	switch r {
	case NoCandidate:
		return "no_candidate"
	case Suppressed:
		return "suppressed"
	case Published:
		return "published"
	default:
		return "unknown"
	}
}

// Policy controls when the gate remembers a level as published.
type Policy int

const (
	// CommitAlways records the candidate even if the transport rejects it.
	// A failed send is never retried; only a different level goes out next.
	CommitAlways Policy = iota
	// CommitOnSuccess records the candidate only when the transport accepts
	// it, so the next identical stable reading tries again.
	CommitOnSuccess
)

// ParsePolicy converts a config value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "always":
		return CommitAlways, nil
	case "on_success":
		return CommitOnSuccess, nil
	default:
		return CommitAlways, fmt.Errorf("unknown commit policy %q", s)
	}
}

func (p Policy) String() string {
	if p == CommitOnSuccess {
		return "on_success"
	}
	return "always"
}

// Transport is the publish side of the pub/sub link.
type Transport interface {
	Publish(topic string, payload []byte) error
}

// GateConfig holds the Gate settings.
type GateConfig struct {
	Topic  string
	Codec  command.Codec
	Policy Policy
}

// Gate issues at most one publish per call and suppresses repeats of the
// last published level. It is owned by the cycle loop and not safe for
// concurrent use.
type Gate struct {
	transport Transport
	config    GateConfig
	last      command.Level
	hasLast   bool
}

// NewGate creates a Gate publishing to t. A nil codec selects JSON.
func NewGate(t Transport, config GateConfig) *Gate {
	if config.Codec == nil {
		config.Codec = command.JSONCodec{}
	}
	return &Gate{
		transport: t,
		config:    config,
	}
}

// MaybePublish publishes candidate when ok is true and candidate differs from
// the last published level.
//
// When the transport fails the returned result is still Published, together
// with the error; whether the level is remembered depends on the policy.
func (g *Gate) MaybePublish(candidate command.Level, ok bool) (Result, error) {
	if !ok {
		return NoCandidate, nil
	}
	if g.hasLast && candidate == g.last {
		return Suppressed, nil
	}

	payload, err := g.config.Codec.Marshal(command.Activate(candidate))
	if err != nil {
		return NoCandidate, fmt.Errorf("encode command: %w", err)
	}

	err = g.transport.Publish(g.config.Topic, payload)
	if err != nil {
		err = fmt.Errorf("publish level %d to %s: %w", candidate, g.config.Topic, err)
	}

	if err == nil || g.config.Policy == CommitAlways {
		g.last = candidate
		g.hasLast = true
	}

	return Published, err
}

// Last returns the last published level, or false before the first publish.
func (g *Gate) Last() (command.Level, bool) {
	return g.last, g.hasLast
}

// Topic returns the topic commands are published on.
func (g *Gate) Topic() string {
	return g.config.Topic
}
