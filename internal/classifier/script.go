package classifier

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ayusman/mudra/internal/stability"
)

// ScriptSource replays a fixed list of observations, then reports
// ErrSourceClosed. It drives dry runs and tests without a camera.
type ScriptSource struct {
	mu     sync.Mutex
	steps  []stability.Observation
	next   int
	closed bool
}

// NewScriptSource returns a source that plays back steps in order.
func NewScriptSource(steps []stability.Observation) *ScriptSource {
	return &ScriptSource{steps: steps}
}

// ParseScript reads whitespace or comma separated tokens: a finger count, or
// "-" for a frame without a hand. Lines starting with '#' are ignored.
func ParseScript(text string) ([]stability.Observation, error) {
	var steps []stability.Observation

	for lineNo, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		for _, f := range fields {
			if f == "-" {
				steps = append(steps, stability.Absent())
				continue
			}
			n, err := strconv.Atoi(f)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("line %d: invalid token %q", lineNo+1, f)
			}
			steps = append(steps, stability.Count(n))
		}
	}

	return steps, nil
}

// LoadScript parses the script file at path.
func LoadScript(path string) (*ScriptSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	steps, err := ParseScript(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	return NewScriptSource(steps), nil
}

// Observe returns the next scripted observation.
func (s *ScriptSource) Observe(ctx context.Context) (stability.Observation, error) {
	if err := ctx.Err(); err != nil {
		return stability.Absent(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.next >= len(s.steps) {
		return stability.Absent(), ErrSourceClosed
	}

	o := s.steps[s.next]
	s.next++
	return o, nil
}

// Remaining returns how many observations are left.
func (s *ScriptSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.next
}

// Close stops playback.
func (s *ScriptSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
