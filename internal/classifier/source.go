// Package classifier produces one finger-count observation per cycle.
package classifier

import (
	"context"
	"errors"

	"github.com/ayusman/mudra/internal/stability"
)

// ErrSourceClosed is returned once a source can deliver no further
// observations. It is fatal to the cycle loop.
var ErrSourceClosed = errors.New("classifier source closed")

// Source delivers observations. Any error other than ErrSourceClosed is
// transient and the caller may simply try again on the next cycle.
type Source interface {
	Observe(ctx context.Context) (stability.Observation, error)
	Close() error
}
