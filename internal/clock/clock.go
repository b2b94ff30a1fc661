// Package clock provides the time source used by detection and scheduling.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall-clock access so tests can pin time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// New returns the system UTC clock.
func New() Clock { return systemClock{} }

// Module wires the system clock.
var Module = fx.Module("clock",
	fx.Provide(New),
)
