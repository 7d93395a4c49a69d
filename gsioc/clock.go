package gsioc

import (
	"context"
	"time"

	"github.com/arloliu/go-gsioc/internal/pool"
)

// Clock provides the time source for protocol waits and timeouts.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Sleep waits for d, returning ctx.Err() if ctx ends first.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock. Sleep suspends only the calling goroutine.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	return pool.Sleep(ctx, d)
}
