package supervisor

import (
	"context"
	"time"
)

// Clock abstracts wall-clock time so state machine tests run without real
// sleeps. The supervisor only ever needs "what time is it" and "wait this
// long unless cancelled".
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
