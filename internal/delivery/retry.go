package delivery

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy decides what happens after a failed send.
//
// A task is retried with exponential backoff until it has failed MaxAttempts
// times; then it is retired. Base 0 retries immediately.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
	Jitter      float64
}

// DefaultRetryPolicy matches the service defaults.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	Base:        30 * time.Second,
	Max:         time.Hour,
	Jitter:      0.1,
}

// Exhausted reports whether a task that has now failed `failures` times
// should be retired.
func (p RetryPolicy) Exhausted(failures int) bool {
	return p.MaxAttempts > 0 && failures >= p.MaxAttempts
}

// Delay returns the wait before the next attempt after `failures` failed
// attempts (failures >= 1).
func (p RetryPolicy) Delay(failures int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.MaxInterval = p.Max
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter

	var d time.Duration
	for i := 0; i < failures; i++ {
		d = b.NextBackOff()
	}
	return d
}
