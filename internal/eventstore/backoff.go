package eventstore

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxBusyRetries is the attempt cap for busy/locked retries (spec §4.B).
const maxBusyRetries = 32

// LinearJitterBackoff implements backoff.BackOff with the policy spec
// §4.B requires for database busy/locked retries: base delay grows
// linearly (min(attempt*10, 500) ms) with ±25% jitter, for up to
// maxBusyRetries attempts. Grounded on the teacher's session/loop.go
// newRetryBackoff, which wires the same cenkalti/backoff/v4 library for
// provider-call retries with an exponential policy; this is the linear
// variant the store's own retry loop needs.
type LinearJitterBackoff struct {
	attempt int
}

// NewLinearJitterBackoff constructs a fresh backoff, attempt counter at 0.
func NewLinearJitterBackoff() *LinearJitterBackoff {
	return &LinearJitterBackoff{}
}

// NextBackOff returns the next delay, or backoff.Stop once the attempt
// cap is exceeded.
func (b *LinearJitterBackoff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt > maxBusyRetries {
		return backoff.Stop
	}
	baseMS := b.attempt * 10
	if baseMS > 500 {
		baseMS = 500
	}
	jitter := (rand.Float64()*0.5 - 0.25) * float64(baseMS) // ±25%
	delayMS := float64(baseMS) + jitter
	if delayMS < 0 {
		delayMS = 0
	}
	return time.Duration(delayMS) * time.Millisecond
}

// Reset restarts the attempt counter, satisfying backoff.BackOff.
func (b *LinearJitterBackoff) Reset() {
	b.attempt = 0
}

// retryBusy runs fn, retrying through a LinearJitterBackoff while isBusy
// classifies the returned error as a transient sqlite busy/locked error.
func retryBusy(ctx context.Context, isBusy func(error) bool, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(NewLinearJitterBackoff(), ctx))
}
