package nl2sql

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// LinearBackOff waits Base + n*Step before the (n+1)th retry.
type LinearBackOff struct {
	Base time.Duration
	Step time.Duration

	retries int
}

var _ backoff.BackOff = (*LinearBackOff)(nil)

func (b *LinearBackOff) NextBackOff() time.Duration {
	wait := b.Base + time.Duration(b.retries)*b.Step
	b.retries++
	return wait
}

func (b *LinearBackOff) Reset() {
	b.retries = 0
}
