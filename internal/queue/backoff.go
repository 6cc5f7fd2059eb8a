package queue

import (
	"math/rand"
	"time"
)

const (
	// MaxAttempts bounds the retry count before a job is parked in the
	// dead-letter sink.
	MaxAttempts = 5

	backoffBase   = time.Second
	backoffFactor = 2
	backoffCap    = 5 * time.Minute
)

// Backoff returns the delay before the (attempt+1)th retry, using
// exponential backoff with full jitter: base * factor^attempt, capped,
// then uniformly randomized in [0, capped).
func Backoff(attempt int) time.Duration {
	d := backoffBase
	for i := 0; i < attempt; i++ {
		d *= backoffFactor
		if d >= backoffCap {
			d = backoffCap
			break
		}
	}
	//nolint:gosec // jitter does not need a cryptographic RNG
	return time.Duration(rand.Int63n(int64(d) + 1))
}
