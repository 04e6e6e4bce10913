package fetch

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// backoffPolicy implements jittered exponential backoff between transport
// retries.
type backoffPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func newBackoffPolicy(maxRetries int, base, max time.Duration) backoffPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if base <= 0 {
		base = 2 * time.Second
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	return backoffPolicy{maxRetries: maxRetries, baseDelay: base, maxDelay: max}
}

// delay returns the wait before retry attempt (1-based).
func (p backoffPolicy) delay(attempt int) time.Duration {
	d := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(p.maxDelay) {
		d = float64(p.maxDelay)
	}
	half := time.Duration(d / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
