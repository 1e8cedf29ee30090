// Package backoff computes the delay between registration attempts.
package backoff

import "time"

// MaxDelay caps every computed delay.
const MaxDelay = 300 * time.Second

// maxShift is the largest exponent below the cap (2^8 = 256s).
const maxShift = 8

// Delay returns min(2^attempt, 300) seconds. Negative attempts are treated
// as zero. The result saturates at MaxDelay and never overflows.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift {
		return MaxDelay
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > MaxDelay {
		return MaxDelay
	}
	return d
}
