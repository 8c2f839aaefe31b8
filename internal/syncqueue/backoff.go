package syncqueue

import (
	"math/rand"
	"time"
)

// backoffDelay computes the delay before the next attempt: base doubled per
// completed attempt, jittered by +/-20%, capped at max. attempt is the
// number of attempts already made (>= 1 when a retry is being scheduled).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}

	jitter := 0.8 + rand.Float64()*0.4
	delay = time.Duration(float64(delay) * jitter)
	if delay > max {
		delay = max
	}
	if delay < 0 {
		delay = base
	}
	return delay
}
