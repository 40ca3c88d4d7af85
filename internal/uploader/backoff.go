package uploader

import "time"

// backoffDelay computes the wait before retry number attempt (1-based, the
// attempt count after the failed try). The delay doubles per failure and is
// capped at max, yielding base, 2*base, 4*base and so on.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
