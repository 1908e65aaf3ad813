package rates

import "time"

// Allow applies a fixed-window rate limit. Callers keep (start, count) per
// action and feed them back in; window<=0 or max<=0 disables the limit.
func Allow(now, start time.Time, count int, window time.Duration, max int) (newStart time.Time, newCount int, ok bool, retryAfter time.Duration) {
	newStart = start
	newCount = count
	if window <= 0 || max <= 0 {
		return newStart, newCount, true, 0
	}

	if now.Sub(newStart) >= window {
		newStart = now
		newCount = 0
	}
	newCount++
	if newCount <= max {
		return newStart, newCount, true, 0
	}
	return newStart, newCount, false, newStart.Add(window).Sub(now)
}
