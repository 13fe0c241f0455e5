package realtime

import "time"

const (
	baseDelay = time.Second
	maxDelay  = 30 * time.Second
)

// Backoff returns the reconnect delay for attempt n (n starting at 1):
// 1s, 2s, 4s, 8s, 16s, then capped at 30s.
func Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if n > 6 {
		return maxDelay
	}
	d := baseDelay << uint(n-1)
	if d > maxDelay {
		return maxDelay
	}
	return d
}
