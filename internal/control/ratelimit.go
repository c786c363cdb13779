// v0
// ratelimit.go
package control

import "time"

// RateLimit clamps a desired actuator value so the change from the
// previously issued value never exceeds maxSlewPerS * elapsed. Within the
// limit the desired value passes through unchanged. The function is
// stateless; the supervisor threads the previous value across ticks.
func RateLimit(desired, prev, maxSlewPerS float64, elapsed time.Duration) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	maxDelta := maxSlewPerS * elapsed.Seconds()
	delta := desired - prev
	if delta > maxDelta {
		return prev + maxDelta
	}
	if delta < -maxDelta {
		return prev - maxDelta
	}
	return desired
}
