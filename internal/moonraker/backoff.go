package moonraker

import "time"

// reconnectLadder is the fixed backoff schedule for session restarts.
// The final step repeats for every subsequent attempt.
var reconnectLadder = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// NextDelay returns the delay before reconnect attempt retryCount.
//
// The ladder is deterministic: 0 → 5s, 1 → 10s, 2 → 30s, 3 and above →
// 60s. Pure function; retryCount is owned and incremented by the Manager.
func NextDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(reconnectLadder) {
		return reconnectLadder[len(reconnectLadder)-1]
	}
	return reconnectLadder[retryCount]
}
