package broker

import "time"

// ReconnectPolicy bounds the supervised reconnect task.
type ReconnectPolicy struct {
	// MaxAttempts is the number of reconnect dials before giving up.
	MaxAttempts int
	// Delay is waited before every attempt.
	Delay time.Duration
	// Backoff, when set, overrides Delay per attempt (1-based).
	Backoff func(attempt int) time.Duration
}

// DefaultReconnectPolicy is a fixed five second delay, five attempts.
var DefaultReconnectPolicy = ReconnectPolicy{
	MaxAttempts: 5,
	Delay:       5 * time.Second,
}

func (p ReconnectPolicy) delay(attempt int) time.Duration {
	if p.Backoff != nil {
		return p.Backoff(attempt)
	}
	return p.Delay
}
