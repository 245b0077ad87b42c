package api

import "time"

type (
	// RetryConfig bounds how transient step failures are retried. Backoff
	// values are in milliseconds
	RetryConfig struct {
		BackoffType string `json:"backoff_type,omitempty"`
		InitBackoff int64  `json:"init_backoff,omitempty"`
		MaxBackoff  int64  `json:"max_backoff,omitempty"`
		MaxAttempts int    `json:"max_attempts,omitempty"`
	}
)

const (
	BackoffTypeFixed       = "fixed"
	BackoffTypeLinear      = "linear"
	BackoffTypeExponential = "exponential"
)

const (
	Millisecond int64 = 1
	Second            = 1000 * Millisecond
	Minute            = 60 * Second
)

// Duration converts a millisecond count to a time.Duration
func Duration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
