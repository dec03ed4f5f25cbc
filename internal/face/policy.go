package face

import "time"

// RecoveryPolicy decides when a stalled classifier is torn down and reloaded.
type RecoveryPolicy struct {
	// PollInterval trades CPU cost for detection latency.
	PollInterval time.Duration
	// MaxConsecutiveErrors failed inferences in a row trigger recovery.
	MaxConsecutiveErrors int
	// MaxStaleness without a successful inference triggers recovery.
	MaxStaleness time.Duration
	// RecoveryDelay is the pause between discarding the classifier and reloading it.
	RecoveryDelay time.Duration
	// RetryDelay is the longer pause before the single retry of a failed recovery.
	RetryDelay time.Duration
}

// DefaultRecoveryPolicy returns the production tuning.
func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{
		PollInterval:         300 * time.Millisecond,
		MaxConsecutiveErrors: 3,
		MaxStaleness:         10 * time.Second,
		RecoveryDelay:        time.Second,
		RetryDelay:           5 * time.Second,
	}
}

// ShouldRecover reports whether either threshold has been reached.
func (p RecoveryPolicy) ShouldRecover(consecutiveErrors int, sinceSuccess time.Duration) bool {
	if p.MaxConsecutiveErrors > 0 && consecutiveErrors >= p.MaxConsecutiveErrors {
		return true
	}
	return p.MaxStaleness > 0 && sinceSuccess >= p.MaxStaleness
}
