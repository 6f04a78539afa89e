package exec

import "time"

// RetryPolicy governs reconnect-with-backoff for connection-level
// failures (spec.md §4.9: "50 ms -> 2 s, 8 attempts"), and the
// narrower linear-backoff retry for DDL statements that fail with a
// retryable SQLSTATE class (ADDED-3 #3).
type RetryPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int

	// DDLRetryAttempts bounds the number of attempts, the first one
	// included, for a DDL statement that fails with a retryable class
	// (serialization failure, deadlock) before it is classified as
	// terminal.
	DDLRetryAttempts int
	DDLRetryDelay    time.Duration

	// Sleep is injectable so tests can exercise the backoff schedule
	// without actually waiting; defaults to time.Sleep.
	Sleep func(time.Duration)
}

// DefaultRetryPolicy matches spec.md §4.9's literal numbers.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff:   50 * time.Millisecond,
		MaxBackoff:       2 * time.Second,
		MaxAttempts:      8,
		DDLRetryAttempts: 3,
		DDLRetryDelay:    200 * time.Millisecond,
		Sleep:            time.Sleep,
	}
}

func (p RetryPolicy) sleeper() func(time.Duration) {
	if p.Sleep != nil {
		return p.Sleep
	}
	return time.Sleep
}

// connBackoff returns the capped exponential backoff duration before
// connection-retry attempt (0-indexed).
func (p RetryPolicy) connBackoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 8
	}
	return p.MaxAttempts
}

func (p RetryPolicy) ddlRetryAttempts() int {
	if p.DDLRetryAttempts <= 0 {
		return 3
	}
	return p.DDLRetryAttempts
}

func (p RetryPolicy) ddlRetryDelay() time.Duration {
	if p.DDLRetryDelay <= 0 {
		return 200 * time.Millisecond
	}
	return p.DDLRetryDelay
}
