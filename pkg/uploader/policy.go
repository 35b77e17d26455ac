package uploader

import "time"

const (
	// DefaultInitialBackoff and DefaultMaxBackoff bound the retry delay
	// after consecutive upload failures.
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 32 * time.Second

	// maxWait caps how long the worker sleeps in interval mode so that
	// configuration changes are never starved.
	maxWait = 10 * time.Minute
)

// Policy is the upload scheduling state. The scheduler mutates it under its
// lock; external configuration calls go through Scheduler.
type Policy struct {
	Interval       time.Duration // 0 = real-time
	LastUpload     time.Time
	FailedAttempts int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (p *Policy) setDefaults() {
	if p.InitialBackoff == 0 {
		p.InitialBackoff = DefaultInitialBackoff
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
}

// Backoff returns the delay to apply after the current number of
// consecutive failures: min(initial * 2^(n-1), max).
func (p *Policy) Backoff() time.Duration {
	if p.FailedAttempts <= 0 {
		return 0
	}
	d := p.InitialBackoff << uint(p.FailedAttempts-1)
	if d <= 0 || d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// View is a read-only snapshot of the policy for status reporting.
type View struct {
	IntervalSeconds int       `json:"interval_seconds"`
	LastUpload      time.Time `json:"last_upload"`
	FailedAttempts  int       `json:"failed_attempts"`
}
