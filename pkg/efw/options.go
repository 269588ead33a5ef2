package efw

import "time"

const (
	DefaultTimeout     = 200 * time.Millisecond
	defaultExpiredKeys = 64
)

type opts struct {
	timeout     time.Duration
	expiredKeys int
}

type Option func(o *opts)

// WithTimeout sets the timeout used by Transact when the caller passes
// zero.
func WithTimeout(d time.Duration) Option {
	return func(o *opts) {
		o.timeout = d
	}
}

// WithExpiredKeys sets how many timed out transactions are remembered to
// tell late responses apart from unknown ones.
func WithExpiredKeys(n int) Option {
	return func(o *opts) {
		o.expiredKeys = n
	}
}
