package store

import "time"

// Default lock timing.
const (
	DefaultLockTimeout  = 5 * time.Second
	DefaultRetryBackoff = 10 * time.Millisecond
	DefaultShards       = 32
)

// Observer receives lock contention signals.
type Observer interface {
	// LockWaited reports a lock acquired after at least one retry.
	LockWaited(wait time.Duration)
	// LockTimedOut reports a lock acquisition that hit the timeout.
	LockTimedOut()
}

type nopObserver struct{}

func (nopObserver) LockWaited(time.Duration) {}
func (nopObserver) LockTimedOut()            {}

type options struct {
	lockTimeout  time.Duration
	retryBackoff time.Duration
	shards       int
	observer     Observer
}

// Option configures a Store.
type Option func(*options)

// WithLockTimeout bounds how long Get and GetMut retry a contended entry.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithRetryBackoff sets the sleep between lock attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryBackoff = d
		}
	}
}

// WithShards sets the number of map shards.
func WithShards(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shards = n
		}
	}
}

// WithObserver reports lock contention to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}
