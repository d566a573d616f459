package process

import "time"

// DefaultWaitTimeout bounds every wait for a remote thread.
const DefaultWaitTimeout = 10 * time.Second

// Options holds configuration shared by the platform backends
type Options struct {
	// WaitTimeout bounds the wait for a remote thread. On expiry the operation fails with
	// ErrExecutionTimeout and its remote memory is leaked.
	WaitTimeout time.Duration

	// SkipSharedBaseCheck disables the check that the loader library sits at the same base
	// in the target as in the caller.
	SkipSharedBaseCheck bool
}

// Option is a function that configures Options
type Option func(*Options)

func WithWaitTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.WaitTimeout = d
		}
	}
}

func WithSkipSharedBaseCheck(skip bool) Option {
	return func(o *Options) {
		o.SkipSharedBaseCheck = skip
	}
}

// NewOptions applies opts over the defaults
func NewOptions(opts ...Option) Options {
	o := Options{
		WaitTimeout: DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
