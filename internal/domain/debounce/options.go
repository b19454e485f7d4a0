package debounce

import "time"

type options struct {
	window time.Duration
}

// Option configures a policy.
type Option func(*options)

// WithWindow sets the cooldown window. Non-positive values keep the default.
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{window: DefaultWindow}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
