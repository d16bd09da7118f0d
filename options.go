package swizzle

import "go.uber.org/zap"

// Option configures a Redefinition.
type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
