package winmsg

import (
	"go.uber.org/zap"
)

type Option func(*Channel)

func WithLogger(l *zap.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxJobs caps how many handler invocations run concurrently.
func WithMaxJobs(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.sem = make(chan struct{}, n)
		}
	}
}

// WithStrictCorrelation makes each Request accept only the response carrying
// its own correlation id. The wire protocol is unchanged (requests always
// carry an id and responders always echo it); without this option responses
// are matched by topic alone, so two in-flight requests on one channel can
// consume each other's response.
func WithStrictCorrelation() Option {
	return func(c *Channel) {
		c.strict = true
	}
}
