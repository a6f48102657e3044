package nats

import "time"

// Option configures the NATS transport.
type Option func(*options)

type options struct {
	dialTimeout   time.Duration
	maxReconnects int
	// flush makes Put wait for the server to process the publish.
	flush bool
}

func defaults() options {
	return options{
		dialTimeout:   10 * time.Second,
		maxReconnects: 0, // a broken session is reported, not healed
	}
}

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithMaxReconnects sets how many times the client reconnects on its own.
func WithMaxReconnects(n int) Option {
	return func(o *options) { o.maxReconnects = n }
}

// WithFlush makes every Put round-trip to the server before returning.
func WithFlush(f bool) Option {
	return func(o *options) { o.flush = f }
}
