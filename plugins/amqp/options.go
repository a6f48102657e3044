package amqp

import (
	"crypto/tls"
	"time"
)

// Option configures the AMQP transport.
type Option func(*options)

type options struct {
	// Connection
	vhost       string
	dialTimeout time.Duration
	heartbeat   time.Duration
	tls         *tls.Config

	// Publishing
	persistent bool
	confirm    bool
}

func defaults() options {
	return options{
		vhost:       "/",
		dialTimeout: 10 * time.Second,
		heartbeat:   60 * time.Second,
	}
}

// WithVhost sets the virtual host.
func WithVhost(v string) Option {
	return func(o *options) { o.vhost = v }
}

// WithDialTimeout bounds connection establishment per address.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithHeartbeat sets the connection heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

// WithTLS enables amqps with the given TLS configuration.
func WithTLS(cfg *tls.Config) Option {
	return func(o *options) { o.tls = cfg }
}

// WithPersistent marks published messages persistent.
func WithPersistent(p bool) Option {
	return func(o *options) { o.persistent = p }
}

// WithConfirm puts the channel in confirm mode and makes Put wait for the
// broker's acknowledgement.
func WithConfirm(c bool) Option {
	return func(o *options) { o.confirm = c }
}
