package redis

import (
	"crypto/tls"
	"time"

	"github.com/sirupsen/logrus"
)

// Option configures the Redis transport.
type Option func(*options)

type options struct {
	db          int
	keyPrefix   string
	ownerTTL    time.Duration
	dialTimeout time.Duration
	poolSize    int
	tls         *tls.Config
	logger      *logrus.Entry
}

func defaults() options {
	return options{
		keyPrefix:   "mq:",
		ownerTTL:    10 * time.Minute,
		dialTimeout: 10 * time.Second,
		poolSize:    4,
		logger:      logrus.WithField("component", "redis"),
	}
}

// WithDB selects the logical database.
func WithDB(db int) Option {
	return func(o *options) { o.db = db }
}

// WithKeyPrefix sets the prefix applied to every queue key.
func WithKeyPrefix(p string) Option {
	return func(o *options) { o.keyPrefix = p }
}

// WithOwnerTTL bounds how long an exclusive input claim survives a crashed
// owner.
func WithOwnerTTL(d time.Duration) Option {
	return func(o *options) { o.ownerTTL = d }
}

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithPoolSize sets the connection pool size per session.
func WithPoolSize(n int) Option {
	return func(o *options) { o.poolSize = n }
}

// WithTLS enables TLS.
func WithTLS(cfg *tls.Config) Option {
	return func(o *options) { o.tls = cfg }
}

// WithLogger sets the logger used for discarded list elements.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) { o.logger = l }
}
