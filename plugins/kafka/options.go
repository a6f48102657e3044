package kafka

import (
	"crypto/tls"
	"time"

	"github.com/segmentio/kafka-go"
)

// Option configures the Kafka transport.
type Option func(*options)

type options struct {
	// Writer
	balancer     kafka.Balancer
	requiredAcks kafka.RequiredAcks
	batchTimeout time.Duration

	// Reader
	partition int
	maxBytes  int
	maxWait   time.Duration

	// General
	dialTimeout time.Duration
	tls         *tls.Config
	sasl        bool
}

func defaults() options {
	return options{
		balancer:     &kafka.LeastBytes{},
		requiredAcks: kafka.RequireOne,
		batchTimeout: 5 * time.Millisecond,
		partition:    0,
		maxBytes:     10e6, // 10 MB
		maxWait:      100 * time.Millisecond,
		dialTimeout:  10 * time.Second,
		sasl:         true,
	}
}

// WithBalancer sets the partition balancer for request writers.
func WithBalancer(b kafka.Balancer) Option {
	return func(o *options) { o.balancer = b }
}

// WithRequiredAcks sets how many replicas must acknowledge a put.
func WithRequiredAcks(a kafka.RequiredAcks) Option {
	return func(o *options) { o.requiredAcks = a }
}

// WithPartition sets the partition reply readers consume.
func WithPartition(p int) Option {
	return func(o *options) { o.partition = p }
}

// WithMaxBytes sets the maximum bytes per fetch.
func WithMaxBytes(n int) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithMaxWait sets the maximum wait time for fetches.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) { o.maxWait = d }
}

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithTLS enables TLS for every connection.
func WithTLS(cfg *tls.Config) Option {
	return func(o *options) { o.tls = cfg }
}

// WithSASL controls whether credentials are sent with SASL/PLAIN.
func WithSASL(enabled bool) Option {
	return func(o *options) { o.sasl = enabled }
}
