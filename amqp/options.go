package amqp

import (
	"crypto/tls"

	xlog "go.bryk.io/x/cargonetsim/log"
)

// Option instances adjust a link's settings before it dials the broker.
type Option func(*link) error

// WithLogger sets the logger used to report link activity (connects,
// reconnects, undeliverable messages). Entries are discarded by default.
func WithLogger(logger xlog.Logger) Option {
	return func(l *link) error {
		if logger != nil {
			l.log = logger
		}
		return nil
	}
}

// WithName sets an explicit link identifier, used in log entries and as
// the prefix for generated consumer tags. Links are otherwise named
// "send-*" or "recv-*" at random.
func WithName(name string) Option {
	return func(l *link) error {
		l.name = name
		return nil
	}
}

// WithTopology declares the exchanges, queues and bindings the link
// requires. Missing entities are created on connect and re-created on
// every reconnection.
func WithTopology(topology Topology) Option {
	return func(l *link) error {
		l.topology = topology
		return nil
	}
}

// WithTLS enables AMQPS with the given settings; nil keeps plain AMQP.
func WithTLS(conf *tls.Config) Option {
	return func(l *link) error {
		l.tlsConf = conf
		return nil
	}
}

// WithPrefetch caps how many deliveries (or bytes) may be in flight on the
// receive side at once. A count of 0 means no limit.
func WithPrefetch(count, size int) Option {
	return func(l *link) error {
		l.prefetchCount = count
		l.prefetchSize = size
		return nil
	}
}
