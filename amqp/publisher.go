package amqp

// MessageOptions adjust how one message is published.
type MessageOptions struct {
	// Exchange to publish to; CargoNetSim clients always address their
	// topic exchange, never the default one.
	Exchange string

	// RoutingKey selects which queue(s) the topic exchange routes the
	// message to, e.g. "CargoNetSim.Command.ShipNetSim".
	RoutingKey string

	// TTL, in seconds, after which an undelivered message is dropped.
	// Heartbeats use a short TTL so stale liveness signals never queue up.
	TTL int

	// Mandatory messages are returned by the broker when no bound queue
	// matches the routing key; returns are logged by the link watcher.
	Mandatory bool

	// Persistent messages survive a broker restart when routed to durable
	// queues. All command traffic is persistent.
	Persistent bool
}

// Publisher is the sending half of a Transport: one dedicated broker
// connection publishing confirmed messages.
type Publisher struct {
	link *link
}

// NewPublisher dials a dedicated send connection, retrying with linear
// backoff up to MaxConnectAttempts before giving up. The connection is
// monitored and recovered automatically afterwards.
func NewPublisher(addr string, options ...Option) (*Publisher, error) {
	l, err := dial(addr, "send", options...)
	if err != nil {
		return nil, err
	}
	return &Publisher{link: l}, nil
}

// Push publishes one message and waits for the broker's confirmation,
// reporting whether the broker acknowledged it. Each call is a single
// attempt; retry policy belongs to the caller (see Transport.Publish).
func (p *Publisher) Push(msg Message, opts MessageOptions) (bool, error) {
	return p.link.push(msg, opts)
}

// Ready reports whether the underlying connection is currently usable.
func (p *Publisher) Ready() bool {
	return p.link.isReady()
}

// Close terminates the send connection.
func (p *Publisher) Close() error {
	return p.link.shutdown()
}
