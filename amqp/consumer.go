package amqp

// Consumer is the receiving half of a Transport: one dedicated broker
// connection delivering simulator events and command replies.
type Consumer struct {
	link *link
}

// NewConsumer dials a dedicated receive connection, retrying with linear
// backoff up to MaxConnectAttempts before giving up. The connection is
// monitored and recovered automatically afterwards.
func NewConsumer(addr string, options ...Option) (*Consumer, error) {
	l, err := dial(addr, "recv", options...)
	if err != nil {
		return nil, err
	}
	return &Consumer{link: l}, nil
}

// Subscribe opens an auto-acknowledged delivery channel on the given
// queue. The channel closes when the connection drops; callers should wait
// on Status for the next ready notification, then subscribe again (the
// queue and its bindings are re-declared during recovery).
func (c *Consumer) Subscribe(queue string) (<-chan Delivery, error) {
	return c.link.consume(queue)
}

// Status delivers readiness transitions: true after every successful
// (re)connect, false when the connection is lost.
func (c *Consumer) Status() <-chan bool {
	return c.link.status
}

// Ready reports whether the underlying connection is currently usable.
func (c *Consumer) Ready() bool {
	return c.link.isReady()
}

// Close terminates the receive connection and any open subscription.
func (c *Consumer) Close() error {
	return c.link.shutdown()
}
