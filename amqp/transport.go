package amqp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.bryk.io/x/cargonetsim/errors"
	xlog "go.bryk.io/x/cargonetsim/log"
)

// Publish retry tuning, deliberately separate from the connection policy:
// failed publishes retry quickly (the link recovers underneath them), while
// connection attempts back off in seconds.
const (
	// MaxPublishAttempts bounds how many times Publish retries a single
	// message before returning an error to the caller.
	MaxPublishAttempts = 3

	// PublishRetryDelay is the linear backoff unit between publish
	// attempts: the n-th retry waits n*PublishRetryDelay.
	PublishRetryDelay = 200 * time.Millisecond
)

// Transport composes a dedicated send Publisher and receive Consumer over
// independent connections to the same broker, so that a stalled consumer
// can never block publishes and vice versa.
type Transport struct {
	log       xlog.Logger
	publisher *Publisher
	consumer  *Consumer
	exchange  string
	queue     string
	commands  Producer
	raw       Producer
}

// Open establishes both the publish and consume sides of a Transport;
// each side dials with its own bounded, linear-backoff retry loop. The
// topology's first exchange is the one commands are published to, and
// responseQueue is the queue the consume loop drains.
func Open(ctx context.Context, addr string, topology Topology, responseQueue string, log xlog.Logger) (*Transport, error) {
	if log == nil {
		log = xlog.Discard()
	}
	if len(topology.Exchanges) == 0 {
		return nil, errors.New("topology must declare the client exchange")
	}

	pub, err := NewPublisher(addr, WithTopology(topology), WithLogger(log))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open send connection")
	}
	con, err := NewConsumer(addr, WithTopology(topology), WithLogger(log))
	if err != nil {
		_ = pub.Close()
		return nil, errors.Wrap(err, "failed to open receive connection")
	}

	return &Transport{
		log:       log,
		publisher: pub,
		consumer:  con,
		exchange:  topology.Exchanges[0].Name,
		queue:     responseQueue,
		commands:  Producer{ContentType: "application/json"},
		raw:       Producer{ContentType: "text/plain"},
	}, nil
}

// Publish marshals payload as JSON and publishes it as a persistent,
// mandatory message on the client exchange, retrying with linear
// PublishRetryDelay backoff up to MaxPublishAttempts.
func (t *Transport) Publish(ctx context.Context, payload interface{}, routingKey string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}
	return t.publish(ctx, t.commands.Message(body), routingKey, 0)
}

// PublishRaw publishes a pre-encoded body as-is, used by clients (such as
// truck clients) that speak a non-JSON wire dialect.
func (t *Transport) PublishRaw(ctx context.Context, body []byte, routingKey string) error {
	return t.publish(ctx, t.raw.Message(body), routingKey, 0)
}

func (t *Transport) publish(ctx context.Context, msg Message, routingKey string, ttl int) error {
	if msg.MessageId == "" {
		msg.MessageId = uuid.New().String()
	}
	opts := MessageOptions{
		Exchange:   t.exchange,
		RoutingKey: routingKey,
		Mandatory:  true,
		Persistent: true,
		TTL:        ttl,
	}

	var lastErr error
	for attempt := 1; attempt <= MaxPublishAttempts; attempt++ {
		confirmed, err := t.publisher.Push(msg, opts)
		if err == nil && confirmed {
			return nil
		}
		lastErr = err
		if lastErr == nil {
			lastErr = errors.New("publish not confirmed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * PublishRetryDelay):
		}
	}
	return errors.Wrap(lastErr, "failed to publish message")
}

// InboundHandler receives each raw delivery from the response queue.
type InboundHandler func(Delivery)

// Consume drains the transport's response queue, invoking handle for every
// delivery, until ctx is done. When the receive connection drops, the loop
// waits for it to recover (queue and bindings are re-declared during
// recovery) and re-subscribes before resuming.
func (t *Transport) Consume(ctx context.Context, handle InboundHandler) error {
	for {
		deliveries, err := t.consumer.Subscribe(t.queue)
		if err != nil {
			// A failure while the link reports ready is a real error (e.g.
			// a misdeclared queue); otherwise the link is mid-recovery and
			// the next status transition retries the subscription.
			if t.consumer.Ready() {
				return errors.Wrap(err, "failed to subscribe to response queue")
			}
			select {
			case <-ctx.Done():
				return nil
			case _, ok := <-t.consumer.Status():
				if !ok {
					return nil
				}
			}
			continue
		}

		open := true
		for open {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-deliveries:
				if !ok {
					t.log.Warning("response subscription lost, re-subscribing")
					open = false
					continue
				}
				handle(msg)
			}
		}
	}
}

// StartHeartbeat periodically publishes a small liveness message on
// `routingKey + ".heartbeat"` with a 10s TTL until ctx is done, letting
// the simulator detect a dead controller independently of AMQP's own
// heartbeat.
func (t *Transport) StartHeartbeat(ctx context.Context, routingKey string, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				beat := map[string]interface{}{"heartbeat": true, "ts": time.Now().UTC().Unix()}
				body, _ := json.Marshal(beat)
				_, _ = t.publisher.Push(t.commands.Message(body), MessageOptions{
					Exchange:   t.exchange,
					RoutingKey: routingKey + ".heartbeat",
					TTL:        10,
				})
			}
		}
	}()
}

// Close terminates both the publish and consume sides of the transport.
func (t *Transport) Close() error {
	pubErr := t.publisher.Close()
	conErr := t.consumer.Close()
	if pubErr != nil {
		return pubErr
	}
	return conErr
}
