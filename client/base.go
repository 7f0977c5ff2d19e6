// Package client implements the base simulation-client type every simulator
// specialization (ship, train, terminal, truck) composes: a transport, an
// event registry, a command tracker, and the serialized command/event
// protocol used to talk to a running simulator.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.bryk.io/x/cargonetsim/amqp"
	"go.bryk.io/x/cargonetsim/errors"
	"go.bryk.io/x/cargonetsim/internal/registry"
	"go.bryk.io/x/cargonetsim/internal/tracker"
	"go.bryk.io/x/cargonetsim/internal/wire"
	xlog "go.bryk.io/x/cargonetsim/log"
)

// DefaultCommandTimeout is the per-command deadline CommandTimeout returns
// when Config.CommandTimeout is unset.
const DefaultCommandTimeout = 30 * time.Minute

// WaitForever makes SendCommandAndWait block until one of the expected
// events arrives, with no deadline.
const WaitForever time.Duration = -1

// Publisher is the outbound surface a client needs from its transport. The
// concrete implementation is amqp.Transport; tests substitute an in-memory
// recorder.
type Publisher interface {
	Publish(ctx context.Context, payload interface{}, routingKey string) error
	PublishRaw(ctx context.Context, body []byte, routingKey string) error
}

// ConnState models the client's connection lifecycle.
type ConnState int

// Recognized connection states. Transitions are strictly monotone per
// connect/disconnect cycle: Disconnected -> Connecting -> Connected ->
// Disconnecting -> Disconnected.
const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Disconnecting
)

// String renders a ConnState for logging.
func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// Config carries the broker connection and topology parameters shared by
// every simulation client.
type Config struct {
	Host                string
	Port                int
	Exchange            string
	CommandQueue        string
	ResponseQueue       string
	SendingRoutingKey   string
	ReceivingRoutingKeys []string
	ClientType          wire.ClientType
	Logger              xlog.Logger

	// HeartbeatInterval is the period between heartbeat publishes; the
	// transport falls back to 5s when unset.
	HeartbeatInterval time.Duration

	// CommandTimeout overrides DefaultCommandTimeout as the deadline
	// returned by CommandTimeout; SendCommandAndWait itself uses only the
	// timeout its caller passes.
	CommandTimeout time.Duration
}

// commandTimeout resolves the effective per-command deadline.
func (c Config) commandTimeout() time.Duration {
	if c.CommandTimeout != 0 {
		return c.CommandTimeout
	}
	return DefaultCommandTimeout
}

// Base composes the transport, event registry and command tracker shared by
// every simulator client specialization, and implements the
// send/wait/process protocol described for the simulation client core.
type Base struct {
	cfg       Config
	log       xlog.Logger
	transport *amqp.Transport
	pub       Publisher
	events    *registry.Registry
	tracker   *tracker.Tracker

	// handler receives every inbound message so specializations can apply
	// side effects to their state stores; it runs before waiters are woken.
	handler func(wire.Inbound)

	// serialization ensures only one command is in flight at a time, per
	// the "only one command processed at a time" invariant.
	serialization sync.Mutex

	stateMu sync.RWMutex
	state   ConnState

	// deliveryHandler overrides the default JSON decode when a
	// specialization speaks a different wire dialect (e.g. truck clients).
	deliveryHandler func(amqp.Delivery)
}

// SetDeliveryHandler overrides how raw deliveries are decoded before being
// routed. Must be called before Connect. Truck clients use this to plug in
// the slash-delimited dialect decoder instead of the default JSON one.
func (b *Base) SetDeliveryHandler(h func(amqp.Delivery)) {
	b.deliveryHandler = h
}

// SetMessageHandler installs the client-kind-specific side-effect handler
// invoked by ProcessMessage before waiters are woken. Must be called
// before Connect.
func (b *Base) SetMessageHandler(h func(wire.Inbound)) {
	b.handler = h
}

// Bind attaches an already-open publisher and marks the client connected.
// Connect does this with the real transport; tests use it to substitute an
// in-memory publisher.
func (b *Base) Bind(p Publisher) {
	b.pub = p
	b.setState(Connected)
}

// Transport exposes the underlying AMQP transport.
func (b *Base) Transport() *amqp.Transport {
	return b.transport
}

// Publisher exposes the outbound surface for specializations that publish
// in a dialect SendCommand doesn't speak (e.g. truck's slash-delimited
// messages).
func (b *Base) Publisher() Publisher {
	return b.pub
}

// Events exposes the shared event registry to specializations that need to
// register events using a decoding path different from ProcessMessage.
func (b *Base) Events() *registry.Registry {
	return b.events
}

// Log exposes the client's logger to specializations.
func (b *Base) Log() xlog.Logger {
	return b.log
}

// Config returns the client's connection configuration.
func (b *Base) Config() Config {
	return b.cfg
}

// NewBase builds a Base client ready to Connect.
func NewBase(cfg Config) *Base {
	log := cfg.Logger
	if log == nil {
		log = xlog.Discard()
	}
	return &Base{
		cfg:     cfg,
		log:     log,
		events:  registry.New(),
		tracker: tracker.New(),
		state:   Disconnected,
	}
}

// State returns the current connection state.
func (b *Base) State() ConnState {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

func (b *Base) setState(s ConnState) {
	b.stateMu.Lock()
	b.state = s
	b.stateMu.Unlock()
	connectionState.WithLabelValues(b.cfg.ClientType.String()).Set(float64(s))
}

// Connect opens the underlying transport and starts the consume loop that
// feeds ProcessMessage.
func (b *Base) Connect(ctx context.Context) error {
	b.setState(Connecting)
	addr := fmt.Sprintf("amqp://%s:%d", b.cfg.Host, b.cfg.Port)
	transport, err := amqp.Open(ctx, addr, b.topology(), b.cfg.ResponseQueue, b.log)
	if err != nil {
		b.setState(Disconnected)
		return errors.Wrap(err, "failed to connect to broker")
	}
	b.transport = transport
	b.pub = transport
	b.setState(Connected)
	transport.StartHeartbeat(ctx, b.cfg.SendingRoutingKey, b.cfg.HeartbeatInterval)

	handler := b.deliveryHandler
	if handler == nil {
		handler = b.handleDelivery
	}
	go func() {
		if err := transport.Consume(ctx, handler); err != nil {
			b.log.WithField("error", err.Error()).Warning("consume loop exited")
		}
	}()
	return nil
}

// handleDelivery decodes a raw AMQP delivery as a JSON command/event
// envelope and routes it through ProcessMessage. Truck clients use the
// slash-delimited dialect instead and install their own delivery callback
// on top of the shared transport.
func (b *Base) handleDelivery(d amqp.Delivery) {
	var msg wire.Inbound
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		b.log.WithField("error", err.Error()).Warning("failed to decode inbound message")
		return
	}
	var raw map[string]interface{}
	_ = json.Unmarshal(d.Body, &raw)
	msg.Raw = raw
	b.ProcessMessage(msg)
}

// Disconnect closes the underlying transport.
func (b *Base) Disconnect() error {
	b.setState(Disconnecting)
	defer b.setState(Disconnected)
	if b.transport == nil {
		return nil
	}
	return b.transport.Close()
}

// IsConnected reports whether the client is currently connected.
func (b *Base) IsConnected() bool {
	return b.State() == Connected
}

func (b *Base) topology() amqp.Topology {
	return amqp.Topology{
		Exchanges: []amqp.Exchange{{Name: b.cfg.Exchange, Kind: "topic", Durable: true}},
		Queues: []amqp.Queue{
			{Name: b.cfg.CommandQueue, Durable: true},
			{Name: b.cfg.ResponseQueue, Durable: true},
		},
		Bindings: []amqp.Binding{
			{Exchange: b.cfg.Exchange, Queue: b.cfg.CommandQueue, RoutingKey: []string{b.cfg.SendingRoutingKey}},
			{Exchange: b.cfg.Exchange, Queue: b.cfg.ResponseQueue, RoutingKey: b.cfg.ReceivingRoutingKeys},
		},
	}
}

// createCommandObject builds the base envelope fields shared by every
// command; specializations layer additional params on top.
func (b *Base) createCommandObject(command string, params map[string]interface{}) wire.Command {
	return wire.NewCommand(b.cfg.ClientType, command, params)
}

// SendCommand publishes a command without waiting for a response. The
// returned correlation id is tracked until the reply arrives or the
// client's command timeout elapses.
func (b *Base) SendCommand(ctx context.Context, command string, params map[string]interface{}) (string, error) {
	if !b.IsConnected() {
		return "", errors.New("client not ready for command execution")
	}
	cmd := b.createCommandObject(command, params)
	b.tracker.Track(cmd.CommandID, b.cfg.commandTimeout())
	b.log.WithFields(xlog.Fields{"command": command, "commandId": cmd.CommandID}).Debug("sending command")
	if err := b.pub.Publish(ctx, cmd, b.cfg.SendingRoutingKey); err != nil {
		b.tracker.Cancel(cmd.CommandID)
		commandsFailed.WithLabelValues(b.cfg.ClientType.String()).Inc()
		return "", errors.Wrap(err, "failed to send command")
	}
	commandsSent.WithLabelValues(b.cfg.ClientType.String()).Inc()
	return cmd.CommandID, nil
}

// CommandTimeout returns the client's effective per-command deadline, to
// be passed to SendCommandAndWait by callers that want the configured
// default rather than an explicit one.
func (b *Base) CommandTimeout() time.Duration {
	return b.cfg.commandTimeout()
}

// SendCommandAndWait sends a command and blocks until one of the expected
// events is received or the timeout elapses. A zero timeout checks once
// without blocking: it fails immediately unless an expected event was
// already registered. WaitForever (or any negative value) waits
// indefinitely. Callers wanting the configured default pass
// CommandTimeout(). An empty expectedEvents list is rejected without
// sending anything.
func (b *Base) SendCommandAndWait(ctx context.Context, command string, params map[string]interface{}, expectedEvents []string, timeout time.Duration) (map[string]interface{}, error) {
	if len(expectedEvents) == 0 {
		return nil, errors.New("no expected events provided for command: " + command)
	}

	b.serialization.Lock()
	defer b.serialization.Unlock()

	// Drop stale slots so only events registered after the send can
	// satisfy this wait.
	b.events.ClearNames(expectedEvents)
	if _, err := b.SendCommand(ctx, command, params); err != nil {
		return nil, err
	}

	waitCtx := ctx
	switch {
	case timeout == 0:
		// Expired on arrival: the registry still consumes an event that
		// was registered between the send and this check, but never
		// blocks.
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithCancel(ctx)
		cancel()
	case timeout > 0:
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	name, payload, ok := b.events.Wait(waitCtx, expectedEvents)
	if !ok {
		return nil, errors.New("timeout waiting for response to command: " + command)
	}
	b.log.WithField("event", name).Debug("received expected event")
	return payload, nil
}

// ExecuteSerialized runs fn under the command serialization lock, after
// checking that the client is connected; when it is not, fn is not called
// and a "not ready" error is returned. A SendCommandAndWait issued from fn
// on the same client blocks on that lock, which fn already holds.
func (b *Base) ExecuteSerialized(fn func() error) error {
	if !b.IsConnected() {
		return errors.New("client not ready for command execution")
	}
	b.serialization.Lock()
	defer b.serialization.Unlock()
	return fn()
}

// ProcessMessage routes an inbound delivery to the command tracker, the
// kind-specific handler and the event registry, mirroring the dual
// event/command-response nature of every message a simulator can send.
// The handler runs before the event is registered so a waiter woken by the
// event always observes the state-store side effects it implies.
func (b *Base) ProcessMessage(msg wire.Inbound) {
	if msg.HasCommandResult() {
		b.tracker.Resolve(msg.CommandID, msg.Success, msg.Raw)
		if !msg.Success && msg.Error != "" {
			b.log.WithFields(xlog.Fields{
				"commandId": msg.CommandID,
				"error":     msg.Error,
			}).Error("command failed on server")
		}
	}
	if b.handler != nil {
		b.handler(msg)
	}
	if msg.HasEvent() {
		b.events.Register(msg.Event, msg.Raw)
	}
}

// Reset fails every pending command with a synthesized failure. State
// stores owned by specializations are cleared by their own reset handling.
// Event slots are left alone: the serialization lock means the only live
// wait during a reset is the reset's own, and every wait clears its slots
// on entry anyway.
func (b *Base) Reset() {
	b.tracker.FailAll()
}
