package amqp

import (
	"time"

	driver "github.com/rabbitmq/amqp091-go"
)

// Topology is the broker layout a simulator client requires: its exchange,
// its command and response queues, and the bindings routing between them.
// Declarations are idempotent; existing entities are verified instead of
// re-created. Topologies serialize to YAML/JSON so a client's layout can be
// stored alongside its configuration.
type Topology struct {
	Exchanges []Exchange `json:"exchanges,omitempty" yaml:",omitempty"`
	Queues    []Queue    `json:"queues,omitempty" yaml:",omitempty"`
	Bindings  []Binding  `json:"bindings,omitempty" yaml:",omitempty"`
}

// Exchange is the routing entry point messages are published to. CargoNetSim
// uses one durable topic exchange per deployment, with per-simulator routing
// key namespaces underneath it.
type Exchange struct {
	// Unique name, e.g. "CargoNetSim.Exchange".
	Name string `json:"name"`

	// Exchange type; simulator clients use "topic" so routing keys like
	// "CargoNetSim.Command.ShipNetSim" can be matched per simulator kind.
	Kind string `json:"kind"`

	// Durable exchanges survive broker restarts.
	Durable bool `json:"durable"`

	// AutoDelete removes the exchange once the last binding is dropped.
	AutoDelete bool `json:"auto_delete" yaml:"auto_delete"`

	// Additional arguments.
	Arguments map[string]interface{} `json:"arguments,omitempty" yaml:",omitempty"`
}

// Queue stores commands awaiting a simulator, or responses awaiting a
// client. Both kinds are durable so in-flight traffic survives a broker
// restart.
type Queue struct {
	// Unique name, e.g. "CargoNetSim.CommandQueue.ShipNetSim". May be
	// empty, in which case a random name is generated; useful for
	// temporary queues.
	Name string `json:"name"`

	// Durable queues are restored on broker restart.
	Durable bool `json:"durable"`

	// AutoDelete removes the queue when its last consumer disconnects.
	AutoDelete bool `json:"auto_delete" yaml:"auto_delete"`

	// Exclusive queues belong to the declaring connection and vanish with
	// it.
	Exclusive bool `json:"exclusive"`

	// Additional arguments; see QueueOptions.AsArguments for the subset
	// CargoNetSim clients use.
	Arguments map[string]interface{} `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// Binding routes messages from an exchange into a queue for every routing
// key it lists. Command queues bind a single sending key; response queues
// may bind several receiving keys.
type Binding struct {
	Exchange string `json:"exchange" yaml:"exchange"`
	Queue    string `json:"queue" yaml:"queue"`

	// RoutingKey lists every key to bind; an empty list binds the queue
	// with the empty key.
	RoutingKey []string `json:"routing_key" yaml:"routing_key"`

	// Additional arguments.
	Arguments map[string]interface{} `json:"arguments,omitempty" yaml:",omitempty"`
}

// QueueOptions cover the per-queue arguments CargoNetSim deployments tune:
// bounded lifetimes for heartbeat-style traffic and a dead-letter target
// for rejected commands.
type QueueOptions struct {
	// MessageTTL discards messages older than the given duration; used on
	// heartbeat queues so stale liveness signals never accumulate.
	MessageTTL *time.Duration

	// Expiration deletes the queue itself after it has gone unused for
	// the given duration.
	Expiration *time.Duration

	// DLExchange receives messages that are rejected or expire.
	DLExchange string
}

// AsArguments encodes the options as queue declaration arguments.
func (qo *QueueOptions) AsArguments() map[string]interface{} {
	list := make(map[string]interface{})
	if qo.MessageTTL != nil {
		list["x-message-ttl"] = qo.MessageTTL.Milliseconds()
	}
	if qo.Expiration != nil {
		list["x-expires"] = qo.Expiration.Milliseconds()
	}
	if qo.DLExchange != "" {
		list["x-dead-letter-exchange"] = qo.DLExchange
	}
	return list
}

// declareTopology ensures every entity in the topology exists on the
// channel, creating missing ones.
func declareTopology(ch *driver.Channel, t Topology) error {
	for _, ex := range t.Exchanges {
		err := ch.ExchangeDeclare(ex.Name, ex.Kind, ex.Durable, ex.AutoDelete, false, false, ex.Arguments)
		if err != nil {
			return err
		}
	}
	for _, q := range t.Queues {
		name := q.Name
		if name == "" {
			name = randomName("queue")
		}
		_, err := ch.QueueDeclare(name, q.Durable, q.AutoDelete, q.Exclusive, false, q.Arguments)
		if err != nil {
			return err
		}
	}
	for _, b := range t.Bindings {
		keys := b.RoutingKey
		if len(keys) == 0 {
			keys = []string{""}
		}
		for _, key := range keys {
			if err := ch.QueueBind(b.Queue, key, b.Exchange, false, b.Arguments); err != nil {
				return err
			}
		}
	}
	return nil
}
