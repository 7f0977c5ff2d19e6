package amqp

import (
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

// The topology of a simulator client can be stored next to its
// configuration in YAML form.
var clientTopology = `
exchanges:
- name: CargoNetSim.Exchange
  kind: topic
  durable: true
queues:
- name: CargoNetSim.CommandQueue.ShipNetSim
  durable: true
- name: CargoNetSim.ResponseQueue.ShipNetSim
  durable: true
bindings:
- exchange: CargoNetSim.Exchange
  queue: CargoNetSim.CommandQueue.ShipNetSim
  routing_key:
  - CargoNetSim.Command.ShipNetSim
- exchange: CargoNetSim.Exchange
  queue: CargoNetSim.ResponseQueue.ShipNetSim
  routing_key:
  - CargoNetSim.Response.ShipNetSim
  - CargoNetSim.Response.ShipNetSim.#
`

func TestTopologyYAML(t *testing.T) {
	assert := tdd.New(t)
	tp := Topology{}
	assert.Nil(yaml.Unmarshal([]byte(clientTopology), &tp))
	assert.Len(tp.Exchanges, 1)
	assert.Equal("CargoNetSim.Exchange", tp.Exchanges[0].Name)
	assert.Equal("topic", tp.Exchanges[0].Kind)
	assert.True(tp.Exchanges[0].Durable)
	assert.Len(tp.Queues, 2)
	assert.True(tp.Queues[0].Durable)
	assert.Len(tp.Bindings, 2)
	assert.Len(tp.Bindings[1].RoutingKey, 2)

	// round trip preserves the declared layout
	enc, err := yaml.Marshal(tp)
	assert.Nil(err)
	again := Topology{}
	assert.Nil(yaml.Unmarshal(enc, &again))
	assert.Equal(tp, again)
}

func TestQueueOptionsAsArguments(t *testing.T) {
	assert := tdd.New(t)
	ttl := 10 * time.Second
	exp := time.Hour
	opts := QueueOptions{
		MessageTTL: &ttl,
		Expiration: &exp,
		DLExchange: "CargoNetSim.Dead",
	}
	args := opts.AsArguments()
	assert.Equal(int64(10000), args["x-message-ttl"])
	assert.Equal(int64(3600000), args["x-expires"])
	assert.Equal("CargoNetSim.Dead", args["x-dead-letter-exchange"])

	empty := QueueOptions{}
	assert.Empty(empty.AsArguments())
}
