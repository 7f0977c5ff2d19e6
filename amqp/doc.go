/*
Package amqp provides the broker transport used to talk to CargoNetSim's
external simulators.

Every simulator client owns one Transport, composed of two independent
AMQP connections to the same broker: a send link carrying commands and
heartbeats, and a receive link delivering simulator events and replies. The
separation means a stalled consumer can never block publishes, and a lost
connection is recovered on the affected side only.

Each link declares the client's topology on connect (a durable topic
exchange, a durable command queue bound to the sending routing key, and a
durable response queue bound to each receiving routing key) and re-declares
it after every reconnection, so a restarted broker comes back with the
bindings the simulators expect.
*/
package amqp
