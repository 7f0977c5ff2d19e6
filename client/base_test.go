package client

import (
	"context"
	"sync"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
	"go.bryk.io/x/cargonetsim/errors"
	"go.bryk.io/x/cargonetsim/internal/wire"
)

// memPublisher records every publish so tests can inspect the outbound
// traffic and simulate server replies.
type memPublisher struct {
	mu       sync.Mutex
	commands []wire.Command
	raw      [][]byte
	fail     bool
}

func (p *memPublisher) Publish(_ context.Context, payload interface{}, _ string) error {
	if p.fail {
		return errSendFailed
	}
	if cmd, ok := payload.(wire.Command); ok {
		p.mu.Lock()
		p.commands = append(p.commands, cmd)
		p.mu.Unlock()
	}
	return nil
}

func (p *memPublisher) PublishRaw(_ context.Context, body []byte, _ string) error {
	if p.fail {
		return errSendFailed
	}
	p.mu.Lock()
	p.raw = append(p.raw, body)
	p.mu.Unlock()
	return nil
}

func (p *memPublisher) sent() []wire.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]wire.Command, len(p.commands))
	copy(out, p.commands)
	return out
}

var errSendFailed = errors.New("send failed")

func newTestBase(pub Publisher) *Base {
	b := NewBase(Config{
		Host:              "localhost",
		Port:              5672,
		Exchange:          "CargoNetSim.Exchange",
		SendingRoutingKey: "CargoNetSim.Command.Test",
		ClientType:        wire.ShipClient,
	})
	b.Bind(pub)
	return b
}

func TestSendCommandNotConnected(t *testing.T) {
	assert := tdd.New(t)
	b := NewBase(Config{})
	_, err := b.SendCommand(context.Background(), "ping", nil)
	assert.NotNil(err)
}

func TestSendCommandUniqueIDs(t *testing.T) {
	assert := tdd.New(t)
	pub := &memPublisher{}
	b := newTestBase(pub)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := b.SendCommand(context.Background(), "noop", nil)
		assert.Nil(err)
		assert.False(seen[id])
		seen[id] = true
	}
}

func TestSendCommandAndWait(t *testing.T) {
	assert := tdd.New(t)
	pub := &memPublisher{}
	b := newTestBase(pub)

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.ProcessMessage(wire.Inbound{
			Event: "Simulation Created",
			Raw:   map[string]interface{}{"networkName": "N"},
		})
	}()

	payload, err := b.SendCommandAndWait(context.Background(), "defineSimulator",
		map[string]interface{}{"networkName": "N"},
		[]string{"simulationCreated"}, 5*time.Second)
	assert.Nil(err)
	assert.Equal("N", payload["networkName"])
	assert.Len(pub.sent(), 1)
	assert.Equal("defineSimulator", pub.sent()[0].Command)
}

func TestSendCommandAndWaitEmptyExpected(t *testing.T) {
	assert := tdd.New(t)
	pub := &memPublisher{}
	b := newTestBase(pub)

	_, err := b.SendCommandAndWait(context.Background(), "noop", nil, nil, time.Second)
	assert.NotNil(err)
	// nothing was published
	assert.Len(pub.sent(), 0)
}

// syncPublisher registers the expected event synchronously from inside
// Publish, before SendCommandAndWait reaches its wait.
type syncPublisher struct {
	memPublisher
	b     *Base
	event string
}

func (p *syncPublisher) Publish(ctx context.Context, payload interface{}, key string) error {
	if err := p.memPublisher.Publish(ctx, payload, key); err != nil {
		return err
	}
	p.b.ProcessMessage(wire.Inbound{Event: p.event, Raw: map[string]interface{}{"event": p.event}})
	return nil
}

func TestSendCommandAndWaitZeroTimeout(t *testing.T) {
	assert := tdd.New(t)

	// with nothing registered, a zero timeout fails immediately
	b := newTestBase(&memPublisher{})
	start := time.Now()
	_, err := b.SendCommandAndWait(context.Background(), "noop", nil, []string{"done"}, 0)
	assert.NotNil(err)
	assert.Less(time.Since(start), time.Second)

	// an expected event registered between the send and the check is
	// still consumed
	b2 := NewBase(Config{ClientType: wire.ShipClient, SendingRoutingKey: "k"})
	pub := &syncPublisher{b: b2, event: "done"}
	b2.Bind(pub)
	payload, err := b2.SendCommandAndWait(context.Background(), "noop", nil, []string{"done"}, 0)
	assert.Nil(err)
	assert.Equal("done", payload["event"])
}

func TestCommandTimeout(t *testing.T) {
	assert := tdd.New(t)
	b := NewBase(Config{})
	assert.Equal(DefaultCommandTimeout, b.CommandTimeout())
	b2 := NewBase(Config{CommandTimeout: 30 * time.Second})
	assert.Equal(30*time.Second, b2.CommandTimeout())
}

func TestSendCommandAndWaitTimeout(t *testing.T) {
	assert := tdd.New(t)
	b := newTestBase(&memPublisher{})
	start := time.Now()
	_, err := b.SendCommandAndWait(context.Background(), "noop", nil, []string{"never"}, 50*time.Millisecond)
	assert.NotNil(err)
	assert.Less(time.Since(start), 2*time.Second)
}

func TestSendCommandAndWaitStaleEventIgnored(t *testing.T) {
	assert := tdd.New(t)
	b := newTestBase(&memPublisher{})

	// an event registered before the wait begins must not satisfy it
	b.ProcessMessage(wire.Inbound{Event: "done", Raw: map[string]interface{}{"stale": true}})
	_, err := b.SendCommandAndWait(context.Background(), "noop", nil, []string{"done"}, 50*time.Millisecond)
	assert.NotNil(err)
}

func TestSendCommandAndWaitPublishFailure(t *testing.T) {
	assert := tdd.New(t)
	b := newTestBase(&memPublisher{fail: true})
	_, err := b.SendCommandAndWait(context.Background(), "noop", nil, []string{"done"}, time.Second)
	assert.NotNil(err)
}

func TestSerializationOrder(t *testing.T) {
	assert := tdd.New(t)
	pub := &memPublisher{}
	b := newTestBase(pub)

	// two concurrent waits on the same client must never interleave:
	// the second send starts only after the first wait returned.
	responder := func(event string) {
		time.Sleep(20 * time.Millisecond)
		b.ProcessMessage(wire.Inbound{Event: event, Raw: map[string]interface{}{}})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		go responder("firstDone")
		_, _ = b.SendCommandAndWait(context.Background(), "first", nil, []string{"firstDone"}, 5*time.Second)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		go responder("secondDone")
		_, _ = b.SendCommandAndWait(context.Background(), "second", nil, []string{"secondDone"}, 5*time.Second)
	}()
	wg.Wait()
	sent := pub.sent()
	assert.Len(sent, 2)
	assert.Equal("first", sent[0].Command)
	assert.Equal("second", sent[1].Command)
}

func TestProcessMessageResolvesTracker(t *testing.T) {
	assert := tdd.New(t)
	b := newTestBase(&memPublisher{})
	var handled wire.Inbound
	b.SetMessageHandler(func(msg wire.Inbound) { handled = msg })
	reply := b.tracker.Track("abc", time.Minute)

	b.ProcessMessage(wire.Inbound{
		Event:     "commandCompleted",
		CommandID: "abc",
		Success:   true,
		Raw:       map[string]interface{}{"event": "commandCompleted"},
	})
	assert.Equal("commandCompleted", handled.Event)
	assert.True(b.Events().Has("commandCompleted"))
	res := <-reply
	assert.Equal("abc", res.CommandID)
	assert.True(res.Success)
}

func TestConnStateString(t *testing.T) {
	assert := tdd.New(t)
	assert.Equal("disconnected", Disconnected.String())
	assert.Equal("connecting", Connecting.String())
	assert.Equal("connected", Connected.String())
	assert.Equal("disconnecting", Disconnecting.String())
}
