package train

import (
	"context"
	"sync"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
	"go.bryk.io/x/cargonetsim/client"
	"go.bryk.io/x/cargonetsim/internal/wire"
)

type serverStub struct {
	c  *Client
	mu sync.Mutex
	respond  map[string]func(cmd wire.Command) wire.Inbound
	commands []wire.Command
}

func (s *serverStub) Publish(_ context.Context, payload interface{}, _ string) error {
	cmd, ok := payload.(wire.Command)
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	builder := s.respond[cmd.Command]
	s.mu.Unlock()
	if builder != nil {
		go s.c.ProcessMessage(builder(cmd))
	}
	return nil
}

func (s *serverStub) PublishRaw(context.Context, []byte, string) error { return nil }

func (s *serverStub) sent() []wire.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Command, len(s.commands))
	copy(out, s.commands)
	return out
}

func event(name string, fields map[string]interface{}) wire.Inbound {
	raw := map[string]interface{}{"event": name}
	for k, v := range fields {
		raw[k] = v
	}
	return wire.Inbound{Event: name, Raw: raw}
}

func ack(name string) func(wire.Command) wire.Inbound {
	return func(wire.Command) wire.Inbound { return event(name, nil) }
}

func newTestClient(t *testing.T) (*Client, *serverStub) {
	t.Helper()
	c := New(client.Config{Host: "localhost", Port: 5672, CommandTimeout: 5 * time.Second})
	stub := &serverStub{c: c, respond: map[string]func(wire.Command) wire.Inbound{
		"defineSimulator": func(wire.Command) wire.Inbound {
			return event("simulationCreated", map[string]interface{}{"network": "R"})
		},
		"runSimulator":         ack("allTrainsReachedDestination"),
		"endSimulator":         ack("simulationEnded"),
		"addTrainsToSimulator": ack("trainAddedToSimulator"),
		"addContainersToTrain": ack("containersAddedToTrain"),
		"resetServer":          ack("serverReset"),
	}}
	c.Bind(stub)
	return c, stub
}

func TestDefineRunEnd(t *testing.T) {
	assert := tdd.New(t)
	c, stub := newTestClient(t)
	ctx := context.Background()

	trains := []Train{{ID: "T1", PathNodes: []int{1, 2, 7}}}
	assert.Nil(c.DefineSimulator(ctx, "R", 1.0, nil, nil, trains))
	assert.Nil(c.RunSimulator(ctx, []string{"R"}, -1))
	assert.Nil(c.EndSimulator(ctx, []string{"R"}))

	sent := stub.sent()
	assert.Equal("defineSimulator", sent[0].Command)
	assert.Equal("runSimulator", sent[1].Command)
	assert.Equal("endSimulator", sent[2].Command)
}

func TestCascadedUnloadAtDestination(t *testing.T) {
	assert := tdd.New(t)
	c, stub := newTestClient(t)
	ctx := context.Background()

	assert.Nil(c.DefineSimulator(ctx, "R", 1.0, nil, nil,
		[]Train{{ID: "T1", PathNodes: []int{1, 2, 7}}}))
	c.RegisterTerminalAliases("R", 7, []string{"Depot7"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.ProcessMessage(event("trainReachedDestination", map[string]interface{}{
			"state": map[string]interface{}{
				"R": map[string]interface{}{
					"trainState": map[string]interface{}{
						"trainUserID":     "T1",
						"containersCount": 2.0,
					},
				},
			},
		}))
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cascaded unload deadlocked")
	}

	var unload *wire.Command
	for _, cmd := range stub.sent() {
		if cmd.Command == "unloadContainersFromTrainAtCurrentTerminal" {
			cmd := cmd
			unload = &cmd
		}
	}
	assert.NotNil(unload)
	assert.Equal("T1", unload.Params["trainID"])
	assert.Equal([]interface{}{"Depot7"}, unload.Params["ContainersDestinationNames"])

	state := c.TrainState("R", "T1")
	assert.NotNil(state)
	assert.Equal(2, state.ContainersCount)
}

func TestTrainReachedTerminalTriggersUnload(t *testing.T) {
	assert := tdd.New(t)
	c, stub := newTestClient(t)

	c.ProcessMessage(event("trainReachedTerminal", map[string]interface{}{
		"networkName":     "R",
		"trainID":         "T1",
		"terminalID":      "Depot2",
		"containersCount": 1.0,
	}))

	sent := stub.sent()
	assert.Len(sent, 1)
	assert.Equal("unloadContainersFromTrainAtCurrentTerminal", sent[0].Command)
}

func TestResultsAvailable(t *testing.T) {
	assert := tdd.New(t)
	c, _ := newTestClient(t)

	c.ProcessMessage(event("simulationResultsAvailable", map[string]interface{}{
		"results": map[string]interface{}{
			"R": map[string]interface{}{
				"trainsProcessed": 4.0,
				"containersMoved": 120.0,
				"totalDistance":   980.5,
			},
		},
	}))

	results := c.Results("R")
	assert.NotNil(results)
	assert.Equal(4, results.TrainsProcessed)
	assert.Equal(120, results.ContainersMoved)
	assert.Equal(980.5, results.TotalDistance)
}

func TestResetClearsTrainState(t *testing.T) {
	assert := tdd.New(t)
	c, _ := newTestClient(t)
	ctx := context.Background()

	assert.Nil(c.DefineSimulator(ctx, "R", 1.0, nil, nil, []Train{{ID: "T1"}}))
	assert.Nil(c.ResetServer(ctx))
	tdd.Eventually(t, func() bool {
		return c.Results("R") == nil && c.TrainState("R", "T1") == nil
	}, time.Second, 10*time.Millisecond)
}
