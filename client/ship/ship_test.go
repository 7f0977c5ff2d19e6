package ship

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
			return event("simulationCreated", map[string]interface{}{"networkName": "N"})
		},
		"runSimulator":        ack("allShipsReachedDestination"),
		"endSimulator":        ack("simulationEnded"),
		"addShipsToSimulator": ack("shipAddedToSimulator"),
		"resetServer":         ack("serverReset"),
	}}
	c.Bind(stub)
	return c, stub
}

func TestDefineRunEnd(t *testing.T) {
	assert := tdd.New(t)
	c, stub := newTestClient(t)
	ctx := context.Background()

	ships := []Ship{{
		ID:         "S1",
		Attributes: map[string]interface{}{"path": []interface{}{[]interface{}{0.0, 0.0}, []interface{}{1.0, 1.0}}},
	}}
	assert.Nil(c.DefineSimulator(ctx, "N", 1.0, ships, map[string][]string{"S1": {"TerminalA"}}, ""))
	assert.Nil(c.RunSimulator(ctx, []string{"N"}, -1))
	assert.Nil(c.EndSimulator(ctx, []string{"N"}))

	sent := stub.sent()
	assert.Equal("defineSimulator", sent[0].Command)
	assert.Equal("runSimulator", sent[1].Command)
	assert.Equal("endSimulator", sent[2].Command)
	assert.Equal("Default", sent[0].Params["networkFilePath"])
}

func TestWildcardExpansion(t *testing.T) {
	assert := tdd.New(t)
	c, stub := newTestClient(t)
	ctx := context.Background()

	assert.Nil(c.DefineSimulator(ctx, "N", 1.0, nil, nil, ""))
	// wait for the simulationCreated side effect to land
	tdd.Eventually(t, func() bool {
		return len(c.expandNetworks([]string{"*"})) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Nil(c.RunSimulator(ctx, []string{"*"}, -1))
	sent := stub.sent()
	last := sent[len(sent)-1]
	networks, _ := last.Params["networkNames"].([]interface{})
	assert.Equal([]interface{}{"N"}, networks)
}

// A shipReachedDestination event whose ship has a registered destination
// terminal must trigger the unload command without deadlocking, and the
// state store lock must not be held across the nested send.
func TestCascadedUnload(t *testing.T) {
	assert := tdd.New(t)
	c, stub := newTestClient(t)
	ctx := context.Background()

	assert.Nil(c.DefineSimulator(ctx, "N", 1.0,
		[]Ship{{ID: "S1"}}, map[string][]string{"S1": {"TerminalA"}}, ""))

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.ProcessMessage(event("shipReachedDestination", map[string]interface{}{
			"state": map[string]interface{}{
				"N": map[string]interface{}{
					"shipStates": map[string]interface{}{
						"shipID":          "S1",
						"containersCount": 3.0,
						"reachedDestination": true,
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
		if cmd.Command == "unloadContainersFromShipAtTerminal" {
			cmd := cmd
			unload = &cmd
		}
	}
	assert.NotNil(unload)
	assert.Equal("S1", unload.Params["shipID"])
	assert.Equal([]interface{}{"TerminalA"}, unload.Params["terminalNames"])

	// the state store was updated as well
	state := c.ShipState("N", "S1")
	assert.NotNil(state)
	assert.True(state.ReachedDestination)
	assert.Equal(3, state.ContainersCount)
}

func TestSimulationAdvancedAggregatesProgress(t *testing.T) {
	assert := tdd.New(t)
	c, _ := newTestClient(t)

	c.ProcessMessage(event("simulationAdvanced", map[string]interface{}{
		"newSimulationTime": 10.0,
		"networkNamesProgress": map[string]interface{}{
			"N1": 40.0,
			"N2": 60.0,
		},
	}))
	assert.Equal(50.0, c.Progress())
}

func TestResetClearsShipState(t *testing.T) {
	assert := tdd.New(t)
	c, _ := newTestClient(t)
	ctx := context.Background()

	assert.Nil(c.DefineSimulator(ctx, "N", 1.0, []Ship{{ID: "S1"}}, map[string][]string{"S1": {"T"}}, ""))
	assert.Nil(c.ResetServer(ctx))
	tdd.Eventually(t, func() bool {
		return len(c.AllShipStates()) == 0 && c.Progress() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSummaryDataParsing(t *testing.T) {
	assert := tdd.New(t)
	sd := NewSummaryData([]SummaryPair{
		{Text: "+ Ships:", Value: ""},
		{Text: "|-> Totals", Value: ""},
		{Text: "|_ processed", Value: "12"},
		{Text: "|_ avg trip time", Value: "36.5"},
		{Text: "~.~.~.~.~", Value: ""},
		{Text: "+ Energy", Value: ""},
		{Text: "|_ total", Value: "99.5"},
	})

	v, ok := sd.Value("Ships", "Totals", "processed")
	assert.True(ok)
	assert.Equal("12", v)

	v, ok = sd.Value("Energy", "general", "total")
	assert.True(ok)
	assert.Equal("99.5", v)

	_, ok = sd.Value("Ships", "Totals", "missing")
	assert.False(ok)
	assert.Len(sd.Categories(), 2)
}
