package truck

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
	"go.bryk.io/x/cargonetsim/amqp"
	"go.bryk.io/x/cargonetsim/client"
	"go.bryk.io/x/cargonetsim/internal/graph"
	"go.bryk.io/x/cargonetsim/internal/wire"
)

// rawRecorder captures the slash-dialect traffic the client publishes.
type rawRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *rawRecorder) Publish(context.Context, interface{}, string) error { return nil }

func (r *rawRecorder) PublishRaw(_ context.Context, body []byte, _ string) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, string(body))
	r.mu.Unlock()
	return nil
}

func (r *rawRecorder) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func newTestClient(t *testing.T) (*Client, *rawRecorder) {
	t.Helper()
	c := New("/opt/trucksim/bin/trucksim", client.Config{Host: "localhost", Port: 5672})
	rec := &rawRecorder{}
	c.Bind(rec)
	// pretend a simulator process is already attached to network "N"
	done := make(chan struct{})
	close(done)
	c.processes["N"] = &simProcess{cmd: &exec.Cmd{}, done: done}
	c.totalSimTimes["N"] = 3600
	return c, rec
}

func deliver(c *Client, body string) {
	c.handleDelivery(amqp.Delivery{
		Body:       []byte(body),
		RoutingKey: "CargoNetSim.Response.TruckNetSim.N",
	})
}

func TestSyncRequestAnswersGoAhead(t *testing.T) {
	assert := tdd.New(t)
	c, rec := newTestClient(t)

	// SYNC/SYNC_REQ at t=10 with horizon 3600
	deliver(c, "7//1/1/////10/3600")

	assert.Equal(10.0, c.SimulationTime("N"))
	msgs := rec.sent()
	assert.Len(msgs, 1)
	reply, err := wire.ParseTruckMessage(msgs[0])
	assert.Nil(err)
	assert.Equal(wire.TruckSyncGo, reply.Code)
	assert.Equal(7, reply.RequestID)

	// progress follows the simulation clock
	assert.InDelta(10.0/3600*100, c.ProgressPercentage("N"), 0.001)
}

func TestAddTripUsesNetworkGraph(t *testing.T) {
	assert := tdd.New(t)
	c, rec := newTestClient(t)

	g := graph.New()
	g.AddSegment(graph.Segment{ID: "21", From: "5", To: "7", Cost: 1})
	g.AddSegment(graph.Segment{ID: "22", From: "7", To: "8", Cost: 1})
	g.AddSegment(graph.Segment{ID: "23", From: "8", To: "9", Cost: 1})
	c.SetNetworkGraph(g)

	tripID, err := c.AddTrip(context.Background(), "N", "5", "9", nil)
	assert.Nil(err)
	assert.Equal("10000", tripID)

	msgs := rec.sent()
	assert.Len(msgs, 1)
	assert.Contains(msgs[0], "21,22,23")

	state := c.TruckState("N", tripID)
	assert.NotNil(state)
	assert.Equal("5", state.Origin)
	assert.Equal("9", state.Destination)
	assert.False(state.Completed)

	// ids keep incrementing
	second, err := c.AddTrip(context.Background(), "N", "5", "9", nil)
	assert.Nil(err)
	assert.Equal("10001", second)
}

func TestAddTripAsyncResolvesOnTripEnd(t *testing.T) {
	assert := tdd.New(t)
	c, _ := newTestClient(t)

	future, err := c.AddTripAsync(context.Background(), "N", "5", "9", []map[string]interface{}{
		{"containerID": "C1"},
	})
	assert.Nil(err)
	assert.Len(c.Containers().VehicleContainers("Truck_10000"), 1)

	// simulator reports the trip end
	payload := `{"Trip_ID":"10000","Origin":"5","Destination":"9","Trip_Distance":42.5,"Fuel_Consumption":3.1,"Travel_Time":360}`
	deliver(c, "9//2/1/////"+payload)

	select {
	case result := <-future:
		assert.True(result.Successful)
		assert.Equal("10000", result.TripID)
		assert.Greater(result.TravelTime, 0.0)
		assert.Equal(42.5, result.Distance)
	case <-time.After(5 * time.Second):
		t.Fatal("trip future never resolved")
	}

	state := c.TruckState("N", "10000")
	assert.NotNil(state)
	assert.True(state.Completed)
}

func TestTripInfoUpdatesState(t *testing.T) {
	assert := tdd.New(t)
	c, _ := newTestClient(t)

	_, err := c.AddTrip(context.Background(), "N", "5", "9", nil)
	assert.Nil(err)

	payload := `{"Trip_ID":"10000","Trip_Distance":10.5,"Travel_Time":60}`
	deliver(c, "9//2/2/////"+payload)

	state := c.TruckState("N", "10000")
	assert.NotNil(state)
	assert.Equal(10.5, state.Distance)
	assert.False(state.Completed)
}

func TestCancelTrip(t *testing.T) {
	assert := tdd.New(t)
	c, _ := newTestClient(t)

	future, err := c.AddTripAsync(context.Background(), "N", "5", "9", nil)
	assert.Nil(err)
	assert.True(c.CancelTrip("10000", "test cancel"))

	result := <-future
	assert.False(result.Successful)
	assert.Equal("test cancel", result.ErrorMessage)

	// cancelling twice fails
	assert.False(c.CancelTrip("10000", "again"))
}

func TestMalformedDeliveryDropped(t *testing.T) {
	assert := tdd.New(t)
	c, rec := newTestClient(t)
	deliver(c, "not-a-truck-message")
	assert.Len(rec.sent(), 0)
}

func TestEndSimulatorSendsSyncEnd(t *testing.T) {
	assert := tdd.New(t)
	c, rec := newTestClient(t)

	deliver(c, "3//1/1/////50/3600")
	assert.Nil(c.EndSimulator(context.Background(), []string{"N"}))

	msgs := rec.sent()
	var end string
	for _, m := range msgs {
		parsed, err := wire.ParseTruckMessage(m)
		if err == nil && parsed.Code == wire.TruckSyncEnd && parsed.Type == wire.TruckSync {
			end = m
		}
	}
	assert.NotEmpty(end)
	assert.True(strings.Contains(end, "/50/"))
}

func TestResetFailsPendingTrips(t *testing.T) {
	assert := tdd.New(t)
	c, _ := newTestClient(t)

	future, err := c.AddTripAsync(context.Background(), "N", "5", "9", nil)
	assert.Nil(err)

	c.Reset()
	result := <-future
	assert.False(result.Successful)
	assert.Equal(0.0, c.SimulationTime("N"))
}
