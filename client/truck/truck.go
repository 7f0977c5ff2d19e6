// Package truck implements the client for the truck traffic simulator. It
// differs from the other simulator clients in two ways: the wire format is
// a slash-delimited field protocol instead of JSON envelopes, and every
// network is backed by a simulator process this client spawns and owns.
package truck

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.bryk.io/x/cargonetsim/amqp"
	"go.bryk.io/x/cargonetsim/client"
	"go.bryk.io/x/cargonetsim/errors"
	"go.bryk.io/x/cargonetsim/internal/graph"
	"go.bryk.io/x/cargonetsim/internal/wire"
	xlog "go.bryk.io/x/cargonetsim/log"
)

// Default broker topology for the truck simulator.
const (
	DefaultExchange      = "CargoNetSim.Exchange"
	DefaultCommandQueue  = "CargoNetSim.CommandQueue.TruckNetSim"
	DefaultResponseQueue = "CargoNetSim.ResponseQueue.TruckNetSim"
	DefaultSendKey       = "CargoNetSim.Command.TruckNetSim"
	DefaultReceiveKey    = "CargoNetSim.Response.TruckNetSim"
)

// tripIDStart seeds the trip id counter; ids below it are reserved by the
// simulator itself.
const tripIDStart = 10000

// TripResult is what an asynchronous trip resolves to once the simulator
// reports the trip's end (or the trip is cancelled).
type TripResult struct {
	TripID          string
	NetworkName     string
	Origin          string
	Destination     string
	Distance        float64
	FuelConsumption float64
	TravelTime      float64
	Successful      bool
	ErrorMessage    string
}

// Client talks to one truck simulator executable per network.
type Client struct {
	*client.Base
	log     xlog.Logger
	exePath string

	mu sync.RWMutex
	// truckStates holds the latest reported trip states per network.
	truckStates map[string][]*State
	// simulationTimes / simulationHorizons / totalSimTimes track the sync
	// protocol's view of each network's clock.
	simulationTimes    map[string]float64
	simulationHorizons map[string]float64
	totalSimTimes      map[string]float64
	// lastRequestID echoes the most recent SYNC_REQ id back on replies.
	lastRequestID int
	// sentMsgCounter numbers outbound slash messages.
	sentMsgCounter int
	// tripIDCounter allocates trip correlation ids.
	tripIDCounter int
	// tripWaiters resolves AddTripAsync futures keyed by trip id.
	tripWaiters map[string]chan TripResult
	// networkGraph, when set, resolves origin/destination node pairs to
	// link paths for addTrip messages.
	networkGraph *graph.Graph
	// containers assigns container batches to vehicles by trip.
	containers *ContainerStore
	// processes owns the spawned simulator per network.
	processes map[string]*simProcess
}

// New builds a truck client that will spawn the simulator executable at
// exePath for each defined network. Zero-value topology fields in cfg are
// filled with the truck simulator defaults.
func New(exePath string, cfg client.Config) *Client {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.CommandQueue == "" {
		cfg.CommandQueue = DefaultCommandQueue
	}
	if cfg.ResponseQueue == "" {
		cfg.ResponseQueue = DefaultResponseQueue
	}
	if cfg.SendingRoutingKey == "" {
		cfg.SendingRoutingKey = DefaultSendKey
	}
	if len(cfg.ReceivingRoutingKeys) == 0 {
		cfg.ReceivingRoutingKeys = []string{DefaultReceiveKey}
	}
	cfg.ClientType = wire.TruckClient
	c := &Client{
		Base:               client.NewBase(cfg),
		exePath:            exePath,
		truckStates:        make(map[string][]*State),
		simulationTimes:    make(map[string]float64),
		simulationHorizons: make(map[string]float64),
		totalSimTimes:      make(map[string]float64),
		tripIDCounter:      tripIDStart,
		tripWaiters:        make(map[string]chan TripResult),
		containers:         NewContainerStore(),
		processes:          make(map[string]*simProcess),
	}
	c.log = c.Base.Log()
	c.SetDeliveryHandler(c.handleDelivery)
	return c
}

// SetNetworkGraph installs the road network used to resolve trip link
// paths. Node ids are the graph's terminal names; each segment id is the
// numeric link id.
func (c *Client) SetNetworkGraph(g *graph.Graph) {
	c.mu.Lock()
	c.networkGraph = g
	c.mu.Unlock()
}

// Containers exposes the per-vehicle container assignments.
func (c *Client) Containers() *ContainerStore {
	return c.containers
}

// DefineSimulator spawns the simulator process for a network: the
// executable is copied next to the master file (so its relative config
// paths resolve), then launched in controlled mode against the client's
// broker.
func (c *Client) DefineSimulator(ctx context.Context, networkName, masterFilePath string, simTime float64, configUpdates map[string]string, argsUpdates []string) error {
	args := []string{
		"--mode", "controlled",
		"--sim_time", strconv.FormatFloat(simTime, 'f', -1, 64),
		"--master", filepath.Base(masterFilePath),
	}
	args = append(args, argsUpdates...)

	host := configUpdates["MQ_HOST"]
	if host == "" {
		host = c.Config().Host
	}
	port := configUpdates["MQ_PORT"]
	if port == "" {
		port = strconv.Itoa(c.Config().Port)
	}
	args = append(args, "--amq_server", host, "--amq_port", port)

	proc, err := launchSimulator(c.exePath, masterFilePath, args)
	if err != nil {
		return errors.Wrap(err, "failed to launch truck simulator")
	}

	c.mu.Lock()
	c.processes[networkName] = proc
	c.totalSimTimes[networkName] = simTime
	c.mu.Unlock()
	return nil
}

// RunSimulator releases the sync barrier for each named network whose
// clock has not yet reached its horizon.
func (c *Client) RunSimulator(ctx context.Context, networkNames []string) error {
	c.mu.RLock()
	var msgs []string
	for _, name := range networkNames {
		if _, ok := c.processes[name]; !ok {
			continue
		}
		if c.simulationTimes[name] < c.simulationHorizons[name] {
			msgs = append(msgs, wire.FormatSyncGo(c.lastRequestID, c.simulationTimes[name], c.simulationHorizons[name]))
		}
	}
	c.mu.RUnlock()

	var first error
	for _, msg := range msgs {
		if err := c.sendRaw(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// EndSimulator sends the end-of-simulation message to each named network
// and terminates its process.
func (c *Client) EndSimulator(ctx context.Context, networkNames []string) error {
	c.mu.Lock()
	var msgs []string
	var procs []*simProcess
	for _, name := range networkNames {
		proc, ok := c.processes[name]
		if !ok {
			continue
		}
		msgs = append(msgs, wire.FormatSyncEnd(c.lastRequestID, c.simulationTimes[name]))
		procs = append(procs, proc)
	}
	c.mu.Unlock()

	var first error
	for _, msg := range msgs {
		if err := c.sendRaw(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	for _, proc := range procs {
		proc.terminate()
	}
	return first
}

// ForceKill kills every simulator process without any protocol goodbye,
// used by the manager's reset path.
func (c *Client) ForceKill() {
	c.mu.Lock()
	procs := make([]*simProcess, 0, len(c.processes))
	for _, p := range c.processes {
		procs = append(procs, p)
	}
	c.processes = make(map[string]*simProcess)
	c.mu.Unlock()
	for _, p := range procs {
		p.kill()
	}
}

// AddTrip schedules a trip from originID to destinationID and returns its
// trip id. The link path is resolved from the installed network graph;
// containers, if any, are assigned to the trip's vehicle.
func (c *Client) AddTrip(ctx context.Context, networkName, originID, destinationID string, containers []map[string]interface{}) (string, error) {
	c.mu.Lock()
	tripID := c.tripIDCounter
	c.tripIDCounter++
	msgCounter := c.sentMsgCounter
	c.sentMsgCounter++
	linkIDs := c.linkPathLocked(originID, destinationID)
	startTime := c.simulationHorizons[networkName]
	c.mu.Unlock()

	origin, err := strconv.Atoi(originID)
	if err != nil {
		return "", errors.New("origin id must be numeric: " + originID)
	}
	destination, err := strconv.Atoi(destinationID)
	if err != nil {
		return "", errors.New("destination id must be numeric: " + destinationID)
	}

	msg := wire.FormatAddTrip(msgCounter, tripID, origin, destination, startTime, linkIDs)
	if err := c.sendRaw(ctx, msg); err != nil {
		return "", err
	}

	tripIDStr := strconv.Itoa(tripID)
	c.mu.Lock()
	c.truckStates[networkName] = append(c.truckStates[networkName],
		NewState(networkName, tripIDStr, originID, destinationID))
	c.mu.Unlock()

	if len(containers) > 0 {
		c.containers.AssignToVehicle("Truck_"+tripIDStr, containers)
	}
	return tripIDStr, nil
}

// AddTripAsync schedules a trip and returns a future that resolves when
// the simulator reports the trip's end. The future yields exactly one
// TripResult; cancelled trips resolve with Successful=false.
func (c *Client) AddTripAsync(ctx context.Context, networkName, originID, destinationID string, containers []map[string]interface{}) (<-chan TripResult, error) {
	done := make(chan TripResult, 1)
	tripID, err := c.AddTrip(ctx, networkName, originID, destinationID, containers)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.tripWaiters[tripID] = done
	c.mu.Unlock()
	return done, nil
}

// CancelTrip resolves a pending trip future with a failure.
func (c *Client) CancelTrip(tripID, reason string) bool {
	c.mu.Lock()
	done, ok := c.tripWaiters[tripID]
	if ok {
		delete(c.tripWaiters, tripID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	done <- TripResult{TripID: tripID, Successful: false, ErrorMessage: reason}
	close(done)
	return true
}

// linkPathLocked resolves the link ids between two nodes; callers hold mu.
func (c *Client) linkPathLocked(originID, destinationID string) []int {
	if c.networkGraph == nil {
		return []int{1, 2, 3}
	}
	path, err := c.networkGraph.ShortestPath(originID, destinationID, nil, nil)
	if err != nil {
		return []int{1, 2, 3}
	}
	linkIDs := make([]int, 0, len(path.Segments))
	for _, seg := range path.Segments {
		if id, err := strconv.Atoi(seg.ID); err == nil {
			linkIDs = append(linkIDs, id)
		}
	}
	return linkIDs
}

// TruckState returns the latest reported state of one trip, or nil.
func (c *Client) TruckState(networkName, tripID string) *State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.truckStateLocked(networkName, tripID)
}

func (c *Client) truckStateLocked(networkName, tripID string) *State {
	for _, s := range c.truckStates[networkName] {
		if s.TripID == tripID {
			return s
		}
	}
	return nil
}

// NetworkTruckStates returns every trip state for one network.
func (c *Client) NetworkTruckStates(networkName string) []*State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*State, len(c.truckStates[networkName]))
	copy(out, c.truckStates[networkName])
	return out
}

// ProgressPercentage reports how far a network's clock has advanced
// towards its configured total simulation time, in percent.
func (c *Client) ProgressPercentage(networkName string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.totalSimTimes[networkName]
	if total <= 0 {
		total = 1
	}
	return c.simulationTimes[networkName] / total * 100
}

// SimulationTime returns a network's current simulation clock.
func (c *Client) SimulationTime(networkName string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.simulationTimes[networkName]
}

// sendRaw publishes one slash-dialect message on the send routing key.
func (c *Client) sendRaw(ctx context.Context, msg string) error {
	if !c.IsConnected() {
		return errors.New("client not ready for command execution")
	}
	return c.Publisher().PublishRaw(ctx, []byte(msg), c.Config().SendingRoutingKey)
}

// handleDelivery decodes a raw truck delivery. The simulator publishes
// either a bare slash-delimited body, or a small JSON wrapper carrying
// "body" and "networkName"; the network falls back to the routing key's
// last segment when absent.
func (c *Client) handleDelivery(d amqp.Delivery) {
	body := string(d.Body)
	networkName := routingKeyNetwork(d.RoutingKey)

	var envelope struct {
		Body        string `json:"body"`
		NetworkName string `json:"networkName"`
	}
	if err := json.Unmarshal(d.Body, &envelope); err == nil && envelope.Body != "" {
		body = envelope.Body
		if envelope.NetworkName != "" {
			networkName = envelope.NetworkName
		}
	}

	msg, err := wire.ParseTruckMessage(body)
	if err != nil {
		c.log.WithField("error", err.Error()).Warning("dropping malformed truck message")
		return
	}
	c.processTruckMessage(networkName, msg)
}

// processTruckMessage dispatches one parsed slash message. Sync requests
// update the clock under the write lock, then answer with a go-ahead after
// the lock is released; trip-end messages update state, then resolve the
// trip's future outside the lock.
func (c *Client) processTruckMessage(networkName string, msg wire.TruckMessage) {
	switch {
	case msg.Type == wire.TruckSync && msg.Code == wire.TruckSyncReq:
		simTime, horizon, err := msg.SyncTimes()
		if err != nil {
			c.log.WithField("error", err.Error()).Warning("invalid sync request")
			return
		}
		c.mu.Lock()
		c.simulationTimes[networkName] = simTime
		c.simulationHorizons[networkName] = horizon
		c.lastRequestID = msg.RequestID
		c.mu.Unlock()
		if err := c.RunSimulator(context.Background(), []string{networkName}); err != nil {
			c.log.WithField("error", err.Error()).Warning("failed to answer sync request")
		}

	case msg.Type == wire.TruckTripsInfo:
		payload, err := msg.Payload()
		if err != nil {
			c.log.WithField("error", err.Error()).Warning("invalid trip payload")
			return
		}
		switch msg.Code {
		case wire.TruckTripEnd:
			c.onTripEnd(networkName, payload)
		case wire.TruckTripInfo:
			c.mu.Lock()
			if state := c.truckStateLocked(networkName, payload.TripID); state != nil {
				state.UpdateInfo(payload)
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) onTripEnd(networkName string, payload wire.TripPayload) {
	var done chan TripResult
	var resolved TripResult

	c.mu.Lock()
	state := c.truckStateLocked(networkName, payload.TripID)
	if state != nil {
		state.CompleteFrom(payload)
		resolved = TripResult{
			TripID:          payload.TripID,
			NetworkName:     networkName,
			Origin:          payload.Origin,
			Destination:     payload.Destination,
			Distance:        payload.TripDistance,
			FuelConsumption: payload.FuelConsumption,
			TravelTime:      payload.TravelTime,
			Successful:      true,
		}
		if w, ok := c.tripWaiters[payload.TripID]; ok {
			done = w
			delete(c.tripWaiters, payload.TripID)
		}
	}
	c.mu.Unlock()

	if done != nil {
		done <- resolved
		close(done)
	}
}

// Reset clears all local state, fails pending trips and kills every
// simulator process.
func (c *Client) Reset() {
	c.mu.Lock()
	waiters := c.tripWaiters
	c.tripWaiters = make(map[string]chan TripResult)
	c.truckStates = make(map[string][]*State)
	c.simulationTimes = make(map[string]float64)
	c.simulationHorizons = make(map[string]float64)
	c.totalSimTimes = make(map[string]float64)
	c.mu.Unlock()

	for tripID, done := range waiters {
		done <- TripResult{TripID: tripID, Successful: false, ErrorMessage: "client reset"}
		close(done)
	}
	c.containers.Clear()
	c.ForceKill()
	c.Base.Reset()
}

func routingKeyNetwork(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 {
		return key[i+1:]
	}
	return key
}
