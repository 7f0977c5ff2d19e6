// Package train implements the client for the train network simulator,
// mirroring the ship client: typed commands over the shared base plus a
// per-network cache of train states and results fed by server events.
package train

import (
	"context"
	"strconv"
	"sync"

	"go.bryk.io/x/cargonetsim/client"
	"go.bryk.io/x/cargonetsim/internal/wire"
	xlog "go.bryk.io/x/cargonetsim/log"
)

// Default broker topology for the train simulator.
const (
	DefaultExchange      = "CargoNetSim.Exchange"
	DefaultCommandQueue  = "CargoNetSim.CommandQueue.TrainNetSim"
	DefaultResponseQueue = "CargoNetSim.ResponseQueue.TrainNetSim"
	DefaultSendKey       = "CargoNetSim.Command.TrainNetSim"
	DefaultReceiveKey    = "CargoNetSim.Response.TrainNetSim"
)

// Train describes one consist to load into a simulation.
type Train struct {
	ID         string
	PathNodes  []int
	Attributes map[string]interface{}
}

func (t Train) toJSON() map[string]interface{} {
	out := make(map[string]interface{}, len(t.Attributes)+2)
	for k, v := range t.Attributes {
		out[k] = v
	}
	out["trainUserID"] = t.ID
	if len(t.PathNodes) > 0 {
		nodes := make([]interface{}, len(t.PathNodes))
		for i, n := range t.PathNodes {
			nodes[i] = n
		}
		out["trainPathOnNodeIds"] = nodes
	}
	return out
}

// DestinationID returns the last node of the train's path, used to resolve
// the terminal containers are dropped at on arrival.
func (t Train) DestinationID() (int, bool) {
	if len(t.PathNodes) == 0 {
		return 0, false
	}
	return t.PathNodes[len(t.PathNodes)-1], true
}

// Client talks to a running train simulator.
type Client struct {
	*client.Base
	log xlog.Logger

	mu sync.RWMutex
	// networkResults tracks known networks and their latest results.
	networkResults map[string]*SimulationResults
	// trainStates holds the latest reported states per network.
	trainStates map[string][]*State
	// loadedTrains indexes every train handed to the simulator by id.
	loadedTrains map[string]Train
	// terminalAliases resolves a (network, destination node) pair to the
	// terminal aliases containers are unloaded to.
	terminalAliases map[string][]string
}

// New builds a train client for the given broker endpoint. Zero-value
// topology fields in cfg are filled with the train simulator defaults.
func New(cfg client.Config) *Client {
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
	cfg.ClientType = wire.TrainClient
	c := &Client{
		Base:            client.NewBase(cfg),
		networkResults:  make(map[string]*SimulationResults),
		trainStates:     make(map[string][]*State),
		loadedTrains:    make(map[string]Train),
		terminalAliases: make(map[string][]string),
	}
	c.log = c.Base.Log()
	c.SetMessageHandler(c.handleEvent)
	return c
}

// RegisterTerminalAliases records which terminal aliases serve the given
// destination node of a network, enabling the cascaded unload on arrival.
func (c *Client) RegisterTerminalAliases(networkName string, destinationID int, aliases []string) {
	c.mu.Lock()
	c.terminalAliases[aliasKey(networkName, destinationID)] = aliases
	c.mu.Unlock()
}

// DefineSimulator configures a new simulation network with the given nodes,
// links and trains, blocking until the server confirms creation.
func (c *Client) DefineSimulator(ctx context.Context, networkName string, timeStep float64, nodes, links []map[string]interface{}, trains []Train) error {
	params := map[string]interface{}{
		"nodesJson":   toMapSlice(nodes),
		"linksJson":   toMapSlice(links),
		"networkName": networkName,
		"timeStep":    timeStep,
	}
	if len(trains) > 0 {
		arr := make([]interface{}, 0, len(trains))
		for _, t := range trains {
			arr = append(arr, t.toJSON())
		}
		params["trains"] = arr
	}
	_, err := c.SendCommandAndWait(ctx, "defineSimulator", params, []string{"simulationCreated"}, c.CommandTimeout())
	if err != nil {
		return err
	}
	c.mu.Lock()
	for _, t := range trains {
		c.loadedTrains[t.ID] = t
	}
	c.mu.Unlock()
	return nil
}

// RunSimulator starts the simulation on the named networks ("*" expands to
// every known network) and blocks until every train has reached its
// destination.
func (c *Client) RunSimulator(ctx context.Context, networkNames []string, byTimeSteps float64) error {
	params := map[string]interface{}{
		"networkNames": toInterfaceSlice(c.expandNetworks(networkNames)),
		"byTimeSteps":  byTimeSteps,
	}
	_, err := c.SendCommandAndWait(ctx, "runSimulator", params, []string{"allTrainsReachedDestination"}, c.CommandTimeout())
	return err
}

// EndSimulator terminates the simulation on the named networks.
func (c *Client) EndSimulator(ctx context.Context, networkNames []string) error {
	params := map[string]interface{}{
		"networkNames": toInterfaceSlice(c.expandNetworks(networkNames)),
	}
	_, err := c.SendCommandAndWait(ctx, "endSimulator", params, []string{"simulationEnded"}, c.CommandTimeout())
	return err
}

// AddTrainsToSimulator loads additional trains into a running network.
func (c *Client) AddTrainsToSimulator(ctx context.Context, networkName string, trains []Train) error {
	arr := make([]interface{}, 0, len(trains))
	for _, t := range trains {
		arr = append(arr, t.toJSON())
	}
	params := map[string]interface{}{
		"network": networkName,
		"trains":  arr,
	}
	_, err := c.SendCommandAndWait(ctx, "addTrainsToSimulator", params, []string{"trainAddedToSimulator"}, c.CommandTimeout())
	if err != nil {
		return err
	}
	c.mu.Lock()
	for _, t := range trains {
		c.loadedTrains[t.ID] = t
	}
	c.mu.Unlock()
	return nil
}

// AddContainersToTrain assigns containers to a train in the given network.
func (c *Client) AddContainersToTrain(ctx context.Context, networkName, trainID string, containers []map[string]interface{}) error {
	params := map[string]interface{}{
		"networkName": networkName,
		"trainID":     trainID,
		"containers":  toMapSlice(containers),
	}
	_, err := c.SendCommandAndWait(ctx, "addContainersToTrain", params, []string{"containersAddedToTrain"}, c.CommandTimeout())
	return err
}

// UnloadContainersAtCurrentTerminal unloads a train's containers at its
// current terminal and waits for the server to confirm.
func (c *Client) UnloadContainersAtCurrentTerminal(ctx context.Context, networkName, trainID string, destinationNames []string) error {
	_, err := c.SendCommandAndWait(ctx, "unloadContainersFromTrainAtCurrentTerminal",
		unloadParams(networkName, trainID, destinationNames),
		[]string{"containersUnloaded"}, c.CommandTimeout())
	return err
}

// unloadContainers is the fire-and-forget variant used from event handlers.
func (c *Client) unloadContainers(ctx context.Context, networkName, trainID string, destinationNames []string) {
	if _, err := c.SendCommand(ctx, "unloadContainersFromTrainAtCurrentTerminal",
		unloadParams(networkName, trainID, destinationNames)); err != nil {
		c.log.WithFields(xlog.Fields{"trainID": trainID, "error": err.Error()}).Warning("failed to dispatch unload")
	}
}

func unloadParams(networkName, trainID string, destinationNames []string) map[string]interface{} {
	return map[string]interface{}{
		"networkName":                  networkName,
		"trainID":                      trainID,
		"ContainersDestinationNames":   toInterfaceSlice(destinationNames),
	}
}

// ResetServer clears all simulation state on the server and locally.
func (c *Client) ResetServer(ctx context.Context) error {
	_, err := c.SendCommandAndWait(ctx, "resetServer", nil, []string{"serverReset"}, c.CommandTimeout())
	return err
}

// TrainState returns the latest reported state of one train, or nil when
// the simulator has not reported it yet.
func (c *Client) TrainState(networkName, trainID string) *State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.trainStates[networkName] {
		if s.TrainID == trainID {
			return s
		}
	}
	return nil
}

// NetworkTrainStates returns every reported train state for one network.
func (c *Client) NetworkTrainStates(networkName string) []*State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*State, len(c.trainStates[networkName]))
	copy(out, c.trainStates[networkName])
	return out
}

// Results returns the latest simulation results for one network, or nil.
func (c *Client) Results(networkName string) *SimulationResults {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.networkResults[networkName]
}

func (c *Client) expandNetworks(names []string) []string {
	for _, n := range names {
		if n == "*" {
			c.mu.RLock()
			defer c.mu.RUnlock()
			all := make([]string, 0, len(c.networkResults))
			for network := range c.networkResults {
				all = append(all, network)
			}
			return all
		}
	}
	return names
}

// handleEvent applies state-store side effects for inbound events, issuing
// any cascaded unload only after the write lock has been released.
func (c *Client) handleEvent(msg wire.Inbound) {
	if !msg.HasEvent() {
		return
	}
	switch wire.NormalizeEventName(msg.Event) {
	case "simulationcreated":
		name := asString(msg.Raw["network"])
		c.mu.Lock()
		if _, ok := c.networkResults[name]; !ok {
			c.networkResults[name] = nil
		}
		c.mu.Unlock()
	case "trainreacheddestination":
		c.onTrainReachedDestination(msg.Raw)
	case "trainreachedterminal":
		c.onTrainReachedTerminal(msg.Raw)
	case "simulationresultsavailable":
		c.onResultsAvailable(msg.Raw)
	case "serverreset":
		c.onServerReset()
	case "erroroccurred":
		c.log.WithField("error", asString(msg.Raw["errorMessage"])).Error("simulator reported error")
	}
}

// onTrainReachedDestination records arriving train states, then unloads
// loaded containers at the destination's registered terminal aliases. The
// dispatch happens strictly after the write lock is released.
func (c *Client) onTrainReachedDestination(raw map[string]interface{}) {
	states, _ := raw["state"].(map[string]interface{})

	type unloadJob struct {
		network string
		trainID string
		aliases []string
	}
	var jobs []unloadJob

	c.mu.Lock()
	for network, v := range states {
		networkStatus, _ := v.(map[string]interface{})
		data, _ := networkStatus["trainState"].(map[string]interface{})
		if data == nil {
			continue
		}
		state := StateFromMap(data)
		c.trainStates[network] = append(c.trainStates[network], state)
		if state.ContainersCount <= 0 {
			continue
		}
		train, ok := c.loadedTrains[state.TrainID]
		if !ok {
			continue
		}
		dest, ok := train.DestinationID()
		if !ok {
			continue
		}
		if aliases := c.terminalAliases[aliasKey(network, dest)]; len(aliases) > 0 {
			jobs = append(jobs, unloadJob{network: network, trainID: state.TrainID, aliases: aliases})
		}
	}
	c.mu.Unlock()

	for _, job := range jobs {
		c.unloadContainers(context.Background(), job.network, job.trainID, job.aliases)
	}
}

func (c *Client) onTrainReachedTerminal(raw map[string]interface{}) {
	network := asString(raw["networkName"])
	trainID := asString(raw["trainID"])
	terminal := asString(raw["terminalID"])
	count := int(asFloat(raw["containersCount"]))
	if count <= 0 || terminal == "" {
		return
	}
	c.unloadContainers(context.Background(), network, trainID, []string{terminal})
}

func (c *Client) onResultsAvailable(raw map[string]interface{}) {
	results, _ := raw["results"].(map[string]interface{})
	c.mu.Lock()
	for network, v := range results {
		if data, ok := v.(map[string]interface{}); ok {
			c.networkResults[network] = ResultsFromMap(data)
		}
	}
	c.mu.Unlock()
}

func (c *Client) onServerReset() {
	c.mu.Lock()
	c.networkResults = make(map[string]*SimulationResults)
	c.trainStates = make(map[string][]*State)
	c.loadedTrains = make(map[string]Train)
	c.terminalAliases = make(map[string][]string)
	c.mu.Unlock()
	c.Base.Reset()
}

func aliasKey(networkName string, destinationID int) string {
	return networkName + "/" + strconv.Itoa(destinationID)
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func toMapSlice(in []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(in))
	for i, m := range in {
		out[i] = m
	}
	return out
}
