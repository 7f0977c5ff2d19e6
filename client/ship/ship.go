// Package ship implements the client for the ship network simulator. It
// wraps the shared client base with typed commands for defining, running
// and ending simulations, managing ships and their containers, and keeps a
// per-network cache of ship states and results fed by server events.
package ship

import (
	"context"
	"sync"

	"go.bryk.io/x/cargonetsim/client"
	"go.bryk.io/x/cargonetsim/internal/wire"
	xlog "go.bryk.io/x/cargonetsim/log"
)

// Default broker topology for the ship simulator.
const (
	DefaultExchange      = "CargoNetSim.Exchange"
	DefaultCommandQueue  = "CargoNetSim.CommandQueue.ShipNetSim"
	DefaultResponseQueue = "CargoNetSim.ResponseQueue.ShipNetSim"
	DefaultSendKey       = "CargoNetSim.Command.ShipNetSim"
	DefaultReceiveKey    = "CargoNetSim.Response.ShipNetSim"
)

// Ship describes one vessel to load into a simulation. Attributes carries
// the full hull/engine definition the simulator expects; ID must be unique
// within a network.
type Ship struct {
	ID         string
	Attributes map[string]interface{}
}

func (s Ship) toJSON() map[string]interface{} {
	out := make(map[string]interface{}, len(s.Attributes)+1)
	for k, v := range s.Attributes {
		out[k] = v
	}
	out["shipID"] = s.ID
	return out
}

// Client talks to a running ship simulator.
type Client struct {
	*client.Base
	log xlog.Logger

	mu sync.RWMutex
	// networkResults tracks known networks and their accumulated results.
	networkResults map[string][]*SimulationResults
	// shipStates holds the latest reported states per network.
	shipStates map[string][]*State
	// loadedShips indexes every ship handed to the simulator by id.
	loadedShips map[string]Ship
	// destinationTerminals maps ship ids to the terminals containers are
	// dropped at on arrival.
	destinationTerminals map[string][]string
	// progress holds the latest advance fraction per network.
	progress map[string]float64
}

// New builds a ship client for the given broker endpoint. Zero-value
// topology fields in cfg are filled with the ship simulator defaults.
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
	cfg.ClientType = wire.ShipClient
	c := &Client{
		Base:                 client.NewBase(cfg),
		networkResults:       make(map[string][]*SimulationResults),
		shipStates:           make(map[string][]*State),
		loadedShips:          make(map[string]Ship),
		destinationTerminals: make(map[string][]string),
		progress:             make(map[string]float64),
	}
	c.log = c.Base.Log()
	c.SetMessageHandler(c.handleEvent)
	return c
}

// DefineSimulator configures a new simulation network with the given ships
// and time step, blocking until the server confirms creation.
func (c *Client) DefineSimulator(ctx context.Context, networkName string, timeStep float64, ships []Ship, destinationTerminals map[string][]string, networkPath string) error {
	if networkPath == "" {
		networkPath = "Default"
	}
	params := map[string]interface{}{
		"networkFilePath": networkPath,
		"networkName":     networkName,
		"timeStep":        timeStep,
	}
	if len(ships) > 0 {
		arr := make([]interface{}, 0, len(ships))
		for _, s := range ships {
			arr = append(arr, s.toJSON())
		}
		params["ships"] = arr
	}
	_, err := c.SendCommandAndWait(ctx, "defineSimulator", params, []string{"simulationCreated"}, c.CommandTimeout())
	if err != nil {
		return err
	}
	c.mu.Lock()
	for _, s := range ships {
		c.loadedShips[s.ID] = s
		c.destinationTerminals[s.ID] = destinationTerminals[s.ID]
	}
	c.mu.Unlock()
	return nil
}

// RunSimulator starts the simulation on the named networks ("*" expands to
// every known network) and blocks until every ship has reached its
// destination.
func (c *Client) RunSimulator(ctx context.Context, networkNames []string, byTimeSteps float64) error {
	params := map[string]interface{}{
		"networkNames": toInterfaceSlice(c.expandNetworks(networkNames)),
		"byTimeSteps":  byTimeSteps,
	}
	_, err := c.SendCommandAndWait(ctx, "runSimulator", params, []string{"allShipsReachedDestination"}, c.CommandTimeout())
	return err
}

// EndSimulator terminates the simulation on the named networks.
func (c *Client) EndSimulator(ctx context.Context, networkNames []string) error {
	params := map[string]interface{}{
		"network": toInterfaceSlice(c.expandNetworks(networkNames)),
	}
	_, err := c.SendCommandAndWait(ctx, "endSimulator", params, []string{"simulationEnded"}, c.CommandTimeout())
	return err
}

// AddShipsToSimulator loads additional ships into a running network.
func (c *Client) AddShipsToSimulator(ctx context.Context, networkName string, ships []Ship, destinationTerminals map[string][]string) error {
	arr := make([]interface{}, 0, len(ships))
	for _, s := range ships {
		arr = append(arr, s.toJSON())
	}
	params := map[string]interface{}{
		"networkName": networkName,
		"ships":       arr,
	}
	_, err := c.SendCommandAndWait(ctx, "addShipsToSimulator", params, []string{"shipAddedToSimulator"}, c.CommandTimeout())
	if err != nil {
		return err
	}
	c.mu.Lock()
	for _, s := range ships {
		c.loadedShips[s.ID] = s
		c.destinationTerminals[s.ID] = destinationTerminals[s.ID]
	}
	c.mu.Unlock()
	return nil
}

// AddContainersToShip assigns containers to a ship in the given network.
func (c *Client) AddContainersToShip(ctx context.Context, networkName, shipID string, containers []map[string]interface{}) error {
	params := map[string]interface{}{
		"networkName": networkName,
		"shipID":      shipID,
		"containers":  toContainerSlice(containers),
	}
	_, err := c.SendCommandAndWait(ctx, "addContainersToShip", params, []string{"containersAddedToShip"}, c.CommandTimeout())
	return err
}

// UnloadContainersFromShipAtTerminals unloads a ship's containers onto the
// named terminals and waits for the server to confirm.
func (c *Client) UnloadContainersFromShipAtTerminals(ctx context.Context, networkName, shipID string, terminalNames []string) error {
	_, err := c.SendCommandAndWait(ctx, "unloadContainersFromShipAtTerminal",
		unloadParams(networkName, shipID, terminalNames),
		[]string{"shipUnloadedContainers"}, c.CommandTimeout())
	return err
}

// unloadContainers is the fire-and-forget variant used from event handlers;
// it must never block on the serialization lock held by a caller's wait.
func (c *Client) unloadContainers(ctx context.Context, networkName, shipID string, terminalNames []string) {
	if _, err := c.SendCommand(ctx, "unloadContainersFromShipAtTerminal",
		unloadParams(networkName, shipID, terminalNames)); err != nil {
		c.log.WithFields(xlog.Fields{"shipID": shipID, "error": err.Error()}).Warning("failed to dispatch unload")
	}
}

func unloadParams(networkName, shipID string, terminalNames []string) map[string]interface{} {
	return map[string]interface{}{
		"networkName":   networkName,
		"shipID":        shipID,
		"terminalNames": toInterfaceSlice(terminalNames),
	}
}

// GetNetworkTerminalNodes requests the sea ports of a network; the reply
// arrives as an asynchronous event.
func (c *Client) GetNetworkTerminalNodes(ctx context.Context, networkName string) error {
	_, err := c.SendCommand(ctx, "getNetworkSeaPorts", map[string]interface{}{"network": networkName})
	return err
}

// GetShortestPath requests the shortest path between two nodes of a
// network; the reply arrives as an asynchronous event.
func (c *Client) GetShortestPath(ctx context.Context, networkName, startNode, endNode string) error {
	_, err := c.SendCommand(ctx, "getShortestPath", map[string]interface{}{
		"network":   networkName,
		"startNode": startNode,
		"endNode":   endNode,
	})
	return err
}

// ResetServer clears all simulation state on the server and locally.
func (c *Client) ResetServer(ctx context.Context) error {
	_, err := c.SendCommandAndWait(ctx, "resetServer", nil, []string{"serverReset"}, c.CommandTimeout())
	return err
}

// ShipState returns the latest reported state of one ship, or nil when the
// simulator has not reported it yet.
func (c *Client) ShipState(networkName, shipID string) *State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.shipStates[networkName] {
		if s.ShipID == shipID {
			return s
		}
	}
	return nil
}

// NetworkShipStates returns every reported ship state for one network.
func (c *Client) NetworkShipStates(networkName string) []*State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*State, len(c.shipStates[networkName]))
	copy(out, c.shipStates[networkName])
	return out
}

// AllShipStates returns every reported ship state keyed by network.
func (c *Client) AllShipStates() map[string][]*State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]*State, len(c.shipStates))
	for network, states := range c.shipStates {
		cp := make([]*State, len(states))
		copy(cp, states)
		out[network] = cp
	}
	return out
}

// Progress returns the average advance fraction across all networks.
func (c *Client) Progress() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.progress) == 0 {
		return 0
	}
	var total float64
	for _, p := range c.progress {
		total += p
	}
	return total / float64(len(c.progress))
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

// handleEvent applies state-store side effects for inbound events. It runs
// on the transport's receive goroutine; any follow-up command is dispatched
// only after the write lock has been released.
func (c *Client) handleEvent(msg wire.Inbound) {
	if !msg.HasEvent() {
		return
	}
	switch wire.NormalizeEventName(msg.Event) {
	case "simulationcreated":
		name := asString(msg.Raw["networkName"])
		c.mu.Lock()
		c.networkResults[name] = nil
		c.mu.Unlock()
	case "simulationadvanced":
		c.onSimulationAdvanced(msg.Raw)
	case "shipreacheddestination":
		c.onShipReachedDestination(msg.Raw)
	case "shipreachedseaport":
		c.onShipReachedSeaport(msg.Raw)
	case "serverreset":
		c.onServerReset()
	case "erroroccurred":
		c.log.WithField("error", asString(msg.Raw["errorMessage"])).Error("simulator reported error")
	}
}

func (c *Client) onSimulationAdvanced(raw map[string]interface{}) {
	progresses, _ := raw["networkNamesProgress"].(map[string]interface{})
	if len(progresses) == 0 {
		return
	}
	c.mu.Lock()
	for network, p := range progresses {
		c.progress[network] = asFloat(p)
	}
	c.mu.Unlock()
}

// onShipReachedDestination records the arriving ship's state, then issues
// one unload command per destination terminal. The unload dispatch happens
// strictly after the write lock is released; holding it across a nested
// send deadlocks the receive goroutine against itself.
func (c *Client) onShipReachedDestination(raw map[string]interface{}) {
	states, _ := raw["state"].(map[string]interface{})

	type unloadJob struct {
		network   string
		shipID    string
		terminals []string
	}
	var jobs []unloadJob

	c.mu.Lock()
	for network, v := range states {
		networkStatus, _ := v.(map[string]interface{})
		shipData, _ := networkStatus["shipStates"].(map[string]interface{})
		if shipData == nil {
			continue
		}
		state := StateFromMap(shipData)
		c.shipStates[network] = append(c.shipStates[network], state)
		if terminals := c.destinationTerminals[state.ShipID]; len(terminals) > 0 {
			jobs = append(jobs, unloadJob{network: network, shipID: state.ShipID, terminals: terminals})
		} else {
			c.log.WithField("shipID", state.ShipID).Warning("no destination terminal registered for ship")
		}
	}
	c.mu.Unlock()

	for _, job := range jobs {
		for _, terminal := range job.terminals {
			c.unloadContainers(context.Background(), job.network, job.shipID, []string{terminal})
		}
	}
}

func (c *Client) onShipReachedSeaport(raw map[string]interface{}) {
	network := asString(raw["networkName"])
	shipID := asString(raw["shipID"])
	terminal := asString(raw["seaPortCode"])
	c.unloadContainers(context.Background(), network, shipID, []string{terminal})
}

func (c *Client) onServerReset() {
	c.mu.Lock()
	c.networkResults = make(map[string][]*SimulationResults)
	c.shipStates = make(map[string][]*State)
	c.loadedShips = make(map[string]Ship)
	c.destinationTerminals = make(map[string][]string)
	c.progress = make(map[string]float64)
	c.mu.Unlock()
	c.Base.Reset()
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func toContainerSlice(in []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(in))
	for i, m := range in {
		out[i] = m
	}
	return out
}
