// Package terminal implements the client for the terminal graph server:
// terminal and alias registration, route management, cost-function
// configuration, path finding backed by a local graph mirror, container
// queries and graph serialization round trips.
package terminal

import (
	"context"
	"strconv"
	"sync"

	"go.bryk.io/x/cargonetsim/client"
	"go.bryk.io/x/cargonetsim/internal/graph"
	"go.bryk.io/x/cargonetsim/internal/wire"
	xlog "go.bryk.io/x/cargonetsim/log"
)

// Default broker topology for the terminal graph server.
const (
	DefaultExchange      = "CargoNetSim.Exchange"
	DefaultCommandQueue  = "CargoNetSim.CommandQueue.TerminalSim"
	DefaultResponseQueue = "CargoNetSim.ResponseQueue.TerminalSim"
	DefaultSendKey       = "CargoNetSim.Command.TerminalSim"
	DefaultReceiveKey    = "CargoNetSim.Response.TerminalSim"
)

// requiredModes are the cost-function mode keys the server expects on every
// update; missing modes are filled with defaults before sending.
var requiredModes = []string{
	"default",
	strconv.Itoa(ModeShip),
	strconv.Itoa(ModeTruck),
	strconv.Itoa(ModeTrain),
}

// requiredAttrs are the cost attributes each mode entry must carry.
var requiredAttrs = []string{
	"cost", "travelTime", "distance", "carbonEmissions",
	"risk", "energyConsumption", "terminal_delay", "terminal_cost",
}

// defaultAttrValue fills any missing cost attribute.
const defaultAttrValue = 1.0

// Client talks to a running terminal graph server.
type Client struct {
	*client.Base
	log xlog.Logger

	mu sync.RWMutex
	// terminals indexes registered terminals by canonical name.
	terminals map[string]*Terminal
	// aliases maps canonical names to their registered aliases.
	aliases map[string][]string
	// shortestPaths caches find_shortest_path results by start-end-mode.
	shortestPaths map[string][]PathSegment
	// topPaths caches find_top_paths results by start-end.
	topPaths map[string][]Path
	// containers holds the latest container fetch per terminal.
	containers map[string][]map[string]interface{}
	// capacities holds the latest capacity figure per terminal.
	capacities map[string]float64
	// terminalCount mirrors the server's last reported count.
	terminalCount int
	// serializedGraph holds the last serialize_graph result.
	serializedGraph map[string]interface{}
	// pingResponse holds the last ping result.
	pingResponse map[string]interface{}
	// localGraph mirrors registered routes for in-process path queries
	// when the server response carries no path data.
	localGraph *graph.Graph
}

// New builds a terminal client for the given broker endpoint. Zero-value
// topology fields in cfg are filled with the terminal server defaults.
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
	cfg.ClientType = wire.TerminalClient
	c := &Client{
		Base:          client.NewBase(cfg),
		terminals:     make(map[string]*Terminal),
		aliases:       make(map[string][]string),
		shortestPaths: make(map[string][]PathSegment),
		topPaths:      make(map[string][]Path),
		containers:    make(map[string][]map[string]interface{}),
		capacities:    make(map[string]float64),
		localGraph:    graph.New(),
	}
	c.log = c.Base.Log()
	c.SetMessageHandler(c.handleEvent)
	return c
}

// SetCostFunctionParameters updates the server's path-cost weights. Every
// required mode and attribute missing from params is filled with 1.0 before
// the command is sent, so the server always receives a complete table.
func (c *Client) SetCostFunctionParameters(ctx context.Context, params map[string]map[string]float64) error {
	complete := NormalizeCostParameters(params)
	payload := make(map[string]interface{}, len(complete))
	for mode, attrs := range complete {
		m := make(map[string]interface{}, len(attrs))
		for k, v := range attrs {
			m[k] = v
		}
		payload[mode] = m
	}
	_, err := c.SendCommandAndWait(ctx, "set_cost_function_parameters",
		map[string]interface{}{"parameters": payload},
		[]string{"costFunctionUpdated"}, c.CommandTimeout())
	return err
}

// NormalizeCostParameters returns a copy of params with every required mode
// present and every required attribute of each mode defaulted to 1.0.
func NormalizeCostParameters(params map[string]map[string]float64) map[string]map[string]float64 {
	complete := make(map[string]map[string]float64, len(requiredModes))
	for mode, attrs := range params {
		cp := make(map[string]float64, len(attrs))
		for k, v := range attrs {
			cp[k] = v
		}
		complete[mode] = cp
	}
	for _, mode := range requiredModes {
		attrs, ok := complete[mode]
		if !ok {
			attrs = make(map[string]float64, len(requiredAttrs))
			complete[mode] = attrs
		}
		for _, attr := range requiredAttrs {
			if _, ok := attrs[attr]; !ok {
				attrs[attr] = defaultAttrValue
			}
		}
	}
	return complete
}

// AddTerminal registers one terminal on the server.
func (c *Client) AddTerminal(ctx context.Context, t Terminal) error {
	_, err := c.SendCommandAndWait(ctx, "add_terminal", t.toJSON(), []string{"terminalAdded"}, c.CommandTimeout())
	return err
}

// AddTerminals registers a batch of terminals with a single command.
func (c *Client) AddTerminals(ctx context.Context, terminals []Terminal) error {
	arr := make([]interface{}, 0, len(terminals))
	for _, t := range terminals {
		arr = append(arr, t.toJSON())
	}
	_, err := c.SendCommandAndWait(ctx, "add_terminals",
		map[string]interface{}{"terminals": arr},
		[]string{"terminalsAdded"}, c.CommandTimeout())
	return err
}

// AddAliasToTerminal registers an additional name for a terminal.
func (c *Client) AddAliasToTerminal(ctx context.Context, terminalName, alias string) error {
	_, err := c.SendCommandAndWait(ctx, "add_alias_to_terminal",
		map[string]interface{}{"terminal": terminalName, "alias": alias},
		[]string{"terminalAdded"}, c.CommandTimeout())
	return err
}

// GetAliasesOfTerminal fetches the aliases registered for a terminal.
func (c *Client) GetAliasesOfTerminal(ctx context.Context, terminalName string) ([]string, error) {
	_, err := c.SendCommandAndWait(ctx, "get_aliases_of_terminal",
		map[string]interface{}{"terminal": terminalName},
		[]string{"terminalAliases"}, c.CommandTimeout())
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aliases[terminalName], nil
}

// RemoveTerminal deletes a terminal from the server.
func (c *Client) RemoveTerminal(ctx context.Context, terminalName string) error {
	_, err := c.SendCommandAndWait(ctx, "remove_terminal",
		map[string]interface{}{"terminal": terminalName},
		[]string{"terminalRemoved"}, c.CommandTimeout())
	return err
}

// GetTerminalCount asks the server for its current terminal count.
func (c *Client) GetTerminalCount(ctx context.Context) (int, error) {
	_, err := c.SendCommandAndWait(ctx, "get_terminal_count", nil, []string{"terminalCount"}, c.CommandTimeout())
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.terminalCount, nil
}

// GetTerminalStatus fetches the latest known status of one terminal; the
// second return is false when the terminal is unknown.
func (c *Client) GetTerminalStatus(ctx context.Context, terminalName string) (*Terminal, bool) {
	_, _ = c.SendCommandAndWait(ctx, "get_terminal",
		map[string]interface{}{"terminal": terminalName},
		[]string{"terminalStatus"}, c.CommandTimeout())
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.terminals[terminalName]
	return t, ok
}

// TerminalCount returns the locally cached terminal count.
func (c *Client) TerminalCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.terminalCount
}

// AddRoute registers one directed route between two terminals.
func (c *Client) AddRoute(ctx context.Context, r Route) error {
	_, err := c.SendCommandAndWait(ctx, "add_route", r.toJSON(), []string{"routeAdded"}, c.CommandTimeout())
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.localGraph.AddSegment(r.segment())
	c.mu.Unlock()
	return nil
}

// AddRoutes registers a batch of routes with a single command.
func (c *Client) AddRoutes(ctx context.Context, routes []Route) error {
	arr := make([]interface{}, 0, len(routes))
	for _, r := range routes {
		arr = append(arr, r.toJSON())
	}
	_, err := c.SendCommandAndWait(ctx, "add_routes",
		map[string]interface{}{"routes": arr},
		[]string{"routesAdded"}, c.CommandTimeout())
	if err != nil {
		return err
	}
	c.mu.Lock()
	for _, r := range routes {
		c.localGraph.AddSegment(r.segment())
	}
	c.mu.Unlock()
	return nil
}

// ChangeRouteWeight updates one cost attribute of an existing route.
func (c *Client) ChangeRouteWeight(ctx context.Context, routeID, attribute string, value float64) error {
	_, err := c.SendCommandAndWait(ctx, "change_route_weight",
		map[string]interface{}{"route_id": routeID, "attribute": attribute, "value": value},
		[]string{"routeAdded"}, c.CommandTimeout())
	return err
}

// ConnectTerminalsByInterfaceModes asks the server to connect every pair of
// terminals sharing an interface mode.
func (c *Client) ConnectTerminalsByInterfaceModes(ctx context.Context) error {
	_, err := c.SendCommandAndWait(ctx, "connect_terminals_by_interface_modes", nil, []string{"routeAdded"}, c.CommandTimeout())
	return err
}

// ConnectTerminalsInRegionByMode connects all terminals of a region by mode.
func (c *Client) ConnectTerminalsInRegionByMode(ctx context.Context, region string, mode int) error {
	_, err := c.SendCommandAndWait(ctx, "connect_terminals_in_region_by_mode",
		map[string]interface{}{"region": region, "mode": mode},
		[]string{"routeAdded"}, c.CommandTimeout())
	return err
}

// ConnectRegionsByMode connects two regions by transportation mode.
func (c *Client) ConnectRegionsByMode(ctx context.Context, regionA, regionB string, mode int) error {
	_, err := c.SendCommandAndWait(ctx, "connect_regions_by_mode",
		map[string]interface{}{"region_a": regionA, "region_b": regionB, "mode": mode},
		[]string{"routeAdded"}, c.CommandTimeout())
	return err
}

// FindShortestPath returns the lowest-cost path between two terminals for
// one mode. The server's answer is cached; when the reply carries no path
// data the locally mirrored graph answers instead, and that local search
// does not filter segments by mode.
func (c *Client) FindShortestPath(ctx context.Context, start, end string, mode int) ([]PathSegment, error) {
	_, err := c.SendCommandAndWait(ctx, "find_shortest_path",
		map[string]interface{}{"start_terminal": start, "end_terminal": end, "mode": mode},
		[]string{"pathFound"}, c.CommandTimeout())
	if err != nil {
		return nil, err
	}
	key := shortestKey(start, end, mode)
	c.mu.Lock()
	defer c.mu.Unlock()
	if segments, ok := c.shortestPaths[key]; ok {
		return segments, nil
	}
	gp, err := c.localGraph.ShortestPath(start, end, nil, nil)
	if err != nil {
		return nil, err
	}
	segments := pathFromGraph(0, gp).Segments
	c.shortestPaths[key] = segments
	return segments, nil
}

// FindTopPaths returns up to n loopless paths between two terminals in
// increasing cost order.
func (c *Client) FindTopPaths(ctx context.Context, start, end string, n, mode int, skipDelays bool) ([]Path, error) {
	_, err := c.SendCommandAndWait(ctx, "find_top_paths",
		map[string]interface{}{
			"start_terminal": start,
			"end_terminal":   end,
			"n":              n,
			"mode":           mode,
			"skip_same_mode_terminal_delays_and_costs": skipDelays,
		},
		[]string{"pathFound"}, c.CommandTimeout())
	if err != nil {
		return nil, err
	}
	key := topKey(start, end)
	c.mu.Lock()
	defer c.mu.Unlock()
	if paths, ok := c.topPaths[key]; ok {
		if n > 0 && len(paths) > n {
			paths = paths[:n]
		}
		return paths, nil
	}
	gps, err := c.localGraph.TopPaths(start, end, n)
	if err != nil {
		return nil, err
	}
	paths := make([]Path, 0, len(gps))
	for i, gp := range gps {
		paths = append(paths, pathFromGraph(i+1, gp))
	}
	c.topPaths[key] = paths
	return paths, nil
}

// AddContainer queues one container at a terminal; addTime < 0 means "now".
func (c *Client) AddContainer(ctx context.Context, terminalID string, container map[string]interface{}, addTime float64) error {
	params := map[string]interface{}{
		"terminal_id": terminalID,
		"container":   container,
	}
	if addTime >= 0 {
		params["adding_time"] = addTime
	}
	_, err := c.SendCommandAndWait(ctx, "add_container", params, []string{"containersAdded"}, c.CommandTimeout())
	return err
}

// AddContainersFromJSON queues a batch of containers at a terminal.
func (c *Client) AddContainersFromJSON(ctx context.Context, terminalID string, containers []map[string]interface{}, addTime float64) error {
	arr := make([]interface{}, len(containers))
	for i, m := range containers {
		arr[i] = m
	}
	params := map[string]interface{}{
		"terminal_id": terminalID,
		"containers":  arr,
	}
	if addTime >= 0 {
		params["adding_time"] = addTime
	}
	_, err := c.SendCommandAndWait(ctx, "add_containers_from_json", params, []string{"containersAdded"}, c.CommandTimeout())
	return err
}

// GetContainersByDepartingTime fetches containers leaving before a time.
func (c *Client) GetContainersByDepartingTime(ctx context.Context, terminalID string, departingTime float64, condition string) ([]map[string]interface{}, error) {
	return c.fetchContainers(ctx, "get_containers_by_departing_time", map[string]interface{}{
		"terminal_id":    terminalID,
		"departing_time": departingTime,
		"condition":      condition,
	}, terminalID)
}

// GetContainersByAddedTime fetches containers added before a time.
func (c *Client) GetContainersByAddedTime(ctx context.Context, terminalID string, addedTime float64, condition string) ([]map[string]interface{}, error) {
	return c.fetchContainers(ctx, "get_containers_by_added_time", map[string]interface{}{
		"terminal_id": terminalID,
		"added_time":  addedTime,
		"condition":   condition,
	}, terminalID)
}

// GetContainersByNextDestination fetches containers bound for a
// destination without removing them from the terminal.
func (c *Client) GetContainersByNextDestination(ctx context.Context, terminalID, destination string) ([]map[string]interface{}, error) {
	return c.fetchContainers(ctx, "get_containers_by_next_destination", map[string]interface{}{
		"terminal_id": terminalID,
		"destination": destination,
	}, terminalID)
}

// DequeueContainersByNextDestination removes and returns containers bound
// for a destination.
func (c *Client) DequeueContainersByNextDestination(ctx context.Context, terminalID, destination string) ([]map[string]interface{}, error) {
	return c.fetchContainers(ctx, "dequeue_containers_by_next_destination", map[string]interface{}{
		"terminal_id": terminalID,
		"destination": destination,
	}, terminalID)
}

func (c *Client) fetchContainers(ctx context.Context, command string, params map[string]interface{}, terminalID string) ([]map[string]interface{}, error) {
	_, err := c.SendCommandAndWait(ctx, command, params, []string{"containersFetched"}, c.CommandTimeout())
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.containers[terminalID], nil
}

// GetContainerCount asks for the number of containers at a terminal.
func (c *Client) GetContainerCount(ctx context.Context, terminalID string) (int, error) {
	v, err := c.fetchCapacity(ctx, "get_container_count", terminalID)
	return int(v), err
}

// GetAvailableCapacity asks for a terminal's remaining capacity.
func (c *Client) GetAvailableCapacity(ctx context.Context, terminalID string) (float64, error) {
	return c.fetchCapacity(ctx, "get_available_capacity", terminalID)
}

// GetMaxCapacity asks for a terminal's maximum capacity.
func (c *Client) GetMaxCapacity(ctx context.Context, terminalID string) (float64, error) {
	return c.fetchCapacity(ctx, "get_max_capacity", terminalID)
}

func (c *Client) fetchCapacity(ctx context.Context, command, terminalID string) (float64, error) {
	_, err := c.SendCommandAndWait(ctx, command,
		map[string]interface{}{"terminal_id": terminalID},
		[]string{"capacityFetched"}, c.CommandTimeout())
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capacities[terminalID], nil
}

// ClearTerminal drops every container queued at a terminal.
func (c *Client) ClearTerminal(ctx context.Context, terminalID string) error {
	_, err := c.SendCommandAndWait(ctx, "clear_terminal",
		map[string]interface{}{"terminal_id": terminalID},
		[]string{"containersAdded"}, c.CommandTimeout())
	return err
}

// SerializeGraph fetches the server's full graph as a portable document.
func (c *Client) SerializeGraph(ctx context.Context) (map[string]interface{}, error) {
	_, err := c.SendCommandAndWait(ctx, "serialize_graph", nil, []string{"graphSerialized"}, c.CommandTimeout())
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serializedGraph, nil
}

// DeserializeGraph replaces the server's graph with a previously
// serialized document.
func (c *Client) DeserializeGraph(ctx context.Context, doc map[string]interface{}) error {
	_, err := c.SendCommandAndWait(ctx, "deserialize_graph",
		map[string]interface{}{"graph": doc},
		[]string{"graphDeserialized"}, c.CommandTimeout())
	return err
}

// Ping checks server liveness and returns the raw response.
func (c *Client) Ping(ctx context.Context) (map[string]interface{}, error) {
	_, err := c.SendCommandAndWait(ctx, "ping", nil, []string{"pingResponse"}, c.CommandTimeout())
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pingResponse, nil
}

// ResetServer clears all graph state on the server and locally.
func (c *Client) ResetServer(ctx context.Context) error {
	_, err := c.SendCommandAndWait(ctx, "resetServer", nil, []string{"serverReset"}, c.CommandTimeout())
	return err
}

// handleEvent applies state-store side effects for inbound events.
func (c *Client) handleEvent(msg wire.Inbound) {
	if !msg.HasEvent() {
		return
	}
	switch wire.NormalizeEventName(msg.Event) {
	case "terminaladded", "terminalstatus":
		c.onTerminalAdded(msg.Raw)
	case "terminalsadded":
		c.onTerminalsAdded(msg.Raw)
	case "terminalaliases":
		c.onTerminalAliases(msg.Raw)
	case "terminalremoved":
		c.onTerminalRemoved(msg.Raw)
	case "terminalcount":
		c.mu.Lock()
		c.terminalCount = int(asFloat(result(msg.Raw)["count"]))
		c.mu.Unlock()
	case "pathfound":
		c.onPathsFound(msg.Raw)
	case "containersfetched":
		c.onContainersFetched(msg.Raw)
	case "capacityfetched":
		c.onCapacityFetched(msg.Raw)
	case "graphserialized":
		c.mu.Lock()
		c.serializedGraph, _ = msg.Raw["result"].(map[string]interface{})
		c.mu.Unlock()
	case "pingresponse":
		c.mu.Lock()
		c.pingResponse, _ = msg.Raw["result"].(map[string]interface{})
		c.mu.Unlock()
	case "serverreset":
		c.onServerReset()
	case "erroroccurred":
		c.log.WithField("error", asString(msg.Raw["errorMessage"])).Error("server reported error")
	}
}

// result unwraps the "result" object many terminal events carry; events
// that inline their fields at the top level fall back to the raw map.
func result(raw map[string]interface{}) map[string]interface{} {
	if r, ok := raw["result"].(map[string]interface{}); ok {
		return r
	}
	return raw
}

func terminalFromMap(data map[string]interface{}) *Terminal {
	t := &Terminal{Region: asString(data["region"])}
	if names, ok := data["terminal_names"].([]interface{}); ok {
		for _, n := range names {
			if s, ok := n.(string); ok {
				t.Names = append(t.Names, s)
			}
		}
	}
	if name := asString(data["terminal_name"]); name != "" && len(t.Names) == 0 {
		t.Names = []string{name}
	}
	t.Config, _ = data["custom_config"].(map[string]interface{})
	return t
}

func (c *Client) onTerminalAdded(raw map[string]interface{}) {
	t := terminalFromMap(result(raw))
	name := t.CanonicalName()
	if name == "" {
		return
	}
	c.mu.Lock()
	c.terminals[name] = t
	if aliases := t.Aliases(); len(aliases) > 0 {
		c.aliases[name] = aliases
	}
	c.mu.Unlock()
}

func (c *Client) onTerminalsAdded(raw map[string]interface{}) {
	arr, _ := result(raw)["terminals"].([]interface{})
	if arr == nil {
		arr, _ = raw["result"].([]interface{})
	}
	c.mu.Lock()
	for _, v := range arr {
		data, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		t := terminalFromMap(data)
		if name := t.CanonicalName(); name != "" {
			c.terminals[name] = t
			if aliases := t.Aliases(); len(aliases) > 0 {
				c.aliases[name] = aliases
			}
		}
	}
	c.mu.Unlock()
}

func (c *Client) onTerminalAliases(raw map[string]interface{}) {
	r := result(raw)
	name := asString(r["terminal"])
	arr, _ := r["aliases"].([]interface{})
	if name == "" {
		return
	}
	aliases := make([]string, 0, len(arr))
	for _, a := range arr {
		if s, ok := a.(string); ok {
			aliases = append(aliases, s)
		}
	}
	c.mu.Lock()
	c.aliases[name] = aliases
	c.mu.Unlock()
}

func (c *Client) onTerminalRemoved(raw map[string]interface{}) {
	name := asString(result(raw)["terminal"])
	c.mu.Lock()
	delete(c.terminals, name)
	delete(c.aliases, name)
	c.mu.Unlock()
}

func (c *Client) onPathsFound(raw map[string]interface{}) {
	r := result(raw)
	start := asString(r["start_terminal"])
	end := asString(r["end_terminal"])
	arr, _ := r["paths"].([]interface{})
	if start == "" || end == "" {
		return
	}

	paths := make([]Path, 0, len(arr))
	for _, v := range arr {
		if data, ok := v.(map[string]interface{}); ok {
			paths = append(paths, pathFromMap(data))
		}
	}

	c.mu.Lock()
	if len(paths) > 0 {
		c.topPaths[topKey(start, end)] = paths
		if mode, ok := r["mode"]; ok {
			c.shortestPaths[shortestKey(start, end, int(asFloat(mode)))] = paths[0].Segments
		}
	}
	c.mu.Unlock()
}

func (c *Client) onContainersFetched(raw map[string]interface{}) {
	r := result(raw)
	terminalID := asString(r["terminal_id"])
	arr, _ := r["containers"].([]interface{})
	if terminalID == "" {
		return
	}
	containers := make([]map[string]interface{}, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]interface{}); ok {
			containers = append(containers, m)
		}
	}
	c.mu.Lock()
	c.containers[terminalID] = containers
	c.mu.Unlock()
}

func (c *Client) onCapacityFetched(raw map[string]interface{}) {
	r := result(raw)
	terminalID := asString(r["terminal_id"])
	if terminalID == "" {
		return
	}
	c.mu.Lock()
	c.capacities[terminalID] = asFloat(r["capacity"])
	c.mu.Unlock()
}

func (c *Client) onServerReset() {
	c.mu.Lock()
	c.terminals = make(map[string]*Terminal)
	c.aliases = make(map[string][]string)
	c.shortestPaths = make(map[string][]PathSegment)
	c.topPaths = make(map[string][]Path)
	c.containers = make(map[string][]map[string]interface{})
	c.capacities = make(map[string]float64)
	c.serializedGraph = nil
	c.pingResponse = nil
	c.terminalCount = 0
	c.localGraph = graph.New()
	c.mu.Unlock()
	c.Base.Reset()
}

func shortestKey(start, end string, mode int) string {
	return start + "-" + end + "-" + strconv.Itoa(mode)
}

func topKey(start, end string) string {
	return start + "-" + end
}
