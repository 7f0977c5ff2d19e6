// Package manager owns a fleet of truck simulation clients, one worker
// goroutine per client, and drives their lifecycle: creation, renaming,
// reconfiguration, removal, coarse reset and the cooperative time-sync
// loop that keeps several simulators advancing together.
package manager

import (
	"context"
	"sync"
	"time"

	"go.bryk.io/x/cargonetsim/client"
	"go.bryk.io/x/cargonetsim/client/truck"
	"go.bryk.io/x/cargonetsim/errors"
	xlog "go.bryk.io/x/cargonetsim/log"
)

// waitInterval paces the cooperative sync loop.
const waitInterval = 100 * time.Millisecond

// stopGrace bounds how long RemoveClient waits for a worker to drain
// before abandoning it.
const stopGrace = 3 * time.Second

// resetGrace is the much shorter deadline used during a coarse reset.
const resetGrace = 500 * time.Millisecond

// Simulator is the surface the manager needs from a truck client. The
// concrete implementation is *truck.Client; tests substitute fakes.
type Simulator interface {
	Connect(ctx context.Context) error
	Disconnect() error
	DefineSimulator(ctx context.Context, networkName, masterFilePath string, simTime float64, configUpdates map[string]string, argsUpdates []string) error
	RunSimulator(ctx context.Context, networkNames []string) error
	EndSimulator(ctx context.Context, networkNames []string) error
	ProgressPercentage(networkName string) float64
	SimulationTime(networkName string) float64
	ForceKill()
}

// ClientConfig carries everything needed to spawn and connect one truck
// simulation client.
type ClientConfig struct {
	ExePath        string
	Host           string
	Port           int
	MasterFilePath string
	SimTime        float64
	ConfigUpdates  map[string]string
	ArgsUpdates    []string
}

// Valid reports whether the configuration names the two mandatory paths.
func (c ClientConfig) Valid() bool {
	return c.ExePath != "" && c.MasterFilePath != ""
}

// Factory builds a Simulator from its configuration; overridable in tests.
type Factory func(cfg ClientConfig, log xlog.Logger) Simulator

func defaultFactory(cfg ClientConfig, log xlog.Logger) Simulator {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5672
	}
	return truck.New(cfg.ExePath, client.Config{
		Host:   host,
		Port:   port,
		Logger: log,
	})
}

// managed couples a client with its dedicated worker goroutine. Connect,
// define, run, end and disconnect calls run on that goroutine, preserving
// the original thread-per-client affinity; progress and simulation-time
// reads and ForceKill are called directly from the manager's goroutine.
type managed struct {
	sim    Simulator
	config ClientConfig
	jobs   chan func()
	done   chan struct{}
}

func newManaged(sim Simulator, cfg ClientConfig) *managed {
	m := &managed{
		sim:    sim,
		config: cfg,
		jobs:   make(chan func(), 16),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(m.done)
		for job := range m.jobs {
			job()
		}
	}()
	return m
}

// call runs fn on the client's worker goroutine and waits for its result.
func (m *managed) call(fn func() error) error {
	result := make(chan error, 1)
	select {
	case m.jobs <- func() { result <- fn() }:
	case <-m.done:
		return errors.New("client worker already stopped")
	}
	return <-result
}

// stop drains the worker, waiting up to grace before abandoning it.
func (m *managed) stop(grace time.Duration) bool {
	close(m.jobs)
	select {
	case <-m.done:
		return true
	case <-time.After(grace):
		return false
	}
}

// Manager owns many named truck clients.
type Manager struct {
	log     xlog.Logger
	factory Factory

	mu      sync.RWMutex
	clients map[string]*managed
}

// Option adjusts a Manager during construction.
type Option func(*Manager)

// WithLogger installs a logger on the manager and every client it builds.
func WithLogger(log xlog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithFactory overrides how Simulator instances are built, used by tests.
func WithFactory(f Factory) Option {
	return func(m *Manager) { m.factory = f }
}

// New returns an empty manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		log:     xlog.Discard(),
		factory: defaultFactory,
		clients: make(map[string]*managed),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateClient registers a new named client: it spins up the worker,
// connects the client and defines its simulator, removing everything
// atomically on failure.
func (m *Manager) CreateClient(ctx context.Context, name string, cfg ClientConfig) error {
	if name == "" {
		return errors.New("network name cannot be empty")
	}
	if !cfg.Valid() {
		return errors.New("invalid client configuration")
	}

	m.mu.Lock()
	if _, ok := m.clients[name]; ok {
		m.mu.Unlock()
		return errors.New("network name already exists: " + name)
	}
	mc := newManaged(m.factory(cfg, m.log), cfg)
	m.clients[name] = mc
	m.mu.Unlock()

	err := mc.call(func() error {
		if err := mc.sim.Connect(ctx); err != nil {
			return errors.Wrap(err, "failed to connect client")
		}
		return mc.sim.DefineSimulator(ctx, name, cfg.MasterFilePath, cfg.SimTime, cfg.ConfigUpdates, cfg.ArgsUpdates)
	})
	if err != nil {
		_ = m.RemoveClient(ctx, name)
		return err
	}
	m.log.WithField("client", name).Info("truck client created")
	return nil
}

// RemoveClient ends a client's simulator, unlinks it and stops its worker.
func (m *Manager) RemoveClient(ctx context.Context, name string) error {
	m.mu.Lock()
	mc, ok := m.clients[name]
	if !ok {
		m.mu.Unlock()
		return errors.New("client does not exist: " + name)
	}
	delete(m.clients, name)
	m.mu.Unlock()

	_ = mc.call(func() error {
		_ = mc.sim.EndSimulator(ctx, []string{name})
		return mc.sim.Disconnect()
	})
	if !mc.stop(stopGrace) {
		m.log.WithField("client", name).Warning("client worker did not stop in time")
	}
	return nil
}

// RenameClient moves a client to a new name, ending the old simulator and
// redefining it under the new one.
func (m *Manager) RenameClient(ctx context.Context, oldName, newName string) error {
	if newName == "" {
		return errors.New("new network name cannot be empty")
	}

	m.mu.Lock()
	mc, ok := m.clients[oldName]
	if !ok {
		m.mu.Unlock()
		return errors.New("client does not exist: " + oldName)
	}
	if _, exists := m.clients[newName]; exists {
		m.mu.Unlock()
		return errors.New("network name already exists: " + newName)
	}
	delete(m.clients, oldName)
	m.clients[newName] = mc
	m.mu.Unlock()

	return mc.call(func() error {
		_ = mc.sim.EndSimulator(ctx, []string{oldName})
		return mc.sim.DefineSimulator(ctx, newName, mc.config.MasterFilePath, mc.config.SimTime, mc.config.ConfigUpdates, mc.config.ArgsUpdates)
	})
}

// UpdateClientConfig replaces a client's configuration, ending the current
// simulator and redefining it with the new settings.
func (m *Manager) UpdateClientConfig(ctx context.Context, name string, cfg ClientConfig) error {
	if !cfg.Valid() {
		return errors.New("invalid client configuration")
	}

	m.mu.Lock()
	mc, ok := m.clients[name]
	if !ok {
		m.mu.Unlock()
		return errors.New("client does not exist: " + name)
	}
	mc.config = cfg
	m.mu.Unlock()

	return mc.call(func() error {
		_ = mc.sim.EndSimulator(ctx, []string{name})
		return mc.sim.DefineSimulator(ctx, name, cfg.MasterFilePath, cfg.SimTime, cfg.ConfigUpdates, cfg.ArgsUpdates)
	})
}

// ClientNames lists every registered client.
func (m *Manager) ClientNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	return names
}

// ClientConfigFor returns the stored configuration of one client.
func (m *Manager) ClientConfigFor(name string) (ClientConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.clients[name]
	if !ok {
		return ClientConfig{}, errors.New("client does not exist: " + name)
	}
	return mc.config, nil
}

// ResetServer force-kills every client's processes (best effort), stops
// all workers with a short deadline and frees everything.
func (m *Manager) ResetServer() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*managed)
	m.mu.Unlock()

	for _, mc := range clients {
		mc.sim.ForceKill()
	}
	for name, mc := range clients {
		if !mc.stop(resetGrace) {
			m.log.WithField("client", name).Warning("abandoning stuck client worker on reset")
		}
	}
	m.log.Info("manager reset completed")
}

// RunSimulationAsync releases every named client's simulator concurrently
// and returns without waiting for completion. "*" expands to all clients.
func (m *Manager) RunSimulationAsync(ctx context.Context, networkNames []string) error {
	var (
		firstErr error
		errMu    sync.Mutex
		wg       sync.WaitGroup
	)
	record := func(err error) {
		errMu.Lock()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}
	for _, name := range m.expand(networkNames) {
		m.mu.RLock()
		mc, ok := m.clients[name]
		m.mu.RUnlock()
		if !ok {
			record(errors.New("client does not exist: " + name))
			continue
		}
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(mc.call(func() error { return mc.sim.RunSimulator(ctx, []string{name}) }))
		}()
	}
	wg.Wait()
	return firstErr
}

// RunSimulationSync advances the named clients cooperatively until every
// one reports 100% progress: on each tick, only the first client whose
// simulation time equals the maximum across the set is released.
func (m *Manager) RunSimulationSync(ctx context.Context, networkNames []string) error {
	for m.keepGoing(networkNames) {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.syncGoOnce(ctx, networkNames)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitInterval):
		}
	}
	return nil
}

// syncGoOnce releases the single client whose clock equals the maximum
// across the set.
func (m *Manager) syncGoOnce(ctx context.Context, networkNames []string) {
	names := m.expand(networkNames)

	type entry struct {
		name string
		mc   *managed
		time float64
	}
	var entries []entry
	maxTime := 0.0

	m.mu.RLock()
	for _, name := range names {
		mc, ok := m.clients[name]
		if !ok {
			continue
		}
		t := mc.sim.ProgressPercentage(name) * mc.sim.SimulationTime(name) / 100
		if t > maxTime {
			maxTime = t
		}
		entries = append(entries, entry{name: name, mc: mc, time: t})
	}
	m.mu.RUnlock()

	for _, e := range entries {
		if e.time >= maxTime {
			name := e.name
			mc := e.mc
			_ = mc.call(func() error { return mc.sim.RunSimulator(ctx, []string{name}) })
			return
		}
	}
}

// keepGoing reports whether any named client has not yet finished.
func (m *Manager) keepGoing(networkNames []string) bool {
	names := m.expand(networkNames)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range names {
		mc, ok := m.clients[name]
		if !ok {
			continue
		}
		if mc.sim.ProgressPercentage(name) < 100 {
			return true
		}
	}
	return false
}

// expand resolves "*" in a name list to every registered client.
func (m *Manager) expand(names []string) []string {
	for _, n := range names {
		if n == "*" {
			return m.ClientNames()
		}
	}
	return names
}
