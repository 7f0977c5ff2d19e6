package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
	"go.bryk.io/x/cargonetsim/errors"
	xlog "go.bryk.io/x/cargonetsim/log"
)

// fakeSim records lifecycle calls and reports scripted progress.
type fakeSim struct {
	mu          sync.Mutex
	defined     []string
	ended       []string
	runs        int
	killed      bool
	progress    float64
	simTime     float64
	failDefine  bool
	failConnect bool
}

func (f *fakeSim) Connect(context.Context) error {
	if f.failConnect {
		return errors.New("connect refused")
	}
	return nil
}

func (f *fakeSim) Disconnect() error { return nil }

func (f *fakeSim) DefineSimulator(_ context.Context, name, _ string, _ float64, _ map[string]string, _ []string) error {
	if f.failDefine {
		return errors.New("define failed")
	}
	f.mu.Lock()
	f.defined = append(f.defined, name)
	f.mu.Unlock()
	return nil
}

func (f *fakeSim) RunSimulator(_ context.Context, _ []string) error {
	f.mu.Lock()
	f.runs++
	f.progress = 100
	f.mu.Unlock()
	return nil
}

func (f *fakeSim) EndSimulator(_ context.Context, names []string) error {
	f.mu.Lock()
	f.ended = append(f.ended, names...)
	f.mu.Unlock()
	return nil
}

func (f *fakeSim) ProgressPercentage(string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress
}

func (f *fakeSim) SimulationTime(string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.simTime
}

func (f *fakeSim) ForceKill() {
	f.mu.Lock()
	f.killed = true
	f.mu.Unlock()
}

func newTestManager() (*Manager, map[string]*fakeSim) {
	sims := make(map[string]*fakeSim)
	var mu sync.Mutex
	factory := func(cfg ClientConfig, _ xlog.Logger) Simulator {
		sim := &fakeSim{}
		mu.Lock()
		sims[cfg.MasterFilePath] = sim
		mu.Unlock()
		return sim
	}
	return New(WithFactory(factory)), sims
}

func validConfig(master string) ClientConfig {
	return ClientConfig{
		ExePath:        "/opt/trucksim/bin/trucksim",
		MasterFilePath: master,
		SimTime:        3600,
	}
}

func TestCreateClientValidation(t *testing.T) {
	assert := tdd.New(t)
	m, _ := newTestManager()
	ctx := context.Background()

	assert.NotNil(m.CreateClient(ctx, "", validConfig("m.cfg")))
	assert.NotNil(m.CreateClient(ctx, "N", ClientConfig{}))

	assert.Nil(m.CreateClient(ctx, "N", validConfig("m.cfg")))
	// duplicate names are rejected
	assert.NotNil(m.CreateClient(ctx, "N", validConfig("other.cfg")))
	assert.Equal([]string{"N"}, m.ClientNames())
}

func TestCreateClientRollbackOnFailure(t *testing.T) {
	assert := tdd.New(t)
	sims := make(map[string]*fakeSim)
	factory := func(cfg ClientConfig, _ xlog.Logger) Simulator {
		sim := &fakeSim{failDefine: true}
		sims[cfg.MasterFilePath] = sim
		return sim
	}
	m := New(WithFactory(factory))

	err := m.CreateClient(context.Background(), "N", validConfig("m.cfg"))
	assert.NotNil(err)
	assert.Empty(m.ClientNames())
}

func TestRemoveClient(t *testing.T) {
	assert := tdd.New(t)
	m, sims := newTestManager()
	ctx := context.Background()

	assert.Nil(m.CreateClient(ctx, "N", validConfig("m.cfg")))
	assert.Nil(m.RemoveClient(ctx, "N"))
	assert.Empty(m.ClientNames())
	assert.Contains(sims["m.cfg"].ended, "N")

	assert.NotNil(m.RemoveClient(ctx, "N"))
}

func TestRenameClient(t *testing.T) {
	assert := tdd.New(t)
	m, sims := newTestManager()
	ctx := context.Background()

	assert.Nil(m.CreateClient(ctx, "old", validConfig("m.cfg")))
	assert.Nil(m.CreateClient(ctx, "other", validConfig("o.cfg")))

	// renaming onto an existing name is rejected
	assert.NotNil(m.RenameClient(ctx, "old", "other"))
	// renaming to empty is rejected
	assert.NotNil(m.RenameClient(ctx, "old", ""))

	assert.Nil(m.RenameClient(ctx, "old", "new"))
	assert.ElementsMatch([]string{"new", "other"}, m.ClientNames())
	sim := sims["m.cfg"]
	assert.Contains(sim.ended, "old")
	assert.Contains(sim.defined, "new")
}

func TestUpdateClientConfig(t *testing.T) {
	assert := tdd.New(t)
	m, sims := newTestManager()
	ctx := context.Background()

	assert.Nil(m.CreateClient(ctx, "N", validConfig("m.cfg")))
	updated := validConfig("m.cfg")
	updated.SimTime = 7200
	assert.Nil(m.UpdateClientConfig(ctx, "N", updated))

	cfg, err := m.ClientConfigFor("N")
	assert.Nil(err)
	assert.Equal(7200.0, cfg.SimTime)
	assert.Contains(sims["m.cfg"].ended, "N")
	// simulator was redefined after the config swap
	assert.Equal([]string{"N", "N"}, sims["m.cfg"].defined)
}

func TestResetServer(t *testing.T) {
	assert := tdd.New(t)
	m, sims := newTestManager()
	ctx := context.Background()

	assert.Nil(m.CreateClient(ctx, "A", validConfig("a.cfg")))
	assert.Nil(m.CreateClient(ctx, "B", validConfig("b.cfg")))

	m.ResetServer()
	assert.Empty(m.ClientNames())
	assert.True(sims["a.cfg"].killed)
	assert.True(sims["b.cfg"].killed)
}

func TestRunSimulationAsyncWildcard(t *testing.T) {
	assert := tdd.New(t)
	m, sims := newTestManager()
	ctx := context.Background()

	assert.Nil(m.CreateClient(ctx, "A", validConfig("a.cfg")))
	assert.Nil(m.CreateClient(ctx, "B", validConfig("b.cfg")))

	assert.Nil(m.RunSimulationAsync(ctx, []string{"*"}))
	assert.Equal(1, sims["a.cfg"].runs)
	assert.Equal(1, sims["b.cfg"].runs)
}

func TestRunSimulationAsyncUnknownClient(t *testing.T) {
	assert := tdd.New(t)
	m, _ := newTestManager()
	assert.NotNil(m.RunSimulationAsync(context.Background(), []string{"nope"}))
}

func TestRunSimulationSyncAdvancesLaggard(t *testing.T) {
	assert := tdd.New(t)
	m, sims := newTestManager()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.Nil(m.CreateClient(ctx, "A", validConfig("a.cfg")))
	// fake starts at 0% and jumps to 100% after one run release
	assert.Nil(m.RunSimulationSync(ctx, []string{"A"}))
	assert.GreaterOrEqual(sims["a.cfg"].runs, 1)
	assert.Equal(100.0, sims["a.cfg"].progress)
}

func TestRunSimulationSyncNoClients(t *testing.T) {
	assert := tdd.New(t)
	m, _ := newTestManager()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// nothing registered: keepGoing is immediately false
	assert.Nil(m.RunSimulationSync(ctx, []string{"*"}))
}
