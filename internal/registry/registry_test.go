package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
)

func TestRegisterAndGet(t *testing.T) {
	assert := tdd.New(t)
	r := New()

	assert.False(r.Has("simulationCreated"))
	r.Register("Simulation Created", map[string]interface{}{"networkName": "N"})
	assert.True(r.Has("simulationcreated"))
	assert.True(r.Has(" simulationCreated "))

	payload, ok := r.Get("simulationCreated")
	assert.True(ok)
	assert.Equal("N", payload["networkName"])
}

func TestClearNames(t *testing.T) {
	assert := tdd.New(t)
	r := New()
	r.Register("a", nil)
	r.Register("b", nil)
	r.ClearNames([]string{"A "})
	assert.False(r.Has("a"))
	assert.True(r.Has("b"))
	r.ClearAll()
	assert.False(r.Has("b"))
}

func TestWaitAlreadyRegistered(t *testing.T) {
	assert := tdd.New(t)
	r := New()
	r.Register("simulationEnded", map[string]interface{}{"ok": true})

	// an expired context still consumes an already present event
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	name, payload, ok := r.Wait(ctx, []string{"simulationEnded"})
	assert.True(ok)
	assert.Equal("simulationended", name)
	assert.Equal(true, payload["ok"])

	// the entry was consumed
	assert.False(r.Has("simulationEnded"))
}

func TestWaitTimeout(t *testing.T) {
	assert := tdd.New(t)
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, _, ok := r.Wait(ctx, []string{"never"})
	assert.False(ok)
	assert.Less(time.Since(start), 2*time.Second)
}

func TestWaitWakesOnRegister(t *testing.T) {
	assert := tdd.New(t)
	r := New()

	var wg sync.WaitGroup
	wg.Add(1)
	var got string
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		name, _, ok := r.Wait(ctx, []string{"eventA", "eventB"})
		if ok {
			got = name
		}
	}()

	time.Sleep(20 * time.Millisecond)
	r.Register("Event B", map[string]interface{}{})
	wg.Wait()
	assert.Equal("eventb", got)
}

func TestWaitIgnoresUnexpectedEvents(t *testing.T) {
	assert := tdd.New(t)
	r := New()
	done := make(chan bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()
		_, _, ok := r.Wait(ctx, []string{"wanted"})
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	r.Register("other", nil)
	assert.False(<-done)
}
