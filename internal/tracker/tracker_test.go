package tracker

import (
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	assert := tdd.New(t)
	tr := New()
	reply := tr.Track("cmd-1", time.Minute)

	tr.Resolve("cmd-1", true, map[string]interface{}{"value": 42.0})
	res := <-reply
	assert.True(res.Success)
	assert.False(res.TimedOut)
	assert.Equal(42.0, res.Payload["value"])

	// resolving twice is a no-op
	tr.Resolve("cmd-1", true, nil)
}

func TestTimeoutSynthesizesFailure(t *testing.T) {
	assert := tdd.New(t)
	tr := New()
	reply := tr.Track("cmd-2", 20*time.Millisecond)

	select {
	case res := <-reply:
		assert.True(res.TimedOut)
		assert.False(res.Success)
		assert.Equal("cmd-2", res.CommandID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout result never delivered")
	}
}

func TestCancel(t *testing.T) {
	assert := tdd.New(t)
	tr := New()
	reply := tr.Track("cmd-3", 20*time.Millisecond)
	tr.Cancel("cmd-3")

	select {
	case _, open := <-reply:
		assert.False(open)
	case <-time.After(200 * time.Millisecond):
		// no result expected after cancel
	}
}

func TestFailAll(t *testing.T) {
	assert := tdd.New(t)
	tr := New()
	a := tr.Track("a", time.Minute)
	b := tr.Track("b", time.Minute)

	tr.FailAll()
	ra := <-a
	rb := <-b
	assert.False(ra.Success)
	assert.False(rb.Success)
}
