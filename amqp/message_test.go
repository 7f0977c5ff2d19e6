package amqp

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestProducerMessage(t *testing.T) {
	assert := tdd.New(t)
	p := Producer{ContentType: "application/json"}

	msg := p.Message([]byte(`{"command":"ping"}`))
	assert.Equal("application/json", msg.ContentType)
	assert.NotEmpty(msg.MessageId)
	assert.False(msg.Timestamp.IsZero())

	// broker-level message ids never repeat
	other := p.Message(nil)
	assert.NotEqual(msg.MessageId, other.MessageId)
}

func TestRandomName(t *testing.T) {
	assert := tdd.New(t)
	a := randomName("send")
	b := randomName("send")
	assert.NotEqual(a, b)
	assert.Contains(a, "send-")
}
