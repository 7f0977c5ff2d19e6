package amqp

import (
	"time"

	"github.com/google/uuid"
)

// Producer stamps outbound messages with the properties every CargoNetSim
// publish carries: a content type, a unique message id (the broker-level
// identity, distinct from the command's correlation id) and a timestamp.
type Producer struct {
	// ContentType of the message body; "application/json" for command
	// envelopes and heartbeats, "text/plain" for the truck dialect.
	ContentType string
}

// Message wraps a body ready for publishing.
func (p Producer) Message(body []byte) Message {
	return Message{
		Body:        body,
		ContentType: p.ContentType,
		MessageId:   uuid.New().String(),
		Timestamp:   time.Now().UTC(),
	}
}
