// Package wire defines the JSON envelopes exchanged with ship, train and
// terminal simulators, the event-name normalization rules shared by every
// client, and the slash-delimited dialect used by truck simulators.
package wire

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ClientType identifies the kind of simulator a client talks to.
type ClientType int

// Recognized simulator kinds.
const (
	ShipClient ClientType = iota
	TrainClient
	TruckClient
	TerminalClient
)

// String returns the human readable name for a client type.
func (c ClientType) String() string {
	switch c {
	case ShipClient:
		return "ship"
	case TrainClient:
		return "train"
	case TruckClient:
		return "truck"
	case TerminalClient:
		return "terminal"
	default:
		return "unknown"
	}
}

// Command is the envelope sent to a simulator to request an action.
type Command struct {
	Command   string                 `json:"command"`
	CommandID string                 `json:"commandId"`
	Timestamp string                 `json:"timestamp"`
	ClientType int                   `json:"clientType"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// NewCommand builds a Command envelope, stamping a fresh identifier and the
// current timestamp in the same ISO-8601 shape the simulators expect.
func NewCommand(clientType ClientType, command string, params map[string]interface{}) Command {
	return Command{
		Command:    command,
		CommandID:  uuid.New().String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		ClientType: int(clientType),
		Params:     params,
	}
}

// Inbound is a message received from a simulator. It may carry an event
// notification, a command result, or both at once.
type Inbound struct {
	Event     string                 `json:"event,omitempty"`
	CommandID string                 `json:"commandId,omitempty"`
	Success   bool                   `json:"success,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Raw       map[string]interface{} `json:"-"`
}

// HasEvent reports whether the message carries an event notification.
func (m Inbound) HasEvent() bool {
	return m.Event != ""
}

// HasCommandResult reports whether the message carries a command response.
func (m Inbound) HasCommandResult() bool {
	return m.CommandID != ""
}

// NormalizeEventName collapses whitespace and casing differences between
// simulators so event names can be reliably matched against expectations.
// It trims surrounding whitespace, lower-cases the value and removes any
// internal spaces; every client applies it before registering or waiting
// on an event.
func NormalizeEventName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "")
}
