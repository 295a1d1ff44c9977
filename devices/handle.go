package devices

import (
	"github.com/cloudkucooland/ifthen/value"
)

// Handle is a live device as seen by a rule: read its state, send it commands
type Handle interface {
	ID() string
	Type() Type
	Metric(path string) value.Value
	// Command is fire-and-forget; rejections are handled by the command sink
	Command(name string, payload value.Value)
}

// Event is a metric change on one device
type Event struct {
	DeviceID string
	Metric   string
	Value    value.Value
	Previous value.Value
}

// Handler receives change events
type Handler func(Event)

// Subscription is returned by a subscribe call; Unsubscribe may be called any number of times
type Subscription interface {
	Unsubscribe()
}
