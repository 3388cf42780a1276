package models

import "time"

// OperatorResource is the ResourceID carried by events that an operator
// injected through the chat channel rather than the monitor.
const OperatorResource = "operator"

// Alert sources, used for metric labels.
const (
	SourceMonitor = "monitor"
	SourceInbound = "inbound"
)

// ContainerHealth is the tracked health of one container id.
// UnhealthySince is non-nil iff Healthy is false, and Acknowledged is only
// ever true while Healthy is false.
type ContainerHealth struct {
	ID             string
	Name           string
	Healthy        bool
	UnhealthySince *time.Time
	Acknowledged   bool
}

// NewContainerHealth returns the state of a container that has not been seen before.
func NewContainerHealth(id string) ContainerHealth {
	return ContainerHealth{ID: id, Name: id, Healthy: true}
}

// AlertEvent is an immutable notification waiting to be delivered.
type AlertEvent struct {
	ID          string
	ResourceID  string
	Message     string
	CreatedAt   time.Time
	Destination string
	Source      string
}

// Container is one row of the persisted container inventory.
type Container struct {
	ID          string
	Name        string
	Image       string
	State       string
	Status      string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// InboundMessage is a chat message received by the bot.
type InboundMessage struct {
	SenderID string
	ChatID   string
	Text     string
	HasText  bool
}
