// Package agent implements the agent runtime that sits on top of the
// message bus: registration, inbox routing, request/response delivery,
// discovery, and heartbeat-driven offline detection.
package agent

import (
	"time"

	"github.com/wangmax2011/maxclaw/internal/bus"
)

// Status is the lifecycle state of a registered Agent.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Message is an inbound delivery to an Agent's HandleMessage.
type Message = bus.Message

// Agent is the contract every runtime participant implements.
type Agent interface {
	ID() string
	Name() string
	Capabilities() []string
	Initialize() error
	HandleMessage(msg Message) (any, error)
	Shutdown() error
}

// Info is the in-memory directory entry tracked per registered Agent.
type Info struct {
	ID              string
	Name            string
	Capabilities    []string
	Status          Status
	RegisteredAt    time.Time
	LastHeartbeatAt time.Time
}
