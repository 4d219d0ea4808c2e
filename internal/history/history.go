package history

import (
	"context"
	"time"
)

// EventType is the outcome class of one watchdog pass.
type EventType string

const (
	EventHealthy       EventType = "healthy"
	EventRestarted     EventType = "restarted"
	EventRestartFailed EventType = "restart_failed"
	EventStopped       EventType = "stopped"
)

// Action taken during a pass.
const (
	ActionNone    = "none"
	ActionRestart = "restart"
	ActionStop    = "stop"
)

// Record captures what the watchdog saw and did in one pass.
type Record struct {
	Target         string     `json:"target"`
	ProcessRunning bool       `json:"process_running"`
	LastActivity   *time.Time `json:"last_activity,omitempty"`
	IdleSeconds    float64    `json:"idle_seconds"`
	Healthy        bool       `json:"healthy"`
	Reason         string     `json:"reason"`
	Action         string     `json:"action"`
	Success        bool       `json:"success"`
	Message        string     `json:"message,omitempty"`
	Strategy       string     `json:"strategy,omitempty"`
	PID            int        `json:"pid,omitempty"`
}

// Event is one pass exported to an external history store.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Reader is implemented by sinks that can list past events, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}
