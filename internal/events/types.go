// Package events defines the session event types carried on the EventBus.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	EventSessionStarted  EventType = "session_started"
	EventStepCompleted   EventType = "step_completed"
	EventSessionFinished EventType = "session_finished"
	EventShutdown        EventType = "shutdown"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// SessionStartedPayload is emitted before the first call of a session.
type SessionStartedPayload struct {
	SessionID string    `json:"session_id"`
	Username  string    `json:"username"`
	BaseURL   string    `json:"base_url"`
	Channel   string    `json:"channel"`
	StartedAt time.Time `json:"started_at"`
}

// StepCompletedPayload is emitted after every completed transition. It
// never carries credentials, session keys or response bodies.
type StepCompletedPayload struct {
	SessionID  string `json:"session_id"`
	State      string `json:"state"`
	Target     string `json:"target"`
	Skipped    bool   `json:"skipped,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Status     *int64 `json:"status,omitempty"`
}

// SessionFinishedPayload is emitted once a session reaches a terminal state.
type SessionFinishedPayload struct {
	SessionID  string `json:"session_id"`
	Username   string `json:"username"`
	State      string `json:"state"`
	FailedStep string `json:"failed_step,omitempty"`
	Error      string `json:"error,omitempty"`
	Characters int    `json:"characters"`
	DurationMS int64  `json:"duration_ms"`
}
