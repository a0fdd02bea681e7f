package stimulation

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInitialized   EventType = "initialized"
	EventShutdown      EventType = "shutdown"
	EventReset         EventType = "reset"
	// The stack is kept but disconnected; ResetRadio or Shutdown follow.
	EventResetFailed   EventType = "reset_failed"
	EventStarted       EventType = "started"
	EventStopped       EventType = "stopped"
	EventParamsChanged EventType = "params_changed"
)

// Event reports a controller state change.
type Event struct {
	ID        uuid.UUID              `json:"id"`
	Type      EventType              `json:"type"`
	SessionID uuid.UUID              `json:"session_id"`
	Time      time.Time              `json:"time"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Observer receives events synchronously and must not block.
type Observer func(Event)

func (c *Controller) emit(t EventType, session uuid.UUID, data map[string]interface{}) {
	if len(c.observers) == 0 {
		return
	}
	ev := Event{
		ID:        uuid.New(),
		Type:      t,
		SessionID: session,
		Time:      time.Now().UTC(),
		Data:      data,
	}
	for _, fn := range c.observers {
		fn(ev)
	}
}
