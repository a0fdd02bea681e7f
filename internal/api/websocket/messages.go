package websocket

import (
	"time"

	"github.com/KevinKickass/OpenStimCore/internal/stimulation"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Controller lifecycle and stimulation events
	MessageTypeControllerEvent MessageType = "controller_event"

	// Snapshot of stimulation.Status
	MessageTypeStatus MessageType = "status"

	MessageTypeSystemState MessageType = "system_state"

	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"
	MessageTypeError       MessageType = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewControllerEventMessage(ev stimulation.Event) Message {
	return Message{
		Type:      MessageTypeControllerEvent,
		Timestamp: ev.Time,
		Data:      ev,
	}
}

func NewStatusMessage(status stimulation.Status) Message {
	return NewMessage(MessageTypeStatus, status)
}

// SystemStateData carries a lifecycle manager state change.
type SystemStateData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state"`
}

func NewSystemStateMessage(state, previous string) Message {
	return NewMessage(MessageTypeSystemState, SystemStateData{State: state, Previous: previous})
}
