package interfaces

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenStimCore/internal/config"
	"github.com/KevinKickass/OpenStimCore/internal/stimulation"
	"github.com/KevinKickass/OpenStimCore/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string             `json:"state"`
	Controller       stimulation.Status `json:"controller"`
	WebSocketClients int                `json:"websocket_clients"`
	JournalDriver    string             `json:"journal_driver"`
	StartedAt        time.Time          `json:"started_at"`
}

// EventJournal is the read side of the event journal.
type EventJournal interface {
	Recent(ctx context.Context, limit int) ([]storage.EventRecord, error)
}

type LifecycleManager interface {
	Config() *config.Config
	Controller() *stimulation.Controller
	// Journal is nil when journaling is disabled.
	Journal() EventJournal
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
