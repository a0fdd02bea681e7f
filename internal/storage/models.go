package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventRecord is one journaled controller event.
type EventRecord struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Type      string    `json:"type"`
	Data      []byte    `json:"data"` // JSON
	CreatedAt time.Time `json:"created_at"`
}

// Backend persists event records.
type Backend interface {
	Insert(ctx context.Context, rec EventRecord) error
	Recent(ctx context.Context, limit int) ([]EventRecord, error)
	Close() error
}
