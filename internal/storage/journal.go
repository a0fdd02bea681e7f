package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenStimCore/internal/config"
	"github.com/KevinKickass/OpenStimCore/internal/stimulation"
	"go.uber.org/zap"
)

const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Open connects the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.JournalConfig) (Backend, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return NewSQLiteStore(ctx, cfg.Path)
	case DriverPostgres:
		return NewPostgresClient(ctx, cfg.DSN, cfg.MaxConnections)
	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.Driver)
	}
}

// Journal writes controller events to a Backend from a single goroutine.
// Record never blocks; events are dropped when the queue is full.
type Journal struct {
	backend Backend
	logger  *zap.Logger
	queue   chan EventRecord
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	written atomic.Int64
	dropped atomic.Int64
}

func NewJournal(backend Backend, queueSize int, logger *zap.Logger) *Journal {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	j := &Journal{
		backend: backend,
		logger:  logger,
		queue:   make(chan EventRecord, queueSize),
	}
	j.wg.Add(1)
	go j.run()
	return j
}

func (j *Journal) run() {
	defer j.wg.Done()
	j.logger.Info("Journal writer started")
	for rec := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := j.backend.Insert(ctx, rec)
		cancel()
		if err != nil {
			j.logger.Error("Failed to write journal event",
				zap.String("type", rec.Type),
				zap.Error(err))
			continue
		}
		j.written.Add(1)
	}
	j.logger.Info("Journal writer stopped", zap.Int64("written", j.written.Load()))
}

// Record is a stimulation.Observer.
func (j *Journal) Record(ev stimulation.Event) {
	rec := EventRecord{
		ID:        ev.ID,
		SessionID: ev.SessionID,
		Type:      string(ev.Type),
		CreatedAt: ev.Time,
	}
	if len(ev.Data) > 0 {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			j.logger.Warn("Failed to encode journal event data", zap.Error(err))
		} else {
			rec.Data = data
		}
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- rec:
	default:
		j.dropped.Add(1)
		j.logger.Warn("Journal queue full, dropping event",
			zap.String("type", rec.Type),
			zap.Int64("dropped", j.dropped.Load()))
	}
}

// Recent returns the newest events first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]EventRecord, error) {
	return j.backend.Recent(ctx, limit)
}

func (j *Journal) Written() int64 { return j.written.Load() }
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Close drains the queue and closes the backend. Safe to call twice.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	j.wg.Wait()
	return j.backend.Close()
}
