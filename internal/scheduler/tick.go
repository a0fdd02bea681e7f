// Package scheduler runs the periodic stack tick in the background.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TickFunc is one synchronization step.
type TickFunc func() error

type Scheduler struct {
	interval time.Duration
	tick     TickFunc
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	loops  atomic.Int32
	ticks  atomic.Uint64
	failed atomic.Uint64
}

func New(interval time.Duration, tick TickFunc, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		tick:     tick,
		logger:   logger,
	}
}

// EnsureRunning starts the loop unless it is already running.
func (s *Scheduler) EnsureRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	// Zähler vor dem Start, damit ActiveLoops sofort stimmt
	s.loops.Add(1)
	go s.loop(ctx, done)

	s.logger.Info("Tick scheduler started", zap.Duration("interval", s.interval))
}

// Stop cancels the loop and blocks until it has exited. An in-flight tick
// finishes first.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return
	}

	s.cancel()
	<-s.done

	s.cancel = nil
	s.done = nil

	s.logger.Info("Tick scheduler stopped",
		zap.Uint64("ticks", s.ticks.Load()),
		zap.Uint64("failed", s.failed.Load()))
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// ActiveLoops returns the number of loop goroutines currently alive.
func (s *Scheduler) ActiveLoops() int {
	return int(s.loops.Load())
}

// Ticks returns how many ticks ran since construction.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks.Load()
}

// Failures returns how many ticks failed or panicked since construction.
func (s *Scheduler) Failures() uint64 {
	return s.failed.Load()
}

// loop owns one count in s.loops, taken by EnsureRunning.
func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		s.loops.Add(-1)
		close(done)
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// Nach Abbruch keinen neuen Tick starten
		if ctx.Err() != nil {
			return
		}

		s.runTick()
		timer.Reset(s.interval)
	}
}

func (s *Scheduler) runTick() {
	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			s.logger.Error("Tick loop failure", zap.Error(fmt.Errorf("panic: %v", r)))
		}
	}()

	s.ticks.Add(1)
	if err := s.tick(); err != nil {
		s.failed.Add(1)
		s.logger.Error("Tick loop failure", zap.Error(err))
	}
}
