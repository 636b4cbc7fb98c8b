// Package scheduler runs engine maintenance on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haskel/quorum/internal/logger"
)

const DefaultInterval = time.Minute

// Ticker is the maintenance target, typically *engine.Engine.
type Ticker interface {
	Tick(ctx context.Context) error
}

type Config struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Scheduler calls Tick on its target every interval. Scheduled and forced
// ticks never overlap.
type Scheduler struct {
	target   Ticker
	interval time.Duration
	logger   *slog.Logger

	tickMu sync.Mutex // serializes ticks

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	stats   Stats
}

// Stats describes the scheduler for /status.
type Stats struct {
	Running      bool      `json:"running"`
	Interval     string    `json:"interval"`
	TickCount    int64     `json:"tick_count"`
	LastTick     time.Time `json:"last_tick,omitzero"`
	LastDuration string    `json:"last_duration,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

func NewScheduler(target Ticker, cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		target:   target,
		interval: interval,
		logger:   logger.Component(cfg.Logger, "scheduler"),
	}
}

// Start launches the loop. Calling it on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.loop(ctx, s.stopCh, s.doneCh)
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// Stop ends the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := s.ForceTick(ctx); err != nil {
				s.logger.Warn("maintenance tick failed", "error", err)
			}
		}
	}
}

// ForceTick runs maintenance now, outside the schedule.
func (s *Scheduler) ForceTick(ctx context.Context) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	err := s.target.Tick(ctx)
	took := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.LastDuration = took.String()
	if err != nil {
		s.stats.LastError = err.Error()
		return err
	}
	s.stats.LastError = ""
	s.stats.TickCount++
	s.stats.LastTick = start
	s.logger.Debug("maintenance tick done", "count", s.stats.TickCount, "duration", took)
	return nil
}

func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.Running = s.running
	stats.Interval = s.interval.String()
	return stats
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
