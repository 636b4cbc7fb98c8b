package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sampler collects from every monitor on an interval and keeps the latest state.
type Sampler struct {
	monitors []Monitor
	state    *State
	sampled  bool
	interval time.Duration
	mu       sync.RWMutex
	stopOnce sync.Once
	done     chan struct{}
	logger   *slog.Logger
}

func NewSampler(monitors []Monitor, interval time.Duration, logger *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sampler{
		monitors: monitors,
		state:    &State{},
		interval: interval,
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// DefaultMonitors returns the host, process and data directory monitors.
// The process monitor is left out when the process cannot be inspected.
func DefaultMonitors(dataDir string, logger *slog.Logger) []Monitor {
	monitors := []Monitor{NewHostMonitor()}
	if pm, err := NewProcessMonitor(); err == nil {
		monitors = append(monitors, pm)
	} else {
		logger.Warn("process monitor unavailable", "error", err)
	}
	if dataDir != "" {
		monitors = append(monitors, NewDiskMonitor(dataDir))
	}
	return monitors
}

func (s *Sampler) Start(ctx context.Context) error {
	// Initial collection
	s.Collect()

	go s.runLoop(ctx)

	s.logger.Info("sampler started", "interval", s.interval, "monitors", len(s.monitors))
	return nil
}

func (s *Sampler) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		s.logger.Info("sampler stopped")
	})
	return nil
}

func (s *Sampler) State() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// ResourceUsage reports the process memory and CPU percent from the latest sample.
func (s *Sampler) ResourceUsage() (memoryPercent, cpuPercent float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.sampled {
		return 0, 0, false
	}
	return s.state.Process.MemoryPercent, s.state.Process.CPUPercent, true
}

func (s *Sampler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Collect()
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// Collect runs every monitor once and replaces the state.
func (s *Sampler) Collect() {
	next := &State{Timestamp: time.Now()}
	processSampled := false

	for _, m := range s.monitors {
		data, err := m.Collect()
		if err != nil {
			s.logger.Warn("monitor collection failed",
				"monitor", m.Name(),
				"error", err,
			)
			continue
		}

		switch v := data.(type) {
		case *HostState:
			next.Host = *v
		case *ProcessState:
			next.Process = *v
			processSampled = true
		case []DiskState:
			next.Disks = append(next.Disks, v...)
		}
	}

	s.mu.Lock()
	s.state = next
	s.sampled = processSampled
	s.mu.Unlock()
}
