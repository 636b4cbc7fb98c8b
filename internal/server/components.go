package server

import (
	"github.com/haskel/quorum/internal/engine/scheduler"
	"github.com/haskel/quorum/internal/monitor"
)

// Components holds the background parts reported by /status.
type Components struct {
	Sampler   *monitor.Sampler
	Scheduler *scheduler.Scheduler
}

// SetComponents sets the background components.
func (s *Server) SetComponents(c *Components) {
	if c == nil {
		c = &Components{}
	}
	s.components = c
}

// Scheduler returns the tick scheduler if available.
func (s *Server) Scheduler() *scheduler.Scheduler {
	return s.components.Scheduler
}
