package tui

import (
	"time"

	"github.com/haskel/quorum/internal/engine"
	"github.com/haskel/quorum/internal/experiment"
	"github.com/haskel/quorum/internal/server"
)

// Config holds TUI configuration
type Config struct {
	ServerURL       string
	RefreshInterval time.Duration
	User            string
	Password        string
}

// Model represents the TUI state
type Model struct {
	config Config

	// Data from API
	status      *server.StatusResponse
	models      []engine.ModelInfo
	calibration *server.CalibrationResponse
	tests       []TestView

	// UI state
	width       int
	height      int
	loading     bool
	err         error
	lastUpdated time.Time

	// Table scroll position
	tableOffset int
}

// TestView is a running test with its latest analysis.
type TestView struct {
	Test     experiment.TestConfig
	Analysis *experiment.Analysis
}

// NewModel creates a new TUI model
func NewModel(cfg Config) Model {
	return Model{
		config:  cfg,
		loading: true,
	}
}
