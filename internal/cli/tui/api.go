package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/haskel/quorum/internal/engine"
	"github.com/haskel/quorum/internal/experiment"
	"github.com/haskel/quorum/internal/server"
)

// Messages for tea.Cmd
type statusMsg struct {
	data *server.StatusResponse
	err  error
}

type modelsMsg struct {
	data []engine.ModelInfo
	err  error
}

type calibrationMsg struct {
	data *server.CalibrationResponse
	err  error
}

type testsMsg struct {
	data []TestView
	err  error
}

type tickMsg time.Time

// API client for TUI
type apiClient struct {
	baseURL  string
	client   *http.Client
	user     string
	password string
}

func newAPIClient(cfg Config) *apiClient {
	return &apiClient{
		baseURL: cfg.ServerURL,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		user:     cfg.User,
		password: cfg.Password,
	}
}

func (c *apiClient) get(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	if c.user != "" && c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (c *apiClient) getJSON(path string, v any) error {
	data, err := c.get(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// fetchStatus fetches status from API as tea.Cmd
func fetchStatus(cfg Config) tea.Cmd {
	return func() tea.Msg {
		var status server.StatusResponse
		if err := newAPIClient(cfg).getJSON("/status", &status); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{data: &status}
	}
}

// fetchModels fetches registered predictors and their performance.
func fetchModels(cfg Config) tea.Cmd {
	return func() tea.Msg {
		var models []engine.ModelInfo
		if err := newAPIClient(cfg).getJSON("/v1/models", &models); err != nil {
			return modelsMsg{err: err}
		}
		return modelsMsg{data: models}
	}
}

func fetchCalibration(cfg Config) tea.Cmd {
	return func() tea.Msg {
		var cal server.CalibrationResponse
		if err := newAPIClient(cfg).getJSON("/v1/calibration", &cal); err != nil {
			return calibrationMsg{err: err}
		}
		return calibrationMsg{data: &cal}
	}
}

// fetchTests fetches active tests and analyzes each of them.
func fetchTests(cfg Config) tea.Cmd {
	return func() tea.Msg {
		client := newAPIClient(cfg)

		var tests []experiment.TestConfig
		if err := client.getJSON("/v1/tests?active=true", &tests); err != nil {
			return testsMsg{err: err}
		}

		views := make([]TestView, 0, len(tests))
		for _, t := range tests {
			view := TestView{Test: t}
			var a experiment.Analysis
			if err := client.getJSON("/v1/tests/"+url.PathEscape(t.ID)+"/analysis", &a); err == nil {
				view.Analysis = &a
			}
			views = append(views, view)
		}
		return testsMsg{data: views}
	}
}

func fetchAll(cfg Config) tea.Cmd {
	return tea.Batch(
		fetchStatus(cfg),
		fetchModels(cfg),
		fetchCalibration(cfg),
		fetchTests(cfg),
	)
}

// tick creates a periodic tick command
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
