package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haskel/quorum/internal/server/middleware"
)

const clientTimeout = 10 * time.Second

// Client talks JSON to a running quorum server.
type Client struct {
	baseURL  string
	client   *http.Client
	user     string
	password string
}

// NewClient builds a client from the global --host, --port, --user and
// --password flags.
func NewClient() *Client {
	return &Client{
		baseURL:  GetServerURL(),
		client:   &http.Client{Timeout: clientTimeout},
		user:     user,
		password: password,
	}
}

// APIError is a response whose status was not the expected one.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("server returned status %d: %s (request %s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// GetJSON decodes a 200 response from path into v.
func (c *Client) GetJSON(path string, v any) error {
	return c.call(http.MethodGet, path, nil, http.StatusOK, v)
}

// PostJSON sends body as JSON and decodes a response with status want into v.
// v may be nil when the body is not needed.
func (c *Client) PostJSON(path string, body any, want int, v any) error {
	return c.call(http.MethodPost, path, body, want, v)
}

func (c *Client) call(method, path string, body any, want int, v any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" && c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != want {
		return apiError(resp, data)
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError prefers the server's JSON error body and falls back to the raw text.
func apiError(resp *http.Response, data []byte) *APIError {
	e := &APIError{
		Status:    resp.StatusCode,
		Message:   string(bytes.TrimSpace(data)),
		RequestID: resp.Header.Get(middleware.RequestIDHeader),
	}
	var body middleware.ErrorResponse
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		e.Message = body.Error
		if body.RequestID != "" {
			e.RequestID = body.RequestID
		}
	}
	return e
}
