package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/banshee-data/erg.report/internal/httputil"
	"github.com/banshee-data/erg.report/internal/session"
	"github.com/banshee-data/erg.report/internal/statistics"
)

// Client talks to the API of a running monitor.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
}

// NewClient returns a client for the monitor at baseURL, for example
// "http://localhost:8080".
func NewClient(baseURL string, c httputil.HTTPClient) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: c}
}

// SendCommand posts cmd to the monitor.
func (c *Client) SendCommand(ctx context.Context, cmd session.Command) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/command", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, http.StatusAccepted, nil)
}

// Metrics fetches the latest session record.
func (c *Client) Metrics(ctx context.Context) (statistics.Metrics, error) {
	var m statistics.Metrics
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/metrics", nil)
	if err != nil {
		return m, err
	}
	err = c.do(req, http.StatusOK, &m)
	return m, err
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode != want {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %d: %s", req.Method, req.URL.Path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
