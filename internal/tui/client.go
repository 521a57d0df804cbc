package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the daemon API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// ActiveProgress fetches all non-terminal progress records.
func (c *Client) ActiveProgress() ([]ProgressItem, error) {
	var items []ProgressItem
	if err := c.get("/progress/", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// QueueStats fetches aggregate queue counts.
func (c *Client) QueueStats() (*QueueStats, error) {
	var stats QueueStats
	if err := c.get("/queue/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// WorkerStatus fetches the daemon worker's live state.
func (c *Client) WorkerStatus() (*WorkerStatus, error) {
	var status WorkerStatus
	if err := c.get("/worker", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TaskEvents fetches the transition log for a task.
func (c *Client) TaskEvents(taskID string) ([]EventItem, error) {
	var events []EventItem
	if err := c.get("/queue/tasks/"+taskID+"/events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CheckHealth checks whether the daemon is reachable.
func (c *Client) CheckHealth() bool {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) get(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s", string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
