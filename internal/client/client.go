// Package client is a thin HTTP client for the slicerd API, used by the
// CLI status and job inspection commands.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a running slicerd instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the given bind address or base URL.
func New(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Health mirrors the /health response.
type Health struct {
	Status          string `json:"status"`
	SlicerAvailable bool   `json:"slicer_available"`
	SlicerVersion   string `json:"slicer_version"`
	ProfilesLoaded  int    `json:"profiles_loaded"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// Job mirrors the slice job response fields the CLI renders.
type Job struct {
	ID              string     `json:"id"`
	ModelID         string     `json:"model_id"`
	ProfileID       string     `json:"profile_id"`
	Status          string     `json:"status"`
	QueuedAt        time.Time  `json:"queued_at"`
	FinishedAt      *time.Time `json:"finished_at"`
	ProgressPercent *float64   `json:"progress_percent"`
	ErrorMessage    string     `json:"error_message"`
}

// JobList mirrors the paginated job listing.
type JobList struct {
	Items []Job `json:"items"`
	Total int   `json:"total"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Health fetches daemon health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.getJSON(ctx, "/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// ListJobs fetches a page of jobs, optionally filtered by status.
func (c *Client) ListJobs(ctx context.Context, status string, limit int) (*JobList, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := "/slice-jobs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var list JobList
	if err := c.getJSON(ctx, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetJob fetches one job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.getJSON(ctx, "/slice-jobs/"+url.PathEscape(jobID), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope errorEnvelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr == nil && envelope.Error.Code != "" {
			return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("request %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
