// Package client is the Go client for the rotor assignment API. It is
// meant for schedulers and reporting workers that batch click
// observations, apply the returned suffixes downstream, and acknowledge
// the outcome.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/trailmark/rotor/pkg/rotation"
)

// Options tunes the HTTP client. The zero value gets sensible defaults
// from New.
type Options struct {
	Timeout        time.Duration
	RetryInitialMs int
	RetryMaxMs     int
	MaxRetries     int
	Logger         zerolog.Logger
	HTTPClient     *http.Client
}

// Client talks to one rotor server on behalf of one API token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	retrier *retrier
	logger  zerolog.Logger
}

// New builds a client for the given server base URL and bearer token.
func New(baseURL, token string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    httpClient,
		retrier: newRetrier(opts.RetryInitialMs, opts.RetryMaxMs, opts.MaxRetries, opts.Logger),
		logger:  opts.Logger,
	}
}

// DecideBatch submits up to the server's batch limit of click
// observations and returns one result per request, in order.
func (c *Client) DecideBatch(ctx context.Context, requests []rotation.AssignmentRequest) ([]rotation.AssignmentResult, error) {
	var resp struct {
		Results []rotation.AssignmentResult `json:"results"`
	}
	err := c.post(ctx, "/v1/assignments/decide", map[string]any{"requests": requests}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Ack settles a pending lease. Safe to retry: a replay returns the
// original outcome with AlreadyProcessed set.
func (c *Client) Ack(ctx context.Context, leaseID, campaignID string, applied bool, appliedAt time.Time, nowClicks *int64) (*rotation.AckResult, error) {
	body := map[string]any{
		"lease_id":    leaseID,
		"campaign_id": campaignID,
		"applied":     applied,
		"applied_at":  appliedAt,
	}
	if nowClicks != nil {
		body["now_clicks"] = *nowClicks
	}
	var result rotation.AckResult
	if err := c.post(ctx, "/v1/assignments/ack", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Report logs the downstream write outcome for one handed-out
// assignment. Duplicates are flagged, not rejected.
func (c *Client) Report(ctx context.Context, assignmentID, campaignID string, writeSuccess bool, reportedAt time.Time) (*rotation.ReportResult, error) {
	var result rotation.ReportResult
	err := c.post(ctx, "/v1/assignments/report", map[string]any{
		"assignment_id": assignmentID,
		"campaign_id":   campaignID,
		"write_success": writeSuccess,
		"reported_at":   reportedAt,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ReportItem is one entry in a batch report.
type ReportItem struct {
	AssignmentID string    `json:"assignment_id"`
	CampaignID   string    `json:"campaign_id"`
	WriteSuccess bool      `json:"write_success"`
	ReportedAt   time.Time `json:"reported_at"`
}

// ReportBatch submits several reports in one call; each item resolves
// independently.
func (c *Client) ReportBatch(ctx context.Context, reports []ReportItem) ([]rotation.ReportResult, error) {
	var resp struct {
		Results []rotation.ReportResult `json:"results"`
	}
	err := c.post(ctx, "/v1/assignments/report/batch", map[string]any{"reports": reports}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Health checks the server's health endpoint without authentication.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	return c.retrier.do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return statusErrorFrom(resp)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}, isRetryableHTTP)
}

func statusErrorFrom(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(raw, &body)
	return &StatusError{Status: resp.StatusCode, Message: body.Error}
}
