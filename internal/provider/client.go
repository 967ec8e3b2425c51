package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SyncResult is a generation that completed within the submit call itself.
type SyncResult struct {
	ResultRef string
}

// AsyncHandle identifies an accepted-but-still-running provider job.
// EstimatedSeconds is the provider's own completion estimate and feeds the
// poller's wait budget.
type AsyncHandle struct {
	JobID            string
	EstimatedSeconds int64
}

// Status is one poll observation of an async job.
type Status struct {
	Done      bool
	ResultRef string
	Err       string
}

// Client is the content-provider boundary. Submit returns exactly one of
// SyncResult (completed inline) or AsyncHandle (accepted, poll for it).
type Client interface {
	Submit(ctx context.Context, prompt, modelID string) (*SyncResult, *AsyncHandle, error)
	PollStatus(ctx context.Context, h *AsyncHandle) (*Status, error)
}

// HTTPClient is the authenticated REST implementation of Client.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// Submit posts the prompt for one model. HTTP 200 means the provider
// completed synchronously; 202 means the job was accepted for async
// processing and must be polled.
func (c *HTTPClient) Submit(ctx context.Context, prompt, modelID string) (*SyncResult, *AsyncHandle, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/generations", map[string]string{
		"prompt": prompt,
		"model":  modelID,
	})
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			ResultURL string `json:"result_url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, nil, fmt.Errorf("provider submit %s: decode: %w", modelID, err)
		}
		return &SyncResult{ResultRef: body.ResultURL}, nil, nil

	case http.StatusAccepted:
		var body struct {
			JobID            string `json:"job_id"`
			EstimatedSeconds int64  `json:"estimated_seconds"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, nil, fmt.Errorf("provider submit %s: decode: %w", modelID, err)
		}
		return nil, &AsyncHandle{JobID: body.JobID, EstimatedSeconds: body.EstimatedSeconds}, nil

	default:
		return nil, nil, fmt.Errorf("provider submit %s: status %d", modelID, resp.StatusCode)
	}
}

// PollStatus reads one status snapshot of an async job.
func (c *HTTPClient) PollStatus(ctx context.Context, h *AsyncHandle) (*Status, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/generations/"+h.JobID, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider poll %s: status %d", h.JobID, resp.StatusCode)
	}

	var body struct {
		Status    string `json:"status"`
		ResultURL string `json:"result_url"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("provider poll %s: decode: %w", h.JobID, err)
	}

	switch body.Status {
	case "completed":
		return &Status{Done: true, ResultRef: body.ResultURL}, nil
	case "failed":
		return &Status{Done: true, Err: body.Error}, nil
	default:
		return &Status{}, nil
	}
}
