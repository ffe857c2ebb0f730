// Package hosted implements render.Client against the hosted rendering API.
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"clipflow/internal/provider"
	"clipflow/internal/render"
	"clipflow/pkg/httputil"
)

const (
	baseURL = "https://api.cliprender.io/v1"
	timeout = 60 * time.Second
)

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *httputil.RetryClient
}

type Config struct {
	APIKey string
}

type option func(*Client)

type submitRequest struct {
	Script string `json:"script"`
	Title  string `json:"title"`
	Format string `json:"format"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type jobResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

func withBaseURL(url string) option {
	return func(c *Client) {
		c.baseURL = url
	}
}

func withHTTPClient(client *http.Client) option {
	return func(c *Client) {
		c.httpClient = httputil.NewRetryClient(client, httputil.RetryConfig{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
		})
	}
}

func NewClient(cfg Config) render.Client {
	return newClient(cfg)
}

func newClient(cfg Config, opts ...option) *Client {
	c := &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httputil.NewRetryClient(&http.Client{Timeout: timeout}, httputil.DefaultRetryConfig()),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Submit(ctx context.Context, req render.SubmitRequest) (*render.SubmitResult, error) {
	if req.Script == "" {
		return nil, provider.Permanentf("render submit: empty script")
	}

	payload, err := json.Marshal(submitRequest{
		Script: req.Script,
		Title:  req.Title,
		Format: "vertical_1080p",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal submit request: %w", err)
	}

	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/renders", payload, &resp); err != nil {
		return nil, err
	}

	if resp.JobID == "" {
		return nil, provider.Transientf("render submit: provider returned no job id")
	}

	return &render.SubmitResult{JobID: resp.JobID}, nil
}

func (c *Client) Poll(ctx context.Context, jobID string) (*render.PollResult, error) {
	if jobID == "" {
		return nil, provider.Permanentf("render poll: empty job id")
	}

	var resp jobResponse
	if err := c.do(ctx, http.MethodGet, "/renders/"+jobID, nil, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case "queued", "processing":
		return &render.PollResult{State: render.StatePending}, nil
	case "completed":
		if resp.VideoURL == "" {
			return nil, provider.Transientf("render poll: job %s completed without video url", jobID)
		}
		return &render.PollResult{State: render.StateDone, VideoURL: resp.VideoURL}, nil
	case "failed":
		return &render.PollResult{State: render.StateError, Message: resp.Error}, nil
	default:
		return nil, provider.Transientf("render poll: unknown job status %q", resp.Status)
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Transient(fmt.Errorf("render api request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return provider.FromStatusCode(resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return provider.Transient(fmt.Errorf("decode render api response: %w", err))
	}

	return nil
}
