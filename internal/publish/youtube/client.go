// Package youtube publishes rendered videos through the YouTube Data API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"clipflow/internal/provider"
	"clipflow/internal/publish"
)

const (
	categoryID     = "22"
	platform       = "youtube"
	defaultPrivacy = "unlisted"

	downloadTimeout = 5 * time.Minute
)

type Client struct {
	auth           *Auth
	downloadClient *http.Client
	serviceOpts    []option.ClientOption
}

type clientOption func(*Client)

func withServiceOptions(opts ...option.ClientOption) clientOption {
	return func(c *Client) {
		c.serviceOpts = opts
	}
}

func withDownloadClient(client *http.Client) clientOption {
	return func(c *Client) {
		c.downloadClient = client
	}
}

var _ publish.Publisher = (*Client)(nil)

func NewClient(auth *Auth) *Client {
	return newClient(auth)
}

func newClient(auth *Auth, opts ...clientOption) *Client {
	c := &Client{
		auth:           auth,
		downloadClient: &http.Client{Timeout: downloadTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Platform() string {
	return platform
}

func (c *Client) Publish(ctx context.Context, req publish.Request) (*publish.Result, error) {
	if req.VideoURL == "" {
		return nil, provider.Permanentf("publish: no video url")
	}

	path, err := c.download(ctx, req.VideoURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(path) }()

	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	privacy := req.Privacy
	if privacy == "" {
		privacy = defaultPrivacy
	}

	video := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
			CategoryId:  categoryID,
		},
		Status: &yt.VideoStatus{
			PrivacyStatus: privacy,
		},
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open downloaded video: %w", err)
	}
	defer func() { _ = f.Close() }()

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(f).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err)
	}

	return &publish.Result{
		ID:  uploaded.Id,
		URL: fmt.Sprintf("https://www.youtube.com/watch?v=%s", uploaded.Id),
	}, nil
}

func (c *Client) service(ctx context.Context) (*yt.Service, error) {
	if len(c.serviceOpts) > 0 {
		return yt.NewService(ctx, c.serviceOpts...)
	}

	httpClient, err := c.auth.Client(ctx)
	if err != nil {
		return nil, provider.Permanent(fmt.Errorf("youtube auth: %w", err))
	}

	return yt.NewService(ctx, option.WithHTTPClient(httpClient))
}

// download fetches the rendered video to a temp file so the upload can seek
// and resume. The caller removes the file.
func (c *Client) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return "", provider.Transient(fmt.Errorf("download rendered video: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", provider.FromStatusCode(resp.StatusCode, string(body))
	}

	f, err := os.CreateTemp("", "clipflow-upload-*.mp4")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", provider.Transient(fmt.Errorf("write rendered video: %w", err))
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return f.Name(), nil
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return provider.FromStatusCode(apiErr.Code, apiErr.Message)
	}
	return provider.Transient(fmt.Errorf("youtube upload: %w", err))
}
