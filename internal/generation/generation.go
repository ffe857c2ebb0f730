package generation

import "context"

// Request carries the user inputs for a script generation call.
type Request struct {
	Prompt     string
	Audience   string
	MinSeconds int
	MaxSeconds int
}

// Result is the generated content package for one automation request.
type Result struct {
	Script       string
	Title        string
	Description  string
	Tags         []string
	ThumbnailURL string
}

// Client generates a script and metadata from a prompt. Implementations
// return classified provider failures (internal/provider) on error.
type Client interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}
