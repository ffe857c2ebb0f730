// Package publish defines the contract with the platform a finished video is
// published to.
package publish

import "context"

type Request struct {
	VideoURL    string
	Title       string
	Description string
	Tags        []string
	Privacy     string
}

type Result struct {
	ID  string
	URL string
}

type Publisher interface {
	Publish(ctx context.Context, req Request) (*Result, error)
	Platform() string
}
