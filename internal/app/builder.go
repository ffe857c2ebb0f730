package app

import (
	"context"
	"fmt"
	"log/slog"

	"clipflow/internal/artifacts"
	"clipflow/internal/generation"
	groqgen "clipflow/internal/generation/groq"
	"clipflow/internal/provider"
	"clipflow/internal/publish"
	"clipflow/internal/publish/youtube"
	"clipflow/internal/render/hosted"
	"clipflow/internal/store"
	"clipflow/pkg/config"
	"clipflow/pkg/prompts"
)

func BuildService(ctx context.Context, cfg *config.Config) (*Service, error) {
	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var generator generation.Client
	if cfg.GroqAPIKey != "" {
		p, perr := prompts.Load()
		if perr != nil {
			_ = st.Close()
			return nil, fmt.Errorf("load prompts: %w", perr)
		}
		generator, err = groqgen.NewClient(cfg.GroqAPIKey, cfg.Generation.Model, p)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	} else {
		slog.Warn("GROQ_API_KEY not set, using stub content generation")
		generator = generation.NewStubClient()
	}

	renderer := hosted.NewClient(hosted.Config{APIKey: cfg.RenderAPIKey})

	var publisher publish.Publisher
	if cfg.YouTubeClientID != "" && cfg.YouTubeClientSecret != "" {
		auth := youtube.NewAuth(cfg.YouTubeClientID, cfg.YouTubeClientSecret, cfg.YouTubeTokenPath)
		publisher = youtube.NewClient(auth)
	} else {
		slog.Warn("YouTube credentials not set, publishing is disabled")
		publisher = unconfiguredPublisher{}
	}

	var thumbs artifacts.Store
	if cfg.GCSBucket != "" {
		thumbs, err = artifacts.NewGCSStore(ctx, cfg.GCSBucket, cfg.Storage.GCSPrefix)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	} else {
		thumbs, err = artifacts.NewLocalStore(cfg.Storage.ArtifactsDir)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	return NewService(ServiceOptions{
		Config:     cfg,
		Store:      st,
		Thumbnails: thumbs,
		Generator:  generator,
		Renderer:   renderer,
		Publisher:  publisher,
	}), nil
}

// unconfiguredPublisher stands in when no publishing credentials exist.
// Publish attempts fail permanently instead of crashing the pipeline.
type unconfiguredPublisher struct{}

func (unconfiguredPublisher) Publish(context.Context, publish.Request) (*publish.Result, error) {
	return nil, provider.Permanentf("no publisher configured: set YOUTUBE_CLIENT_ID and YOUTUBE_CLIENT_SECRET")
}

func (unconfiguredPublisher) Platform() string { return "none" }
