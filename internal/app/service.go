// Package app wires configuration, storage, providers and the HTTP surface
// into a runnable service.
package app

import (
	"clipflow/internal/api"
	"clipflow/internal/artifacts"
	"clipflow/internal/automation"
	"clipflow/internal/generation"
	"clipflow/internal/publish"
	"clipflow/internal/render"
	"clipflow/internal/store"
	"clipflow/pkg/config"
)

type Service struct {
	cfg          *config.Config
	store        *store.Store
	thumbs       artifacts.Store
	orchestrator *automation.Orchestrator
	poller       *automation.Poller
	server       *api.Server
}

type ServiceOptions struct {
	Config     *config.Config
	Store      *store.Store
	Thumbnails artifacts.Store
	Generator  generation.Client
	Renderer   render.Client
	Publisher  publish.Publisher
}

func NewService(opts ServiceOptions) *Service {
	orchestrator := automation.NewOrchestrator(automation.Options{
		Store:       opts.Store,
		Generator:   opts.Generator,
		Renderer:    opts.Renderer,
		Publisher:   opts.Publisher,
		Thumbnails:  opts.Thumbnails,
		CallTimeout: opts.Config.Render.CallTimeout(),
		DefaultTags: opts.Config.YouTube.DefaultTags,
		Privacy:     opts.Config.YouTube.PrivacyStatus,
	})

	poller := automation.NewPoller(automation.PollerOptions{
		Store:       opts.Store,
		Renderer:    opts.Renderer,
		BatchSize:   opts.Config.Poller.BatchSize,
		CallTimeout: opts.Config.Render.CallTimeout(),
	})

	server := api.NewServer(api.Options{
		Orchestrator:  orchestrator,
		Poller:        poller,
		OperatorToken: opts.Config.OperatorToken,
	})

	return &Service{
		cfg:          opts.Config,
		store:        opts.Store,
		thumbs:       opts.Thumbnails,
		orchestrator: orchestrator,
		poller:       poller,
		server:       server,
	}
}

func (s *Service) Config() *config.Config { return s.cfg }

func (s *Service) Orchestrator() *automation.Orchestrator { return s.orchestrator }

func (s *Service) Poller() *automation.Poller { return s.poller }

func (s *Service) Server() *api.Server { return s.server }

func (s *Service) Thumbnails() artifacts.Store { return s.thumbs }

func (s *Service) Close() error {
	return s.store.Close()
}
