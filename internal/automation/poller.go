package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"clipflow/internal/provider"
	"clipflow/internal/render"
)

// ErrCycleInProgress is returned by RunOnce when a previous poll cycle is
// still running.
var ErrCycleInProgress = errors.New("poll cycle already in progress")

const defaultPollBatch = 20

// Poller tracks in-flight render jobs. Each cycle it asks the provider
// about every rendering request and advances the ones that finished.
type Poller struct {
	store    Store
	renderer render.Client

	batchSize   int
	callTimeout time.Duration

	mu sync.Mutex
}

type PollerOptions struct {
	Store       Store
	Renderer    render.Client
	BatchSize   int
	CallTimeout time.Duration
}

// PollStats summarizes one poll cycle.
type PollStats struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
}

func NewPoller(opts PollerOptions) *Poller {
	batch := opts.BatchSize
	if batch == 0 {
		batch = defaultPollBatch
	}
	timeout := opts.CallTimeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}

	return &Poller{
		store:       opts.Store,
		renderer:    opts.Renderer,
		batchSize:   batch,
		callTimeout: timeout,
	}
}

// RunOnce executes a single poll cycle. Cycles never overlap: if one is
// already running, ErrCycleInProgress is returned immediately.
func (p *Poller) RunOnce(ctx context.Context) (*PollStats, error) {
	if !p.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer p.mu.Unlock()

	requests, err := p.store.List(ctx, Filter{Status: StatusRendering, Limit: p.batchSize})
	if err != nil {
		return nil, fmt.Errorf("list rendering requests: %w", err)
	}

	stats := &PollStats{}
	for _, request := range requests {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++
		p.pollOne(ctx, request, stats)
	}

	if stats.Checked > 0 {
		slog.Info("Poll cycle finished",
			"checked", stats.Checked,
			"completed", stats.Completed,
			"failed", stats.Failed,
			"pending", stats.Pending,
			"errors", stats.Errors)
	}

	return stats, nil
}

// pollOne advances a single rendering request. A failure on one record
// never blocks the rest of the batch.
func (p *Poller) pollOne(ctx context.Context, request *AutomationRequest, stats *PollStats) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	result, err := p.renderer.Poll(callCtx, request.RenderJobID)
	if err != nil {
		if provider.IsPermanent(err) {
			// The provider no longer knows this job. Waiting longer
			// cannot help.
			p.transition(ctx, request, Patch{
				Status:        StatusRenderFailed,
				LastError:     ptr(err.Error()),
				LastErrorKind: ptr(string(provider.KindPermanent)),
			}, &stats.Failed)
			return
		}

		// Provider unreachable. Leave the record as is and try again
		// next cycle.
		slog.Warn("Render poll failed", "id", request.ID, "job_id", request.RenderJobID, "error", err)
		stats.Errors++
		return
	}

	switch result.State {
	case render.StatePending:
		// Heartbeat: refresh updated_at so a stuck job is visible.
		p.transition(ctx, request, Patch{Status: StatusRendering}, &stats.Pending)
	case render.StateDone:
		p.transition(ctx, request, Patch{
			Status:           StatusReadyForReview,
			RenderedVideoURL: &result.VideoURL,
			LastError:        ptr(""),
			LastErrorKind:    ptr(""),
		}, &stats.Completed)
		slog.Info("Render finished", "id", request.ID, "job_id", request.RenderJobID)
	case render.StateError:
		message := result.Message
		if message == "" {
			message = "render failed"
		}
		p.transition(ctx, request, Patch{
			Status:        StatusRenderFailed,
			LastError:     &message,
			LastErrorKind: ptr(string(provider.KindPermanent)),
		}, &stats.Failed)
		slog.Warn("Render failed", "id", request.ID, "job_id", request.RenderJobID, "reason", message)
	default:
		slog.Warn("Unknown render state", "id", request.ID, "state", result.State)
		stats.Errors++
	}
}

func (p *Poller) transition(ctx context.Context, request *AutomationRequest, patch Patch, counter *int) {
	if _, err := p.store.CompareAndSetStatus(ctx, request.ID, StatusRendering, patch); err != nil {
		// Lost to a concurrent transition (e.g. an operator forced the
		// record out of rendering mid-cycle). Nothing to do.
		slog.Debug("Poll transition skipped", "id", request.ID, "error", err)
		return
	}
	*counter++
}

// Run polls on a fixed schedule until the context is cancelled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if _, err := p.RunOnce(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
			slog.Error("Poll cycle failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule poller: %w", err)
	}

	c.Start()
	slog.Info("Poller started", "interval", interval)

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}
