package automation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"clipflow/internal/artifacts"
	"clipflow/internal/generation"
	"clipflow/internal/provider"
	"clipflow/internal/publish"
	"clipflow/internal/render"
)

const (
	maxPromptLength    = 2000
	defaultCallTimeout = 2 * time.Minute
)

// Orchestrator drives automation requests through the lifecycle. Every
// transition goes through the store's compare-and-set, so two operations
// racing on the same record resolve to exactly one winner.
type Orchestrator struct {
	store     Store
	generator generation.Client
	renderer  render.Client
	publisher publish.Publisher
	thumbs    artifacts.Store

	httpClient  *http.Client
	callTimeout time.Duration
	defaultTags []string
	privacy     string

	now   func() time.Time
	newID func() string
}

type Options struct {
	Store     Store
	Generator generation.Client
	Renderer  render.Client
	Publisher publish.Publisher

	// Thumbnails is optional. When set, generated thumbnails are mirrored
	// into it and the stored URL points at the mirror.
	Thumbnails artifacts.Store

	CallTimeout time.Duration
	DefaultTags []string
	Privacy     string
}

type SubmitInput struct {
	Prompt         string `json:"prompt"`
	TargetAudience string `json:"target_audience"`
	MinSeconds     int    `json:"min_seconds"`
	MaxSeconds     int    `json:"max_seconds"`
}

func NewOrchestrator(opts Options) *Orchestrator {
	timeout := opts.CallTimeout
	if timeout == 0 {
		timeout = defaultCallTimeout
	}

	return &Orchestrator{
		store:       opts.Store,
		generator:   opts.Generator,
		renderer:    opts.Renderer,
		publisher:   opts.Publisher,
		thumbs:      opts.Thumbnails,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		callTimeout: timeout,
		defaultTags: opts.DefaultTags,
		privacy:     opts.Privacy,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Submit validates the input, creates a new draft request, and
// immediately attempts generation for it. A generation provider failure
// does not fail the submission: the record is returned in
// generation_failed with the error recorded on it.
func (o *Orchestrator) Submit(ctx context.Context, input SubmitInput) (*AutomationRequest, error) {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return nil, &ValidationError{Field: "prompt", Reason: "must not be empty"}
	}
	if len(prompt) > maxPromptLength {
		return nil, &ValidationError{Field: "prompt", Reason: fmt.Sprintf("exceeds %d characters", maxPromptLength)}
	}
	if input.MinSeconds < 0 || input.MaxSeconds < 0 {
		return nil, &ValidationError{Field: "duration", Reason: "must not be negative"}
	}
	if input.MinSeconds > 0 && input.MaxSeconds > 0 && input.MinSeconds > input.MaxSeconds {
		return nil, &ValidationError{Field: "duration", Reason: "min_seconds exceeds max_seconds"}
	}

	now := o.now().UTC()
	request := &AutomationRequest{
		ID:             o.newID(),
		Prompt:         prompt,
		TargetAudience: strings.TrimSpace(input.TargetAudience),
		MinSeconds:     input.MinSeconds,
		MaxSeconds:     input.MaxSeconds,
		Status:         StatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := o.store.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	slog.Info("Request submitted", "id", request.ID)
	return o.Generate(ctx, request.ID)
}

func (o *Orchestrator) Get(ctx context.Context, id string) (*AutomationRequest, error) {
	return o.store.GetByID(ctx, id)
}

func (o *Orchestrator) List(ctx context.Context, filter Filter) ([]*AutomationRequest, error) {
	return o.store.List(ctx, filter)
}

// Generate produces the script, title, description, tags and thumbnail for
// a request. Regenerating an already generated request overwrites the
// previous content. The record is claimed via a transition to generating
// before the provider call, so a concurrent Generate on the same record
// loses the compare-and-set and backs off.
//
// Provider failures do not surface as errors: the request moves to
// generation_failed with the failure recorded on it, and the updated
// record is returned.
func (o *Orchestrator) Generate(ctx context.Context, id string) (*AutomationRequest, error) {
	request, err := o.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch request.Status {
	case StatusDraft, StatusGenerated, StatusGenerationFailed:
	default:
		return nil, &InvalidStateError{ID: id, Status: request.Status, Op: "generate"}
	}

	if _, err := o.store.CompareAndSetStatus(ctx, id, request.Status, Patch{Status: StatusGenerating}); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	result, err := o.generator.Generate(callCtx, generation.Request{
		Prompt:     request.Prompt,
		Audience:   request.TargetAudience,
		MinSeconds: request.MinSeconds,
		MaxSeconds: request.MaxSeconds,
	})
	if err != nil {
		return o.recordFailure(ctx, id, StatusGenerating, StatusGenerationFailed, err)
	}

	thumbnailURL := o.mirrorThumbnail(ctx, id, result.ThumbnailURL)

	updated, err := o.store.CompareAndSetStatus(ctx, id, StatusGenerating, Patch{
		Status:        StatusGenerated,
		Script:        &result.Script,
		Title:         &result.Title,
		Description:   &result.Description,
		Tags:          result.Tags,
		ThumbnailURL:  &thumbnailURL,
		LastError:     ptr(""),
		LastErrorKind: ptr(""),
	})
	if err != nil {
		return nil, fmt.Errorf("record generation result: %w", err)
	}

	slog.Info("Content generated", "id", id, "title", updated.Title)
	return updated, nil
}

// SubmitRender hands the generated script to the render provider and
// records the returned job id. The request must hold generated content; a
// request already rendering is rejected before any provider call is made.
func (o *Orchestrator) SubmitRender(ctx context.Context, id string) (*AutomationRequest, error) {
	request, err := o.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch request.Status {
	case StatusGenerated, StatusRenderFailed:
	default:
		return nil, &InvalidStateError{ID: id, Status: request.Status, Op: "submit render for"}
	}
	if request.Script == "" {
		return nil, &InvalidStateError{ID: id, Status: request.Status, Op: "submit render without a script for"}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	result, err := o.renderer.Submit(callCtx, render.SubmitRequest{
		Script: request.Script,
		Title:  request.Title,
	})
	if err != nil {
		return o.recordFailure(ctx, id, request.Status, StatusRenderFailed, err)
	}

	updated, err := o.store.CompareAndSetStatus(ctx, id, request.Status, Patch{
		Status:           StatusRendering,
		RenderJobID:      &result.JobID,
		RenderedVideoURL: ptr(""),
		LastError:        ptr(""),
		LastErrorKind:    ptr(""),
	})
	if err != nil {
		// The job was accepted upstream but another transition won the
		// record. The job is abandoned; the poller only tracks job ids
		// that made it into the store.
		slog.Warn("Render job orphaned by concurrent transition", "id", id, "job_id", result.JobID)
		return nil, err
	}

	slog.Info("Render submitted", "id", id, "job_id", result.JobID)
	return updated, nil
}

// Approve marks a reviewed request as ready to publish.
func (o *Orchestrator) Approve(ctx context.Context, id string) (*AutomationRequest, error) {
	request, err := o.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if request.Status != StatusReadyForReview {
		return nil, &InvalidStateError{ID: id, Status: request.Status, Op: "approve"}
	}

	approvedAt := o.now().UTC()
	updated, err := o.store.CompareAndSetStatus(ctx, id, StatusReadyForReview, Patch{
		Status:     StatusApproved,
		ApprovedAt: &approvedAt,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Request approved", "id", id)
	return updated, nil
}

// Publish uploads the rendered video. Only approved requests (or earlier
// publish failures) reach the publisher; anything else is rejected before
// the publisher is invoked.
func (o *Orchestrator) Publish(ctx context.Context, id string) (*AutomationRequest, error) {
	request, err := o.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch request.Status {
	case StatusApproved, StatusPublishFailed:
	default:
		return nil, &InvalidStateError{ID: id, Status: request.Status, Op: "publish"}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	result, err := o.publisher.Publish(callCtx, publish.Request{
		VideoURL:    request.RenderedVideoURL,
		Title:       request.Title,
		Description: request.Description,
		Tags:        mergeTags(request.Tags, o.defaultTags),
		Privacy:     o.privacy,
	})
	if err != nil {
		return o.recordFailure(ctx, id, request.Status, StatusPublishFailed, err)
	}

	publishedAt := o.now().UTC()
	updated, err := o.store.CompareAndSetStatus(ctx, id, request.Status, Patch{
		Status:        StatusPublished,
		PublishedURL:  &result.URL,
		PublishedAt:   &publishedAt,
		LastError:     ptr(""),
		LastErrorKind: ptr(""),
	})
	if err != nil {
		return nil, fmt.Errorf("record publish result: %w", err)
	}

	slog.Info("Request published", "id", id, "url", result.URL)
	return updated, nil
}

// Retry re-runs the step recorded as failed. Requests that are not in a
// failure status are returned unchanged, with one exception: a record
// stuck in generating for longer than any provider call could run (a
// crash between the claim and the completion write) is failed and
// regenerated.
func (o *Orchestrator) Retry(ctx context.Context, id string) (*AutomationRequest, error) {
	request, err := o.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch request.Status {
	case StatusGenerationFailed:
		return o.Generate(ctx, id)
	case StatusRenderFailed:
		return o.SubmitRender(ctx, id)
	case StatusPublishFailed:
		return o.Publish(ctx, id)
	case StatusGenerating:
		if o.now().UTC().Sub(request.UpdatedAt) <= 2*o.callTimeout {
			return request, nil
		}
		if _, err := o.store.CompareAndSetStatus(ctx, id, StatusGenerating, Patch{
			Status:        StatusGenerationFailed,
			LastError:     ptr("generation interrupted"),
			LastErrorKind: ptr(string(provider.KindTransient)),
		}); err != nil {
			return nil, err
		}
		slog.Warn("Reclaimed stale generation claim", "id", id)
		return o.Generate(ctx, id)
	default:
		return request, nil
	}
}

// ForceRenderFailed abandons a render stuck in flight so it can be
// resubmitted. Operator-only escape hatch for jobs the provider lost.
func (o *Orchestrator) ForceRenderFailed(ctx context.Context, id string) (*AutomationRequest, error) {
	request, err := o.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if request.Status != StatusRendering {
		return nil, &InvalidStateError{ID: id, Status: request.Status, Op: "force render failure for"}
	}

	updated, err := o.store.CompareAndSetStatus(ctx, id, StatusRendering, Patch{
		Status:        StatusRenderFailed,
		LastError:     ptr("render abandoned by operator"),
		LastErrorKind: ptr(string(provider.KindPermanent)),
	})
	if err != nil {
		return nil, err
	}

	slog.Warn("Render forcibly failed", "id", id, "job_id", request.RenderJobID)
	return updated, nil
}

// recordFailure moves the request into the given failure status, keeping
// the provider error and its classification on the record. The provider
// error itself is not returned: failed calls are normal pipeline outcomes,
// surfaced through the record.
func (o *Orchestrator) recordFailure(ctx context.Context, id string, from, to Status, callErr error) (*AutomationRequest, error) {
	kind := string(provider.KindOf(callErr))
	message := callErr.Error()

	updated, err := o.store.CompareAndSetStatus(ctx, id, from, Patch{
		Status:        to,
		LastError:     &message,
		LastErrorKind: &kind,
	})
	if err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}

	slog.Warn("Pipeline step failed", "id", id, "status", to, "kind", kind, "error", message)
	return updated, nil
}

// mirrorThumbnail copies a provider-hosted thumbnail into our own artifact
// store. Best effort: on any failure the provider URL is kept.
func (o *Orchestrator) mirrorThumbnail(ctx context.Context, id, url string) string {
	if o.thumbs == nil || url == "" {
		return url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return url
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		slog.Debug("Thumbnail download failed", "id", id, "error", err)
		return url
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("Thumbnail download failed", "id", id, "status", resp.StatusCode)
		_, _ = io.Copy(io.Discard, resp.Body)
		return url
	}

	ext := path.Ext(url)
	if ext == "" || len(ext) > 5 {
		ext = ".png"
	}

	mirrored, err := o.thumbs.Save(ctx, id+"-thumb"+ext, resp.Header.Get("Content-Type"), resp.Body)
	if err != nil {
		slog.Debug("Thumbnail mirror failed", "id", id, "error", err)
		return url
	}

	return mirrored
}

func mergeTags(tags, defaults []string) []string {
	seen := make(map[string]bool, len(tags)+len(defaults))
	var merged []string
	for _, tag := range append(append([]string{}, tags...), defaults...) {
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		merged = append(merged, tag)
	}
	return merged
}

func ptr[T any](v T) *T {
	return &v
}
