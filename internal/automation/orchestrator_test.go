package automation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"clipflow/internal/generation"
	"clipflow/internal/provider"
	"clipflow/internal/publish"
	"clipflow/internal/render"
)

// memStore is an in-memory Store with the same compare-and-set contract as
// the SQL implementation.
type memStore struct {
	mu       sync.Mutex
	requests map[string]*AutomationRequest
}

func newMemStore() *memStore {
	return &memStore{requests: make(map[string]*AutomationRequest)}
}

func (s *memStore) Create(_ context.Context, request *AutomationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[request.ID]; ok {
		return fmt.Errorf("duplicate id %s", request.ID)
	}
	clone := *request
	s.requests[request.ID] = &clone
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*AutomationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *request
	return &clone, nil
}

func (s *memStore) List(_ context.Context, filter Filter) ([]*AutomationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*AutomationRequest
	for _, request := range s.requests {
		if filter.Status != "" && request.Status != filter.Status {
			continue
		}
		clone := *request
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *memStore) CompareAndSetStatus(_ context.Context, id string, expected Status, patch Patch) (*AutomationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !CanTransition(expected, patch.Status) {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("cannot transition from %q to %q", expected, patch.Status)}
	}
	if request.Status != expected {
		return nil, &ConflictError{ID: id, Expected: expected, Actual: request.Status}
	}

	request.Status = patch.Status
	request.UpdatedAt = time.Now().UTC()
	if patch.Script != nil {
		request.Script = *patch.Script
	}
	if patch.Title != nil {
		request.Title = *patch.Title
	}
	if patch.Description != nil {
		request.Description = *patch.Description
	}
	if patch.Tags != nil {
		request.Tags = patch.Tags
	}
	if patch.ThumbnailURL != nil {
		request.ThumbnailURL = *patch.ThumbnailURL
	}
	if patch.RenderJobID != nil {
		request.RenderJobID = *patch.RenderJobID
	}
	if patch.RenderedVideoURL != nil {
		request.RenderedVideoURL = *patch.RenderedVideoURL
	}
	if patch.PublishedURL != nil {
		request.PublishedURL = *patch.PublishedURL
	}
	if patch.LastError != nil {
		request.LastError = *patch.LastError
	}
	if patch.LastErrorKind != nil {
		request.LastErrorKind = provider.Kind(*patch.LastErrorKind)
	}
	if patch.ApprovedAt != nil {
		request.ApprovedAt = patch.ApprovedAt
	}
	if patch.PublishedAt != nil {
		request.PublishedAt = patch.PublishedAt
	}

	clone := *request
	return &clone, nil
}

type fakeGenerator struct {
	result *generation.Result
	err    error
	calls  int
}

func (g *fakeGenerator) Generate(_ context.Context, _ generation.Request) (*generation.Result, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

type fakeRenderer struct {
	submitErr  error
	pollResult *render.PollResult
	pollErr    error

	mu          sync.Mutex
	submitCalls int
	pollCalls   int
}

func (r *fakeRenderer) Submit(_ context.Context, _ render.SubmitRequest) (*render.SubmitResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitCalls++
	if r.submitErr != nil {
		return nil, r.submitErr
	}
	return &render.SubmitResult{JobID: fmt.Sprintf("job-%d", r.submitCalls)}, nil
}

func (r *fakeRenderer) Poll(_ context.Context, _ string) (*render.PollResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pollCalls++
	if r.pollErr != nil {
		return nil, r.pollErr
	}
	return r.pollResult, nil
}

type fakePublisher struct {
	result *publish.Result
	err    error
	calls  int
}

func (p *fakePublisher) Publish(_ context.Context, _ publish.Request) (*publish.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func (p *fakePublisher) Platform() string { return "fake" }

type fixture struct {
	store        *memStore
	generator    *fakeGenerator
	renderer     *fakeRenderer
	publisher    *fakePublisher
	orchestrator *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		store: newMemStore(),
		generator: &fakeGenerator{result: &generation.Result{
			Script:       "A script.",
			Title:        "A title",
			Description:  "A description",
			Tags:         []string{"one"},
			ThumbnailURL: "",
		}},
		renderer: &fakeRenderer{},
		publisher: &fakePublisher{result: &publish.Result{
			ID:  "vid-1",
			URL: "https://www.youtube.com/watch?v=vid-1",
		}},
	}
	f.orchestrator = NewOrchestrator(Options{
		Store:     f.store,
		Generator: f.generator,
		Renderer:  f.renderer,
		Publisher: f.publisher,
	})
	return f
}

func (f *fixture) submit(t *testing.T) *AutomationRequest {
	t.Helper()
	request, err := f.orchestrator.Submit(context.Background(), SubmitInput{Prompt: "Explain transformers"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return request
}

func (f *fixture) mustStatus(t *testing.T, id string, want Status) *AutomationRequest {
	t.Helper()
	request, err := f.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if request.Status != want {
		t.Fatalf("status = %q, want %q", request.Status, want)
	}
	return request
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		input SubmitInput
	}{
		{name: "emptyPrompt", input: SubmitInput{Prompt: "   "}},
		{name: "promptTooLong", input: SubmitInput{Prompt: strings.Repeat("a", maxPromptLength+1)}},
		{name: "negativeDuration", input: SubmitInput{Prompt: "p", MinSeconds: -1}},
		{name: "minExceedsMax", input: SubmitInput{Prompt: "p", MinSeconds: 90, MaxSeconds: 30}},
	}

	f := newFixture()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orchestrator.Submit(context.Background(), tt.input)
			if !IsValidation(err) {
				t.Errorf("Submit() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture()
	f.renderer.pollResult = &render.PollResult{State: render.StateDone, VideoURL: "https://cdn.example.com/v.mp4"}
	ctx := context.Background()

	request := f.submit(t)
	if request.Status != StatusGenerated {
		t.Fatalf("status after submit = %q, want generated", request.Status)
	}
	if request.Script == "" || request.Title == "" {
		t.Fatal("submit should fill script and title")
	}

	request, err := f.orchestrator.SubmitRender(ctx, request.ID)
	if err != nil {
		t.Fatalf("SubmitRender() error = %v", err)
	}
	if request.Status != StatusRendering {
		t.Fatalf("status after render submit = %q, want rendering", request.Status)
	}
	if request.RenderJobID != "job-1" {
		t.Fatalf("RenderJobID = %q, want job-1", request.RenderJobID)
	}

	poller := NewPoller(PollerOptions{Store: f.store, Renderer: f.renderer})
	stats, err := poller.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if stats.Completed != 1 {
		t.Fatalf("stats.Completed = %d, want 1", stats.Completed)
	}
	request = f.mustStatus(t, request.ID, StatusReadyForReview)
	if request.RenderedVideoURL != "https://cdn.example.com/v.mp4" {
		t.Fatalf("RenderedVideoURL = %q", request.RenderedVideoURL)
	}

	request, err = f.orchestrator.Approve(ctx, request.ID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if request.Status != StatusApproved || request.ApprovedAt == nil {
		t.Fatal("approve should set status and timestamp")
	}

	request, err = f.orchestrator.Publish(ctx, request.ID)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if request.Status != StatusPublished {
		t.Fatalf("status after publish = %q, want published", request.Status)
	}
	if request.PublishedURL != "https://www.youtube.com/watch?v=vid-1" {
		t.Fatalf("PublishedURL = %q", request.PublishedURL)
	}
	if request.PublishedAt == nil {
		t.Fatal("publish should set published_at")
	}
}

func TestSubmitGeneratesImmediately(t *testing.T) {
	f := newFixture()

	request := f.submit(t)
	if request.Status != StatusGenerated {
		t.Fatalf("status after submit = %q, want generated", request.Status)
	}
	if f.generator.calls != 1 {
		t.Fatalf("generator calls = %d, want 1: submit attempts generation itself", f.generator.calls)
	}

	stored := f.mustStatus(t, request.ID, StatusGenerated)
	if stored.Script == "" {
		t.Fatal("submit should persist the generated script")
	}
}

func TestGenerateProviderFailure(t *testing.T) {
	f := newFixture()
	f.generator.err = provider.Transientf("model overloaded")

	updated := f.submit(t)
	if updated.Status != StatusGenerationFailed {
		t.Fatalf("status = %q, want generation_failed", updated.Status)
	}
	if updated.LastError == "" {
		t.Fatal("LastError should record the failure")
	}
	if updated.LastErrorKind != provider.KindTransient {
		t.Fatalf("LastErrorKind = %q, want transient", updated.LastErrorKind)
	}
}

func TestGenerateInvalidState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	request := f.submit(t)
	if _, err := f.orchestrator.SubmitRender(ctx, request.ID); err != nil {
		t.Fatalf("SubmitRender() error = %v", err)
	}

	_, err := f.orchestrator.Generate(ctx, request.ID)
	if !IsInvalidState(err) {
		t.Fatalf("Generate() while rendering error = %v, want InvalidStateError", err)
	}
}

func TestRegenerateOverwrites(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	request := f.submit(t)

	f.generator.result = &generation.Result{Script: "New script.", Title: "New title"}
	updated, err := f.orchestrator.Generate(ctx, request.ID)
	if err != nil {
		t.Fatalf("regenerate error = %v", err)
	}

	if updated.Script != "New script." || updated.Title != "New title" {
		t.Fatal("regenerate should overwrite earlier content")
	}
	if f.generator.calls != 2 {
		t.Fatalf("generator calls = %d, want 2", f.generator.calls)
	}
}

func TestSubmitRenderTwice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	request := f.submit(t)
	if _, err := f.orchestrator.SubmitRender(ctx, request.ID); err != nil {
		t.Fatalf("first SubmitRender() error = %v", err)
	}

	_, err := f.orchestrator.SubmitRender(ctx, request.ID)
	if !IsInvalidState(err) {
		t.Fatalf("second SubmitRender() error = %v, want InvalidStateError", err)
	}

	if f.renderer.submitCalls != 1 {
		t.Fatalf("renderer submit calls = %d, want 1: the rejected call must not reach the provider", f.renderer.submitCalls)
	}
	request = f.mustStatus(t, request.ID, StatusRendering)
	if request.RenderJobID != "job-1" {
		t.Fatalf("RenderJobID = %q, want job-1", request.RenderJobID)
	}
}

func TestSubmitRenderTimeoutThenRetry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	request := f.submit(t)

	f.renderer.submitErr = context.DeadlineExceeded
	updated, err := f.orchestrator.SubmitRender(ctx, request.ID)
	if err != nil {
		t.Fatalf("SubmitRender() error = %v, timeouts should be recorded, not returned", err)
	}
	if updated.Status != StatusRenderFailed {
		t.Fatalf("status = %q, want render_failed", updated.Status)
	}
	if updated.LastErrorKind != provider.KindTransient {
		t.Fatalf("LastErrorKind = %q, want transient", updated.LastErrorKind)
	}

	f.renderer.submitErr = nil
	retried, err := f.orchestrator.Retry(ctx, request.ID)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if retried.Status != StatusRendering {
		t.Fatalf("status after retry = %q, want rendering", retried.Status)
	}
	if retried.RenderJobID == "" || retried.RenderJobID == updated.RenderJobID {
		t.Fatalf("retry should record a fresh job id, got %q", retried.RenderJobID)
	}
}

func TestPublishRequiresApproval(t *testing.T) {
	f := newFixture()
	f.renderer.pollResult = &render.PollResult{State: render.StateDone, VideoURL: "https://cdn.example.com/v.mp4"}
	ctx := context.Background()

	request := f.submit(t)
	if _, err := f.orchestrator.SubmitRender(ctx, request.ID); err != nil {
		t.Fatal(err)
	}
	poller := NewPoller(PollerOptions{Store: f.store, Renderer: f.renderer})
	if _, err := poller.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	f.mustStatus(t, request.ID, StatusReadyForReview)

	_, err := f.orchestrator.Publish(ctx, request.ID)
	if !IsInvalidState(err) {
		t.Fatalf("Publish() before approval error = %v, want InvalidStateError", err)
	}
	if f.publisher.calls != 0 {
		t.Fatalf("publisher calls = %d, want 0: unapproved content must never reach the publisher", f.publisher.calls)
	}
}

func TestPublishFailureAndRetry(t *testing.T) {
	f := newFixture()
	f.renderer.pollResult = &render.PollResult{State: render.StateDone, VideoURL: "https://cdn.example.com/v.mp4"}
	ctx := context.Background()

	request := f.submit(t)
	if _, err := f.orchestrator.SubmitRender(ctx, request.ID); err != nil {
		t.Fatal(err)
	}
	poller := NewPoller(PollerOptions{Store: f.store, Renderer: f.renderer})
	if _, err := poller.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orchestrator.Approve(ctx, request.ID); err != nil {
		t.Fatal(err)
	}

	f.publisher.err = provider.Transientf("quota exceeded")
	updated, err := f.orchestrator.Publish(ctx, request.ID)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if updated.Status != StatusPublishFailed {
		t.Fatalf("status = %q, want publish_failed", updated.Status)
	}

	f.publisher.err = nil
	retried, err := f.orchestrator.Retry(ctx, request.ID)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if retried.Status != StatusPublished {
		t.Fatalf("status after retry = %q, want published", retried.Status)
	}
}

func TestRetryNoOpOnHealthyRequest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	request := f.submit(t)
	retried, err := f.orchestrator.Retry(ctx, request.ID)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if retried.Status != StatusGenerated {
		t.Fatalf("status = %q, want generated unchanged", retried.Status)
	}
	if f.generator.calls != 1 || f.renderer.submitCalls != 0 || f.publisher.calls != 0 {
		t.Fatal("retry on a non-failed request must not invoke any provider")
	}
}

func TestRetryReclaimsStaleGeneration(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	request := f.submit(t)
	// Leave the record claimed, the way a crash mid-generation would.
	if _, err := f.store.CompareAndSetStatus(ctx, request.ID, StatusGenerated, Patch{Status: StatusGenerating}); err != nil {
		t.Fatal(err)
	}

	retried, err := f.orchestrator.Retry(ctx, request.ID)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if retried.Status != StatusGenerating {
		t.Fatalf("status = %q: a fresh claim must be left alone", retried.Status)
	}
	if f.generator.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", f.generator.calls)
	}

	f.orchestrator.now = func() time.Time { return time.Now().Add(3 * defaultCallTimeout) }
	retried, err = f.orchestrator.Retry(ctx, request.ID)
	if err != nil {
		t.Fatalf("Retry() on stale claim error = %v", err)
	}
	if retried.Status != StatusGenerated {
		t.Fatalf("status = %q, want generated after reclaiming", retried.Status)
	}
	if f.generator.calls != 2 {
		t.Fatalf("generator calls = %d, want 2: reclaim regenerates", f.generator.calls)
	}
}

func TestForceRenderFailed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	request := f.submit(t)
	if _, err := f.orchestrator.SubmitRender(ctx, request.ID); err != nil {
		t.Fatal(err)
	}

	updated, err := f.orchestrator.ForceRenderFailed(ctx, request.ID)
	if err != nil {
		t.Fatalf("ForceRenderFailed() error = %v", err)
	}
	if updated.Status != StatusRenderFailed {
		t.Fatalf("status = %q, want render_failed", updated.Status)
	}

	_, err = f.orchestrator.ForceRenderFailed(ctx, request.ID)
	if !IsInvalidState(err) {
		t.Fatalf("ForceRenderFailed() on non-rendering error = %v, want InvalidStateError", err)
	}
}

func TestOperationsOnMissingRequest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	ops := map[string]func() error{
		"generate": func() error { _, err := f.orchestrator.Generate(ctx, "missing"); return err },
		"render":   func() error { _, err := f.orchestrator.SubmitRender(ctx, "missing"); return err },
		"approve":  func() error { _, err := f.orchestrator.Approve(ctx, "missing"); return err },
		"publish":  func() error { _, err := f.orchestrator.Publish(ctx, "missing"); return err },
		"retry":    func() error { _, err := f.orchestrator.Retry(ctx, "missing"); return err },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
		})
	}
}
