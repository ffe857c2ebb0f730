package automation

import (
	"time"

	"clipflow/internal/provider"
)

// Status is the lifecycle stage of an automation request. It is the single
// source of truth for which operations are legal on the record.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusGenerating       Status = "generating"
	StatusGenerated        Status = "generated"
	StatusGenerationFailed Status = "generation_failed"
	StatusRendering        Status = "rendering"
	StatusReadyForReview   Status = "ready_for_review"
	StatusRenderFailed     Status = "render_failed"
	StatusApproved         Status = "approved"
	StatusPublished        Status = "published"
	StatusPublishFailed    Status = "publish_failed"
)

// transitions is the directed edge set of the request lifecycle. The
// rendering and publish_failed self-edges cover the poll heartbeat and a
// repeated publish failure.
var transitions = map[Status][]Status{
	StatusDraft:            {StatusGenerating},
	StatusGenerating:       {StatusGenerated, StatusGenerationFailed},
	StatusGenerated:        {StatusGenerating, StatusRendering, StatusRenderFailed},
	StatusGenerationFailed: {StatusGenerating},
	StatusRendering:        {StatusRendering, StatusReadyForReview, StatusRenderFailed},
	StatusRenderFailed:     {StatusRendering, StatusRenderFailed},
	StatusReadyForReview:   {StatusApproved},
	StatusApproved:         {StatusPublished, StatusPublishFailed},
	StatusPublished:        nil,
	StatusPublishFailed:    {StatusPublished, StatusPublishFailed},
}

// CanTransition reports whether the lifecycle permits moving from one
// status to another. Every store mutation is checked against this graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValidStatus reports whether s is a known lifecycle status.
func IsValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// IsFailure reports whether s is one of the retryable failure statuses.
func (s Status) IsFailure() bool {
	switch s {
	case StatusGenerationFailed, StatusRenderFailed, StatusPublishFailed:
		return true
	}
	return false
}

// IsTerminal reports whether s admits no further transitions.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// HasRenderJob reports whether a record in status s carries an external
// render job id.
func (s Status) HasRenderJob() bool {
	switch s {
	case StatusRendering, StatusReadyForReview, StatusRenderFailed,
		StatusApproved, StatusPublished, StatusPublishFailed:
		return true
	}
	return false
}

// AutomationRequest is one user-initiated content pipeline run, tracked
// end-to-end from prompt to publish. Mutated exclusively through the
// orchestrator and poller transition functions; never deleted.
type AutomationRequest struct {
	ID             string `json:"id"`
	Prompt         string `json:"prompt"`
	TargetAudience string `json:"target_audience,omitempty"`
	MinSeconds     int    `json:"min_seconds,omitempty"`
	MaxSeconds     int    `json:"max_seconds,omitempty"`

	Script       string   `json:"script,omitempty"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`

	RenderJobID      string `json:"render_job_id,omitempty"`
	RenderedVideoURL string `json:"rendered_video_url,omitempty"`
	PublishedURL     string `json:"published_url,omitempty"`

	Status        Status        `json:"status"`
	LastError     string        `json:"last_error,omitempty"`
	LastErrorKind provider.Kind `json:"last_error_kind,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Patch is the set of field updates applied together with a status
// transition. Nil pointers leave the stored value untouched; a pointer to
// the zero value clears it.
type Patch struct {
	Status Status

	Script       *string
	Title        *string
	Description  *string
	Tags         []string
	ThumbnailURL *string

	RenderJobID      *string
	RenderedVideoURL *string
	PublishedURL     *string

	LastError     *string
	LastErrorKind *string

	ApprovedAt  *time.Time
	PublishedAt *time.Time
}

// Filter narrows List results.
type Filter struct {
	Status Status
	Limit  int
}
