// Package render defines the contract with the external video rendering
// provider. A render is asynchronous: Submit enqueues a job and returns its
// id, and Poll reports the job's state until it finishes or fails.
package render

import "context"

// JobState is the provider-side lifecycle of a render job.
type JobState string

const (
	StatePending JobState = "pending"
	StateDone    JobState = "done"
	StateError   JobState = "error"
)

type SubmitRequest struct {
	Script string
	Title  string
}

type SubmitResult struct {
	JobID string
}

// PollResult describes a render job at a point in time. VideoURL is set only
// when State is StateDone; Message carries the provider's failure reason when
// State is StateError.
type PollResult struct {
	State    JobState
	VideoURL string
	Message  string
}

type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	Poll(ctx context.Context, jobID string) (*PollResult, error)
}
