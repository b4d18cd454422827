// Package transcribe defines the speech-to-text boundary. The engine is a
// black box: start a job, then observe its status until it reaches a terminal
// state. The orchestrator never blocks waiting on it.
package transcribe

import "context"

type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

type StartInput struct {
	TenantId      string
	SessionId     string
	AudioKey      string
	TranscriptKey string
}

type PollResult struct {
	Status Status
	// TranscriptKey is set once the job completes and the transcript artifact
	// has been written to object storage.
	TranscriptKey string
	FailureReason string
}

type Client interface {
	// Start begins an asynchronous transcription job and returns its handle.
	Start(ctx context.Context, in StartInput) (jobName string, err error)
	// Poll observes the job named by a previous Start. On completion the
	// implementation writes the transcript artifact to in.TranscriptKey.
	Poll(ctx context.Context, jobName string, in StartInput) (PollResult, error)
}
