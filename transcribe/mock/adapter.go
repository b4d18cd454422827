// Package mock provides an in-memory transcribe.Client for tests and local
// development. Jobs complete after a configurable number of polls.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"worker-pipeline/schema"
	"worker-pipeline/storage"
	"worker-pipeline/transcribe"
)

type Adapter struct {
	mu sync.Mutex
	// PollsUntilDone is how many Poll calls a job stays RUNNING before
	// completing. Zero completes on the first poll.
	PollsUntilDone int
	// FailJobs makes every job report FAILED instead of completing.
	FailJobs bool
	// Transcript overrides the canned transcript written on completion.
	Transcript *schema.Transcript

	store storage.ObjectStore
	polls map[string]int
}

func New(store storage.ObjectStore) *Adapter {
	return &Adapter{store: store, polls: map[string]int{}}
}

func (a *Adapter) Start(_ context.Context, in transcribe.StartInput) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	jobName := fmt.Sprintf("mock-%s-%s", in.SessionId, uuid.NewString()[:8])
	a.polls[jobName] = 0
	return jobName, nil
}

func (a *Adapter) Poll(ctx context.Context, jobName string, in transcribe.StartInput) (transcribe.PollResult, error) {
	a.mu.Lock()
	count, ok := a.polls[jobName]
	if !ok {
		a.mu.Unlock()
		return transcribe.PollResult{Status: transcribe.StatusFailed, FailureReason: "job not found"}, nil
	}
	a.polls[jobName] = count + 1
	a.mu.Unlock()

	if a.FailJobs {
		return transcribe.PollResult{Status: transcribe.StatusFailed, FailureReason: "mock failure"}, nil
	}
	if count < a.PollsUntilDone {
		return transcribe.PollResult{Status: transcribe.StatusRunning}, nil
	}

	t := a.Transcript
	if t == nil {
		t = cannedTranscript(in.SessionId)
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return transcribe.PollResult{}, err
	}
	if err := a.store.Put(ctx, in.TranscriptKey, raw, "application/json"); err != nil {
		return transcribe.PollResult{}, err
	}
	return transcribe.PollResult{Status: transcribe.StatusCompleted, TranscriptKey: in.TranscriptKey}, nil
}

func cannedTranscript(sessionId string) *schema.Transcript {
	return &schema.Transcript{
		RecordingId:     sessionId,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		PipelineVersion: "mock",
		ModelVersion:    "mock-stt-1",
		Segments: []schema.TranscriptSegment{
			{Id: "seg_000", StartMs: 0, EndMs: 4000, SpeakerLabel: "spk_1", Text: "Let's review the launch checklist."},
			{Id: "seg_001", StartMs: 4000, EndMs: 9000, SpeakerLabel: "spk_2", Text: "I will own the rollout doc by Friday."},
		},
	}
}
