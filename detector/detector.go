// Package detector decides, from the segment registry and the session catalog,
// whether a recording session is complete, and dispatches the processing
// pipeline at most once per session.
package detector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"worker-pipeline/constant"
	"worker-pipeline/dto"
	"worker-pipeline/repository"
	"worker-pipeline/storage"
)

const (
	ReasonAwaitingDeclaration = "awaiting-declaration"
	ReasonMissingChunks       = "missing-chunks"
	ReasonUnexpectedIndices   = "unexpected-indices"
	ReasonComplete            = "complete"
)

type Result struct {
	Complete   bool   `json:"complete"`
	Dispatched bool   `json:"dispatched"`
	Reason     string `json:"reason"`
	Missing    []int  `json:"missing,omitempty"`
}

// Dispatcher starts one orchestration instance and returns its handle.
type Dispatcher interface {
	Start(ctx context.Context, payload dto.StartPayload) (handle string, err error)
}

type Detector struct {
	segments   repository.SegmentRepository
	sessions   repository.SessionRepository
	dispatcher Dispatcher
	bucket     string
	version    string
	now        func() time.Time
}

func New(segments repository.SegmentRepository, sessions repository.SessionRepository, dispatcher Dispatcher, bucket, pipelineVersion string) *Detector {
	return &Detector{
		segments:   segments,
		sessions:   sessions,
		dispatcher: dispatcher,
		bucket:     bucket,
		version:    pipelineVersion,
		now:        time.Now,
	}
}

// dispatchableFrom is the status set the ready CAS may move from. Excluding
// every later status makes the conditional write the single linearization
// point: of N concurrent invocations on a just-completed session, exactly one
// applies the transition and dispatches.
var dispatchableFrom = []constant.SessionStatus{
	constant.SessionStatusUploading,
	constant.SessionStatusIncomplete,
}

// Check evaluates completeness for one session. Invocations are concurrent,
// unordered and at-least-once; correctness rests only on the final index set
// and the conditional status write.
func (d *Detector) Check(ctx context.Context, tenantId, sessionId string) (Result, error) {
	log := zerolog.Ctx(ctx).With().Str("tenant_id", tenantId).Str("session_id", sessionId).Logger()

	expected, err := d.sessions.GetExpectedCount(ctx, tenantId, sessionId)
	if err != nil {
		return Result{}, err
	}
	if expected == nil {
		log.Debug().Msg("session size not declared yet")
		return Result{Reason: ReasonAwaitingDeclaration}, nil
	}

	validated, err := d.segments.ListValidatedIndices(ctx, tenantId, sessionId)
	if err != nil {
		return Result{}, err
	}

	missing := missingIndices(validated, *expected)
	if len(missing) > 0 {
		if _, err := d.sessions.TransitionStatus(ctx, tenantId, sessionId, dispatchableFrom, constant.SessionStatusIncomplete); err != nil {
			return Result{}, err
		}
		if err := d.sessions.RecordMissing(ctx, tenantId, sessionId, missing); err != nil {
			return Result{}, err
		}
		log.Info().Ints("missing", missing).Int("expected", *expected).Msg("session incomplete")
		return Result{Reason: ReasonMissingChunks, Missing: missing}, nil
	}

	if len(validated) != *expected {
		// The declared count fully determines the expected index set; indices
		// beyond the declared range never make a session complete.
		log.Warn().Int("validated", len(validated)).Int("expected", *expected).
			Msg("validated segments outside declared range")
		return Result{Reason: ReasonUnexpectedIndices}, nil
	}

	applied, err := d.sessions.TransitionStatus(ctx, tenantId, sessionId, dispatchableFrom, constant.SessionStatusReady)
	if err != nil {
		return Result{}, err
	}
	if !applied {
		log.Debug().Msg("completion race lost, session already dispatched")
		return Result{Complete: true, Reason: ReasonComplete}, nil
	}

	handle, err := d.dispatch(ctx, tenantId, sessionId, *expected)
	if err != nil {
		// Never leave the session stuck in ready with nothing running behind
		// it. Roll back to a retryable status and record the failure.
		if _, rbErr := d.sessions.TransitionStatus(ctx, tenantId, sessionId,
			[]constant.SessionStatus{constant.SessionStatusReady}, constant.SessionStatusUploading); rbErr != nil {
			log.Error().Err(rbErr).Msg("failed to roll back ready status after dispatch failure")
		}
		if detErr := d.sessions.SetErrorDetail(ctx, tenantId, sessionId, fmt.Sprintf("dispatch failed: %v", err)); detErr != nil {
			log.Error().Err(detErr).Msg("failed to record dispatch error")
		}
		return Result{}, err
	}

	if err := d.sessions.SetExecutionHandle(ctx, tenantId, sessionId, handle); err != nil {
		log.Error().Err(err).Str("handle", handle).Msg("failed to persist execution handle")
		return Result{}, err
	}

	log.Info().Str("handle", handle).Int("chunk_count", *expected).Msg("session complete, pipeline dispatched")
	return Result{Complete: true, Dispatched: true, Reason: ReasonComplete}, nil
}

func (d *Detector) dispatch(ctx context.Context, tenantId, sessionId string, chunkCount int) (string, error) {
	now := d.now().UTC()
	payload := dto.StartPayload{
		SessionId:       sessionId,
		TenantId:        tenantId,
		StorageBucket:   d.bucket,
		StoragePrefix:   storage.ChunkPrefix(tenantId, sessionId),
		ChunkCount:      chunkCount,
		PipelineVersion: d.version,
		CreatedAt:       now,
		Metadata: dto.StartMetadata{
			Trigger:            "session-completion",
			OriginalChunkCount: chunkCount,
			TriggeredAt:        now,
		},
	}
	return d.dispatcher.Start(ctx, payload)
}

func missingIndices(validated map[int]struct{}, expected int) []int {
	var missing []int
	for i := 0; i < expected; i++ {
		if _, ok := validated[i]; !ok {
			missing = append(missing, i)
		}
	}
	sort.Ints(missing)
	return missing
}
