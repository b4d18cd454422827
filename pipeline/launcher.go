package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"worker-pipeline/constant"
	"worker-pipeline/dto"
	"worker-pipeline/pkg/metrics"
)

// Launcher starts one orchestration instance per dispatch decision by
// publishing the first step message. The returned handle ties all later step
// messages to this execution.
type Launcher struct {
	pub StepPublisher
	now func() time.Time
}

func NewLauncher(pub StepPublisher) *Launcher {
	return &Launcher{pub: pub, now: time.Now}
}

func (l *Launcher) Start(ctx context.Context, payload dto.StartPayload) (string, error) {
	execId := uuid.NewString()
	msg := dto.StepMessage{
		ExecutionId:     execId,
		TenantId:        payload.TenantId,
		SessionId:       payload.SessionId,
		Stage:           constant.StageValidating,
		StartedAt:       l.now().UTC(),
		Bucket:          payload.StorageBucket,
		Prefix:          payload.StoragePrefix,
		ChunkCount:      payload.ChunkCount,
		PipelineVersion: payload.PipelineVersion,
	}
	if err := l.pub.Publish(ctx, msg); err != nil {
		return "", err
	}
	metrics.SessionsDispatched.Inc()
	zerolog.Ctx(ctx).Info().
		Str("session_id", payload.SessionId).
		Str("execution_id", execId).
		Msg("orchestration started")
	return execId, nil
}
