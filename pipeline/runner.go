package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"worker-pipeline/constant"
	"worker-pipeline/dto"
	"worker-pipeline/fault"
	"worker-pipeline/pkg/metrics"
	"worker-pipeline/repository"
)

// StepPublisher schedules step messages. PublishDelayed is how the runner
// suspends: the message comes back after the delay instead of the worker
// holding a sleeping goroutine.
type StepPublisher interface {
	Publish(ctx context.Context, msg dto.StepMessage) error
	PublishDelayed(ctx context.Context, msg dto.StepMessage, delay time.Duration) error
}

type Policy struct {
	PollInterval       time.Duration
	TranscribeDeadline time.Duration
	RetryBase          time.Duration
	MaxAttempts        int
}

func (p Policy) withDefaults() Policy {
	if p.PollInterval == 0 {
		p.PollInterval = 30 * time.Second
	}
	if p.TranscribeDeadline == 0 {
		p.TranscribeDeadline = 2 * time.Hour
	}
	if p.RetryBase == 0 {
		p.RetryBase = 15 * time.Second
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	return p
}

// Runner consumes step messages and advances the state machine. It owns all
// retry and failure routing; stage adapters only classify.
type Runner struct {
	sessions repository.SessionRepository
	stages   *Stages
	pub      StepPublisher
	policy   Policy
}

func NewRunner(sessions repository.SessionRepository, stages *Stages, pub StepPublisher, policy Policy) *Runner {
	return &Runner{sessions: sessions, stages: stages, pub: pub, policy: policy.withDefaults()}
}

// nonTerminalStatuses is the from-set for the failure CAS.
var nonTerminalStatuses = []constant.SessionStatus{
	constant.SessionStatusUploading,
	constant.SessionStatusIncomplete,
	constant.SessionStatusReady,
	constant.SessionStatusValidating,
	constant.SessionStatusTranscoding,
	constant.SessionStatusTranscribing,
	constant.SessionStatusSummarizing,
	constant.SessionStatusFinalizing,
}

func (r *Runner) Handle(ctx context.Context, msg dto.StepMessage) error {
	log := zerolog.Ctx(ctx).With().
		Str("session_id", msg.SessionId).
		Str("execution_id", msg.ExecutionId).
		Str("stage", msg.Stage.String()).
		Int("attempt", msg.Attempt).
		Logger()
	ctx = log.WithContext(ctx)

	if msg.Stage.IsTerminal() {
		return nil
	}

	session, err := r.sessions.Get(ctx, msg.TenantId, msg.SessionId)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			log.Warn().Msg("dropping step for unknown session")
			return nil
		}
		return err
	}
	if session.Status.IsTerminal() {
		// Terminal statuses never move backward, whatever is still in flight.
		log.Debug().Str("status", session.Status.String()).Msg("dropping step for terminal session")
		return nil
	}
	if session.ExecutionHandle != nil && *session.ExecutionHandle != msg.ExecutionId {
		log.Warn().Str("current_handle", *session.ExecutionHandle).Msg("dropping step from stale execution")
		return nil
	}

	// Entry CAS: the external observer always sees the status of the stage
	// currently running. A lost CAS means a concurrent duplicate is ahead.
	applied, err := r.sessions.TransitionStatus(ctx, msg.TenantId, msg.SessionId, EntryFrom(msg.Stage), StatusFor(msg.Stage))
	if err != nil {
		return err
	}
	if !applied {
		log.Debug().Msg("stage entry race lost")
		return nil
	}

	next, waiting, err := r.invoke(ctx, msg)
	if err != nil {
		return r.routeFailure(ctx, msg, err)
	}
	metrics.StageCompleted.WithLabelValues(msg.Stage.String()).Inc()

	if waiting {
		return r.pub.PublishDelayed(ctx, next, r.policy.PollInterval)
	}
	if next.Stage == constant.StageCompleted {
		log.Info().Msg("pipeline completed")
		return nil
	}
	return r.pub.Publish(ctx, next)
}

func (r *Runner) invoke(ctx context.Context, msg dto.StepMessage) (next dto.StepMessage, waiting bool, err error) {
	switch msg.Stage {
	case constant.StageValidating:
		next, err = r.stages.Validate(ctx, msg)
	case constant.StageTranscoding:
		next, err = r.stages.Transcode(ctx, msg)
	case constant.StageAwaitingTranscription:
		if msg.JobName == "" {
			next, err = r.stages.StartTranscribe(ctx, msg)
			waiting = err == nil
		} else {
			next, waiting, err = r.stages.PollTranscribe(ctx, msg, r.policy.TranscribeDeadline)
		}
	case constant.StageSummarizing:
		next, err = r.stages.Summarize(ctx, msg)
	case constant.StageFinalizing:
		next, err = r.stages.Finalize(ctx, msg)
	default:
		err = fmt.Errorf("unknown stage %s", msg.Stage)
	}
	return next, waiting, err
}

func (r *Runner) routeFailure(ctx context.Context, msg dto.StepMessage, stageErr error) error {
	log := zerolog.Ctx(ctx)

	if fault.Retryable(stageErr) && msg.Attempt+1 < r.policy.MaxAttempts {
		retry := msg
		retry.Attempt++
		delay := r.policy.RetryBase * time.Duration(1<<uint(msg.Attempt))
		log.Warn().Err(stageErr).Dur("delay", delay).Msg("stage failed, scheduling retry")
		if err := r.sessions.IncrementRetryCount(ctx, msg.TenantId, msg.SessionId); err != nil {
			log.Error().Err(err).Msg("failed to bump retry counter")
		}
		return r.pub.PublishDelayed(ctx, retry, delay)
	}

	kind := fault.KindOf(stageErr)
	if kind == "" {
		kind = fault.ProcessingError
	}
	metrics.StageFailed.WithLabelValues(string(kind)).Inc()
	log.Error().Err(stageErr).Str("kind", string(kind)).Msg("stage failed terminally")

	applied, err := r.sessions.TransitionStatus(ctx, msg.TenantId, msg.SessionId, nonTerminalStatuses, constant.SessionStatusFailed)
	if err != nil {
		return err
	}
	if applied {
		// Tenant-visible failure surface: status plus a detail string, never a
		// stack trace.
		detail := fmt.Sprintf("%s at stage %s: %v", kind, msg.Stage, stageErr)
		if err := r.sessions.SetErrorDetail(ctx, msg.TenantId, msg.SessionId, detail); err != nil {
			log.Error().Err(err).Msg("failed to record error detail")
		}
	}
	return nil
}
