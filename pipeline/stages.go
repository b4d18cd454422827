package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"worker-pipeline/constant"
	"worker-pipeline/dto"
	"worker-pipeline/fault"
	"worker-pipeline/media"
	"worker-pipeline/repository"
	"worker-pipeline/schema"
	"worker-pipeline/storage"
	"worker-pipeline/summarize"
	"worker-pipeline/transcribe"
)

// Stages holds the stage adapters. Each adapter is one step of the state
// machine: it takes the inbound step message and returns the advanced message,
// or a typed fault for the runner to route.
type Stages struct {
	sessions    repository.SessionRepository
	store       storage.ObjectStore
	transcoder  media.Transcoder
	transcriber transcribe.Client
	summarizer  summarize.Client
	version     string
	now         func() time.Time
}

func NewStages(
	sessions repository.SessionRepository,
	store storage.ObjectStore,
	transcoder media.Transcoder,
	transcriber transcribe.Client,
	summarizer summarize.Client,
	pipelineVersion string,
) *Stages {
	return &Stages{
		sessions:    sessions,
		store:       store,
		transcoder:  transcoder,
		transcriber: transcriber,
		summarizer:  summarizer,
		version:     pipelineVersion,
		now:         time.Now,
	}
}

func advance(msg dto.StepMessage) dto.StepMessage {
	msg.Stage = NextStage(msg.Stage)
	msg.Attempt = 0
	return msg
}

// Validate checks the start payload fields are present and well typed.
func (s *Stages) Validate(_ context.Context, msg dto.StepMessage) (dto.StepMessage, error) {
	switch {
	case msg.SessionId == "":
		return msg, fault.Errorf(fault.ValidationError, "missing sessionId")
	case msg.TenantId == "":
		return msg, fault.Errorf(fault.ValidationError, "missing tenantId")
	case msg.Bucket == "":
		return msg, fault.Errorf(fault.ValidationError, "missing storage bucket")
	case msg.ChunkCount <= 0:
		return msg, fault.Errorf(fault.ValidationError, "chunkCount must be positive, got %d", msg.ChunkCount)
	case msg.PipelineVersion == "":
		return msg, fault.Errorf(fault.ValidationError, "missing pipelineVersion")
	}
	return advance(msg), nil
}

// Transcode hands the ordered segment list to the media worker and records
// the video and audio artifact locations.
func (s *Stages) Transcode(ctx context.Context, msg dto.StepMessage) (dto.StepMessage, error) {
	refs := make([]string, 0, msg.ChunkCount)
	for i := 0; i < msg.ChunkCount; i++ {
		refs = append(refs, storage.ChunkKey(msg.TenantId, msg.SessionId, i))
	}

	result, err := s.transcoder.Process(ctx, media.Request{
		TenantId:  msg.TenantId,
		SessionId: msg.SessionId,
		ChunkRefs: refs,
	})
	if err != nil {
		return msg, fault.New(fault.ProcessingError, err)
	}

	if err := s.sessions.RecordArtifact(ctx, msg.TenantId, msg.SessionId, constant.ArtifactVideo, result.VideoKey); err != nil {
		return msg, fault.New(fault.CatalogError, err)
	}
	if err := s.sessions.RecordArtifact(ctx, msg.TenantId, msg.SessionId, constant.ArtifactAudio, result.AudioKey); err != nil {
		return msg, fault.New(fault.CatalogError, err)
	}

	next := advance(msg)
	next.VideoKey = result.VideoKey
	next.AudioKey = result.AudioKey
	return next, nil
}

// StartTranscribe begins the asynchronous transcription job. The message
// re-enters AwaitingTranscription carrying the job handle.
func (s *Stages) StartTranscribe(ctx context.Context, msg dto.StepMessage) (dto.StepMessage, error) {
	jobName, err := s.transcriber.Start(ctx, transcribe.StartInput{
		TenantId:      msg.TenantId,
		SessionId:     msg.SessionId,
		AudioKey:      msg.AudioKey,
		TranscriptKey: storage.TranscriptKey(msg.TenantId, msg.SessionId),
	})
	if err != nil {
		return msg, err
	}

	zerolog.Ctx(ctx).Info().Str("session_id", msg.SessionId).Str("job_name", jobName).Msg("transcription job started")
	msg.JobName = jobName
	msg.Attempt = 0
	return msg, nil
}

// PollTranscribe observes the transcription job. Still running means another
// delayed re-entry; the overall wait is capped by deadline, never unbounded.
func (s *Stages) PollTranscribe(ctx context.Context, msg dto.StepMessage, deadline time.Duration) (next dto.StepMessage, waiting bool, err error) {
	if s.now().Sub(msg.StartedAt) > deadline {
		return msg, false, fault.Errorf(fault.TranscriptionError, "transcription exceeded %s deadline", deadline)
	}

	in := transcribe.StartInput{
		TenantId:      msg.TenantId,
		SessionId:     msg.SessionId,
		AudioKey:      msg.AudioKey,
		TranscriptKey: storage.TranscriptKey(msg.TenantId, msg.SessionId),
	}
	result, err := s.transcriber.Poll(ctx, msg.JobName, in)
	if err != nil {
		return msg, false, err
	}

	switch result.Status {
	case transcribe.StatusRunning:
		return msg, true, nil
	case transcribe.StatusFailed:
		return msg, false, fault.Errorf(fault.TranscriptionError, "transcription job %s failed: %s", msg.JobName, result.FailureReason)
	}

	if err := s.sessions.RecordArtifact(ctx, msg.TenantId, msg.SessionId, constant.ArtifactTranscript, result.TranscriptKey); err != nil {
		return msg, false, fault.New(fault.CatalogError, err)
	}

	next = advance(msg)
	next.TranscriptKey = result.TranscriptKey
	return next, false, nil
}

// Summarize feeds the transcript to the model and rejects any output that
// does not match the summary contract. A malformed summary writes nothing.
func (s *Stages) Summarize(ctx context.Context, msg dto.StepMessage) (dto.StepMessage, error) {
	raw, err := s.store.Get(ctx, msg.TranscriptKey)
	if err != nil {
		return msg, err
	}
	transcript, err := schema.ParseTranscript(raw)
	if err != nil {
		return msg, fault.New(fault.ValidationError, err)
	}

	// Throttling surfaces as summarize.ErrThrottled; it stays unclassified so
	// the runner retries it with backoff up to the stage limit.
	modelOut, err := s.summarizer.Summarize(ctx, transcript.PlainText())
	if err != nil {
		return msg, err
	}

	summary, err := schema.ParseSummary(modelOut, msg.SessionId, msg.PipelineVersion, s.summarizer.ModelVersion(), uuid.NewString())
	if err != nil {
		return msg, fault.New(fault.SummaryFormatError, err)
	}

	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return msg, fault.New(fault.SummaryFormatError, err)
	}

	summaryKey := storage.SummaryKey(msg.TenantId, msg.SessionId)
	if err := s.store.Put(ctx, summaryKey, payload, "application/json"); err != nil {
		return msg, err
	}
	if err := s.sessions.RecordArtifact(ctx, msg.TenantId, msg.SessionId, constant.ArtifactSummary, summaryKey); err != nil {
		return msg, fault.New(fault.CatalogError, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", msg.SessionId).
		Int("actions", len(summary.Actions)).
		Int("decisions", len(summary.Decisions)).
		Msg("summary generated")

	next := advance(msg)
	next.SummaryKey = summaryKey
	return next, nil
}

// Finalize stamps the session completed. The CAS from finalizing keeps a
// duplicate finalize invocation from rewriting a terminal row.
func (s *Stages) Finalize(ctx context.Context, msg dto.StepMessage) (dto.StepMessage, error) {
	applied, err := s.sessions.MarkCompleted(ctx, msg.TenantId, msg.SessionId, msg.PipelineVersion)
	if err != nil {
		return msg, fault.New(fault.CatalogError, err)
	}
	if !applied {
		session, err := s.sessions.Get(ctx, msg.TenantId, msg.SessionId)
		if err != nil {
			return msg, fault.New(fault.CatalogError, err)
		}
		if session.Status != constant.SessionStatusCompleted {
			return msg, fault.Errorf(fault.CatalogError, "finalize lost against status %s", session.Status)
		}
	}
	return advance(msg), nil
}
