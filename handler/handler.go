package handler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"worker-pipeline/dto"
	"worker-pipeline/intake"
	"worker-pipeline/pipeline"
)

type ServiceDependencies struct {
	Listener *intake.Listener
	Runner   *pipeline.Runner
}

// UploadEventHandler unwraps a bucket notification and feeds each record to
// the intake listener. One delivery may carry several records; a failure on
// any record fails the delivery so the broker redelivers all of them, which
// the listener tolerates.
func UploadEventHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var notification dto.BucketNotification
	if err := json.Unmarshal(msg.Body, &notification); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("dropping unparseable bucket notification")
		return nil
	}

	if !strings.Contains(notification.EventName, "ObjectCreated") {
		return nil
	}

	for _, record := range notification.Records {
		if err := deps.Listener.Handle(ctx, eventFromRecord(ctx, record)); err != nil {
			return err
		}
	}
	return nil
}

// eventFromRecord flattens one S3 record into an upload event. A record whose
// eventTime does not parse still gets a usable timestamp, the receive time,
// so the registry never stores a zero uploaded_at.
func eventFromRecord(ctx context.Context, record dto.BucketRecord) dto.UploadEvent {
	eventTime, err := time.Parse(time.RFC3339, record.EventTime)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Str("event_time", record.EventTime).
			Msg("unparseable event timestamp, using receive time")
		eventTime = time.Now().UTC()
	}
	return dto.UploadEvent{
		Bucket:         record.S3.Bucket.Name,
		ObjectKey:      record.S3.Object.Key,
		ObjectSize:     record.S3.Object.Size,
		ETag:           record.S3.Object.ETag,
		EventTimestamp: eventTime,
	}
}

// StepHandler decodes a pipeline step message and hands it to the runner.
func StepHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var step dto.StepMessage
	if err := json.Unmarshal(msg.Body, &step); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("dropping unparseable step message")
		return nil
	}

	zerolog.Ctx(ctx).Info().
		Str("execution_id", step.ExecutionId).
		Str("session_id", step.SessionId).
		Str("stage", step.Stage.String()).
		Msg("received step message")

	return deps.Runner.Handle(ctx, step)
}
