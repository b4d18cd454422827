package rabbitmq

import amqp "github.com/rabbitmq/amqp091-go"

// Queue topology.
//
// Chunk upload notifications arrive from the object store's AMQP event
// target. Pipeline steps flow through their own exchange; delayed steps are
// parked in a TTL queue whose dead-letter routing returns them to the step
// queue, which is how the transcription wait-loop re-invokes itself without a
// blocking sleep.
const (
	ChunkEventsExchange   = "storage_events"
	ChunkEventsQueue      = "chunk_upload_queue"
	ChunkEventsRoutingKey = "chunk.uploaded"
	ChunkEventsDLQ        = "chunk_upload_queue_dlq"

	PipelineExchange   = "pipeline_exchange"
	PipelineStepQueue  = "pipeline_step_queue"
	PipelineRoutingKey = "pipeline.step"
	PipelineWaitQueue  = "pipeline_step_wait_queue"
	PipelineWaitKey    = "pipeline.step.wait"
	PipelineDLQ        = "pipeline_step_queue_dlq"

	dlxExchange = "pipeline_exchange_dlx"
)

// QueueSpec describes one consumable queue and its exchange binding.
type QueueSpec struct {
	Exchange   string
	Queue      string
	RoutingKey string
	DLQ        string
}

var ChunkEventsSpec = QueueSpec{
	Exchange:   ChunkEventsExchange,
	Queue:      ChunkEventsQueue,
	RoutingKey: ChunkEventsRoutingKey,
	DLQ:        ChunkEventsDLQ,
}

var PipelineStepSpec = QueueSpec{
	Exchange:   PipelineExchange,
	Queue:      PipelineStepQueue,
	RoutingKey: PipelineRoutingKey,
	DLQ:        PipelineDLQ,
}

// declareTopology sets up one consumable queue with its dead-letter pair.
func declareTopology(ch *amqp.Channel, spec QueueSpec, kind string) error {
	if err := ch.ExchangeDeclare(spec.Exchange, kind, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(dlxExchange, kind, true, false, false, false, nil); err != nil {
		return err
	}

	dlqKey := "dlq." + spec.RoutingKey
	dlq, err := ch.QueueDeclare(spec.DLQ, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(dlq.Name, dlqKey, dlxExchange, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": dlqKey,
	}
	q, err := ch.QueueDeclare(spec.Queue, true, false, false, false, args)
	if err != nil {
		return err
	}
	return ch.QueueBind(q.Name, spec.RoutingKey, spec.Exchange, false, nil)
}

// declareWaitQueue sets up the parking queue for delayed step messages.
// Expired messages dead-letter straight back onto the step queue.
func declareWaitQueue(ch *amqp.Channel) error {
	args := amqp.Table{
		"x-dead-letter-exchange":    PipelineExchange,
		"x-dead-letter-routing-key": PipelineRoutingKey,
	}
	q, err := ch.QueueDeclare(PipelineWaitQueue, true, false, false, false, args)
	if err != nil {
		return err
	}
	return ch.QueueBind(q.Name, PipelineWaitKey, PipelineExchange, false, nil)
}
