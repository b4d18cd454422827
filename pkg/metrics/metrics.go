package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChunksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_chunks_received_total",
		Help: "Chunk upload notifications recorded in the segment registry.",
	})

	ChunksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_chunks_rejected_total",
		Help: "Chunk upload notifications rejected, by fault kind.",
	}, []string{"kind"})

	SessionsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_sessions_dispatched_total",
		Help: "Sessions for which a processing execution was started.",
	})

	StageCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_stage_completed_total",
		Help: "Stage adapter invocations that succeeded, by stage.",
	}, []string{"stage"})

	StageFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_stage_failed_total",
		Help: "Stage adapter invocations that failed terminally, by fault kind.",
	}, []string{"kind"})
)
