package dto

import (
	"time"

	"worker-pipeline/constant"
)

// BucketNotification is the envelope MinIO publishes to the AMQP event target
// when an object lands in the bucket. Shape follows the S3 event record format.
type BucketNotification struct {
	EventName string         `json:"EventName"`
	Key       string         `json:"Key"`
	Records   []BucketRecord `json:"Records"`
}

type BucketRecord struct {
	EventTime string `json:"eventTime"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
			ETag string `json:"eTag"`
		} `json:"object"`
	} `json:"s3"`
}

// UploadEvent is one normalized chunk-upload notification.
type UploadEvent struct {
	Bucket         string    `json:"bucket"`
	ObjectKey      string    `json:"objectKey"`
	ObjectSize     int64     `json:"objectSize"`
	ETag           string    `json:"etag"`
	EventTimestamp time.Time `json:"eventTimestamp"`
}

// SessionDeclaration is the producer's announcement of a recording session and
// its expected chunk count. May arrive before, during, or after the uploads.
type SessionDeclaration struct {
	TenantId             string    `json:"tenantId" binding:"required"`
	SessionId            string    `json:"sessionId" binding:"required"`
	ExpectedSegmentCount int       `json:"expectedSegmentCount" binding:"required,gt=0"`
	TotalDurationSeconds *int      `json:"totalDurationSeconds,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

// StartPayload is the input handed to a new orchestration instance.
type StartPayload struct {
	SessionId       string        `json:"sessionId"`
	TenantId        string        `json:"tenantId"`
	StorageBucket   string        `json:"storageBucket"`
	StoragePrefix   string        `json:"storagePrefix"`
	ChunkCount      int           `json:"chunkCount"`
	PipelineVersion string        `json:"pipelineVersion"`
	CreatedAt       time.Time     `json:"createdAt"`
	Metadata        StartMetadata `json:"metadata"`
}

type StartMetadata struct {
	Trigger            string    `json:"trigger"`
	OriginalChunkCount int       `json:"originalChunkCount"`
	TriggeredAt        time.Time `json:"triggeredAt"`
}

// StepMessage drives one invocation of a stage adapter. The orchestrator is
// resumable: all state a stage needs rides in the message, so any worker can
// pick up the next step after a delay or a retry.
type StepMessage struct {
	ExecutionId     string         `json:"executionId"`
	TenantId        string         `json:"tenantId"`
	SessionId       string         `json:"sessionId"`
	Stage           constant.Stage `json:"stage"`
	Attempt         int            `json:"attempt"`
	StartedAt       time.Time      `json:"startedAt"`
	Bucket          string         `json:"bucket"`
	Prefix          string         `json:"prefix"`
	ChunkCount      int            `json:"chunkCount"`
	PipelineVersion string         `json:"pipelineVersion"`

	// Stage outputs carried forward through the pipeline.
	VideoKey      string `json:"videoKey,omitempty"`
	AudioKey      string `json:"audioKey,omitempty"`
	JobName       string `json:"jobName,omitempty"`
	TranscriptKey string `json:"transcriptKey,omitempty"`
	SummaryKey    string `json:"summaryKey,omitempty"`
}

// CredentialExchangeRequest carries the federated identity token presented to
// the credential boundary.
type CredentialExchangeRequest struct {
	IdToken     string `json:"id_token" binding:"required"`
	SessionName string `json:"session_name,omitempty"`
}

type CredentialExchangeResponse struct {
	AccessKeyId     string    `json:"accessKeyId"`
	SecretAccessKey string    `json:"secretAccessKey"`
	SessionToken    string    `json:"sessionToken"`
	Expiration      time.Time `json:"expiration"`
	TenantId        string    `json:"tenantId"`
	StoragePrefix   string    `json:"storagePrefix"`
}
