package entities

import (
	"time"

	"github.com/google/uuid"

	"worker-pipeline/constant"
)

// Segment is one uploaded chunk of a recording session. Rows are immutable
// once validated; redelivery of the same notification is absorbed by the
// unique (session_id, chunk_index) constraint.
type Segment struct {
	ID              uuid.UUID                `json:"id" gorm:"type:uuid;primary_key"`
	TenantId        string                   `json:"tenant_id" gorm:"type:varchar(128);not null;index:idx_segments_tenant"`
	SessionId       string                   `json:"session_id" gorm:"type:varchar(128);not null;uniqueIndex:uq_segments_session_index"`
	ChunkIndex      int                      `json:"chunk_index" gorm:"not null;uniqueIndex:uq_segments_session_index"`
	StorageRef      string                   `json:"storage_ref" gorm:"type:varchar(500);not null"`
	ByteSize        int64                    `json:"byte_size" gorm:"type:bigint;not null"`
	IntegrityTag    string                   `json:"integrity_tag" gorm:"type:varchar(128)"`
	UploadedAt      time.Time                `json:"uploaded_at" gorm:"not null"`
	ValidationState constant.ValidationState `json:"validation_state" gorm:"type:varchar(20);not null"`
	ExpiresAt       time.Time                `json:"expires_at"`
	CreatedAt       time.Time                `json:"created_at" gorm:"not null"`
}

func (Segment) TableName() string {
	return "segments"
}
