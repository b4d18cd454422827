package entities

import (
	"time"

	"gorm.io/datatypes"

	"worker-pipeline/constant"
)

// Session is the catalog row for one recording. Status moves forward only;
// the conditional update in the session repository is the sole way to change it.
type Session struct {
	TenantId             string                     `json:"tenant_id" gorm:"type:varchar(128);primaryKey"`
	SessionId            string                     `json:"session_id" gorm:"type:varchar(128);primaryKey"`
	ExpectedSegmentCount *int                       `json:"expected_segment_count" gorm:"type:integer"`
	TotalDurationSeconds *int                       `json:"total_duration_seconds" gorm:"type:integer"`
	Status               constant.SessionStatus     `json:"status" gorm:"type:varchar(20);not null;default:'uploading';index:idx_sessions_status"`
	ExecutionHandle      *string                    `json:"execution_handle" gorm:"type:varchar(128)"`
	DerivedArtifacts     datatypes.JSONMap          `json:"derived_artifacts"`
	MissingIndices       datatypes.JSONSlice[int]   `json:"missing_indices"`
	RetryCount           int                        `json:"retry_count" gorm:"not null;default:0"`
	ErrorDetail          *string                    `json:"error_detail" gorm:"type:text"`
	PipelineVersion      string                     `json:"pipeline_version" gorm:"type:varchar(32)"`
	CompletedAt          *time.Time                 `json:"completed_at"`
	CreatedAt            time.Time                  `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time                  `json:"updated_at" gorm:"not null"`
}

func (Session) TableName() string {
	return "sessions"
}

// ArtifactLocation returns the recorded location for kind, or "".
func (s *Session) ArtifactLocation(kind constant.ArtifactKind) string {
	if s.DerivedArtifacts == nil {
		return ""
	}
	loc, _ := s.DerivedArtifacts[kind.String()].(string)
	return loc
}
