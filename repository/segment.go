package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"worker-pipeline/constant"
	"worker-pipeline/entities"
)

// segmentTTL bounds registry housekeeping; expiry is informational only.
const segmentTTL = 30 * 24 * time.Hour

const listBatchSize = 200

type UpsertInput struct {
	TenantId     string
	SessionId    string
	ChunkIndex   int
	StorageRef   string
	ByteSize     int64
	IntegrityTag string
	UploadedAt   time.Time
}

type SegmentRepository interface {
	// UpsertSegment records a validated chunk. Re-invoking with the same
	// (sessionId, chunkIndex) is a no-op returning created=false; conflicting
	// metadata on an existing index is logged and ignored, first write wins.
	UpsertSegment(ctx context.Context, in UpsertInput) (created bool, err error)
	// ListValidatedIndices returns the set of validated chunk indices for one
	// session, paging through storage without duplication.
	ListValidatedIndices(ctx context.Context, tenantId, sessionId string) (map[int]struct{}, error)
}

type segmentRepo struct {
	db *gorm.DB
}

func NewSegmentRepository(db *gorm.DB) SegmentRepository {
	return &segmentRepo{db: db}
}

func (r *segmentRepo) UpsertSegment(ctx context.Context, in UpsertInput) (bool, error) {
	now := time.Now().UTC()
	seg := &entities.Segment{
		ID:              uuid.New(),
		TenantId:        in.TenantId,
		SessionId:       in.SessionId,
		ChunkIndex:      in.ChunkIndex,
		StorageRef:      in.StorageRef,
		ByteSize:        in.ByteSize,
		IntegrityTag:    in.IntegrityTag,
		UploadedAt:      in.UploadedAt,
		ValidationState: constant.ValidationStateValidated,
		ExpiresAt:       now.Add(segmentTTL),
		CreatedAt:       now,
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "chunk_index"}},
		DoNothing: true,
	}).Create(seg)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// Lost to an earlier write. Surface metadata drift but keep the first row.
	var existing entities.Segment
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND chunk_index = ?", in.SessionId, in.ChunkIndex).
		First(&existing).Error
	if err == nil && (existing.IntegrityTag != in.IntegrityTag || existing.ByteSize != in.ByteSize) {
		zerolog.Ctx(ctx).Warn().
			Str("session_id", in.SessionId).
			Int("chunk_index", in.ChunkIndex).
			Str("existing_etag", existing.IntegrityTag).
			Str("redelivered_etag", in.IntegrityTag).
			Msg("conflicting metadata on redelivered chunk, keeping first write")
	}
	return false, nil
}

func (r *segmentRepo) ListValidatedIndices(ctx context.Context, tenantId, sessionId string) (map[int]struct{}, error) {
	indices := make(map[int]struct{})
	lastIndex := -1

	for {
		var batch []int
		err := r.db.WithContext(ctx).
			Model(&entities.Segment{}).
			Where("tenant_id = ? AND session_id = ? AND validation_state = ? AND chunk_index > ?",
				tenantId, sessionId, constant.ValidationStateValidated, lastIndex).
			Order("chunk_index ASC").
			Limit(listBatchSize).
			Pluck("chunk_index", &batch).Error
		if err != nil {
			return nil, err
		}
		for _, idx := range batch {
			indices[idx] = struct{}{}
			lastIndex = idx
		}
		if len(batch) < listBatchSize {
			return indices, nil
		}
	}
}
