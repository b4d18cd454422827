package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"worker-pipeline/entities"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entities.Segment{}, &entities.Session{}))
	return db
}

func upsert(tenantId, sessionId string, index int) UpsertInput {
	return UpsertInput{
		TenantId:     tenantId,
		SessionId:    sessionId,
		ChunkIndex:   index,
		StorageRef:   "users/" + tenantId + "/chunks/" + sessionId + "/chunk.mp4",
		ByteSize:     1024,
		IntegrityTag: "etag-1",
		UploadedAt:   time.Now().UTC(),
	}
}

func TestUpsertSegment_Idempotent(t *testing.T) {
	repo := NewSegmentRepository(openTestDB(t))
	ctx := context.Background()

	created, err := repo.UpsertSegment(ctx, upsert("t1", "s1", 0))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.UpsertSegment(ctx, upsert("t1", "s1", 0))
	require.NoError(t, err)
	assert.False(t, created, "redelivery is a no-op")

	indices, err := repo.ListValidatedIndices(ctx, "t1", "s1")
	require.NoError(t, err)
	assert.Len(t, indices, 1)
}

func TestUpsertSegment_ConflictingMetadataKeepsFirstWrite(t *testing.T) {
	db := openTestDB(t)
	repo := NewSegmentRepository(db)
	ctx := context.Background()

	first := upsert("t1", "s1", 0)
	_, err := repo.UpsertSegment(ctx, first)
	require.NoError(t, err)

	second := upsert("t1", "s1", 0)
	second.IntegrityTag = "etag-different"
	second.ByteSize = 9999
	created, err := repo.UpsertSegment(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	var row entities.Segment
	require.NoError(t, db.Where("session_id = ? AND chunk_index = ?", "s1", 0).First(&row).Error)
	assert.Equal(t, "etag-1", row.IntegrityTag)
	assert.Equal(t, int64(1024), row.ByteSize)
}

func TestListValidatedIndices_PagesThroughLargeSessions(t *testing.T) {
	repo := NewSegmentRepository(openTestDB(t))
	ctx := context.Background()

	// More indices than one listing batch, inserted out of order.
	total := listBatchSize*2 + 17
	for i := total - 1; i >= 0; i-- {
		_, err := repo.UpsertSegment(ctx, upsert("t1", "s1", i))
		require.NoError(t, err)
	}

	indices, err := repo.ListValidatedIndices(ctx, "t1", "s1")
	require.NoError(t, err)
	require.Len(t, indices, total)
	for i := 0; i < total; i++ {
		_, ok := indices[i]
		assert.True(t, ok, "index %d missing", i)
	}
}

func TestListValidatedIndices_ScopedToSession(t *testing.T) {
	repo := NewSegmentRepository(openTestDB(t))
	ctx := context.Background()

	_, err := repo.UpsertSegment(ctx, upsert("t1", "s1", 0))
	require.NoError(t, err)
	_, err = repo.UpsertSegment(ctx, upsert("t1", "s2", 1))
	require.NoError(t, err)

	indices, err := repo.ListValidatedIndices(ctx, "t1", "s1")
	require.NoError(t, err)
	assert.Len(t, indices, 1)
	_, ok := indices[0]
	assert.True(t, ok)
}
