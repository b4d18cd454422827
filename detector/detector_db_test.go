package detector

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

	"worker-pipeline/constant"
	"worker-pipeline/entities"
	"worker-pipeline/repository"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entities.Segment{}, &entities.Session{}))
	return db
}

// Runs the unordered-arrival scenario against the real database-backed
// repositories: expected=3, chunks land as 2, 0, a redelivered 2, then 1.
// Every arrival triggers a completion check; only the one that closes the
// index set may dispatch, and a redelivered check afterwards must not.
func TestCheck_UnorderedArrivalsAgainstDatabase(t *testing.T) {
	db := openTestDB(t)
	sessions := repository.NewSessionRepository(db)
	segments := repository.NewSegmentRepository(db)
	dispatcher := &stubDispatcher{}
	det := New(segments, sessions, dispatcher, "recordings", "v1")
	ctx := context.Background()

	expected := 3
	require.NoError(t, sessions.Declare(ctx, &entities.Session{
		TenantId: "t1", SessionId: "s1", ExpectedSegmentCount: &expected,
	}))

	record := func(index int) {
		t.Helper()
		_, err := segments.UpsertSegment(ctx, repository.UpsertInput{
			TenantId:     "t1",
			SessionId:    "s1",
			ChunkIndex:   index,
			StorageRef:   "users/t1/chunks/s1/chunk.mp4",
			ByteSize:     1024,
			IntegrityTag: "etag-1",
			UploadedAt:   time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	for _, index := range []int{2, 0, 2} {
		record(index)
		result, err := det.Check(ctx, "t1", "s1")
		require.NoError(t, err)
		assert.False(t, result.Complete)
		assert.Equal(t, ReasonMissingChunks, result.Reason)
	}
	assert.Zero(t, dispatcher.startCount(), "no dispatch before the set closes")

	record(1)
	result, err := det.Check(ctx, "t1", "s1")
	require.NoError(t, err)
	assert.True(t, result.Complete)
	assert.True(t, result.Dispatched)
	assert.Equal(t, 1, dispatcher.startCount())

	// A redelivered notification re-evaluates the complete session; the status
	// CAS already moved it past uploading, so nothing dispatches twice.
	result, err = det.Check(ctx, "t1", "s1")
	require.NoError(t, err)
	assert.True(t, result.Complete)
	assert.False(t, result.Dispatched)
	assert.Equal(t, 1, dispatcher.startCount())

	session, err := sessions.Get(ctx, "t1", "s1")
	require.NoError(t, err)
	assert.Equal(t, constant.SessionStatusReady, session.Status)
	require.NotNil(t, session.ExecutionHandle)
	assert.Equal(t, "exec-1", *session.ExecutionHandle)
}
