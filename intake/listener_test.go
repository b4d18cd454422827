package intake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worker-pipeline/constant"
	"worker-pipeline/detector"
	"worker-pipeline/dto"
	"worker-pipeline/entities"
	"worker-pipeline/fault"
	"worker-pipeline/repository"
	"worker-pipeline/storage"
)

func TestParseChunkKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    ChunkRef
		wantErr bool
	}{
		{
			name: "well formed",
			key:  "users/tenant-1/chunks/sess-42/chunk_007.mp4",
			want: ChunkRef{TenantId: "tenant-1", SessionId: "sess-42", ChunkIndex: 7},
		},
		{
			name: "url encoded",
			key:  "users/tenant%2D1/chunks/sess-42/chunk_000.mp4",
			want: ChunkRef{TenantId: "tenant-1", SessionId: "sess-42", ChunkIndex: 0},
		},
		{name: "wrong prefix", key: "uploads/t/chunks/s/chunk_001.mp4", wantErr: true},
		{name: "two digit index", key: "users/t/chunks/s/chunk_01.mp4", wantErr: true},
		{name: "four digit index", key: "users/t/chunks/s/chunk_0001.mp4", wantErr: true},
		{name: "wrong extension", key: "users/t/chunks/s/chunk_001.webm", wantErr: true},
		{name: "missing chunks literal", key: "users/t/s/chunk_001.mp4", wantErr: true},
		{name: "trailing garbage", key: "users/t/chunks/s/chunk_001.mp4.bak", wantErr: true},
		{name: "empty", key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseChunkKey(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, fault.MalformedKey, fault.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref)
		})
	}
}

// memStore is an in-memory ObjectStore for intake tests; only Stat matters
// here.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (s *memStore) put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}

func (s *memStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Size: int64(len(data)), ETag: "etag"}, nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (s *memStore) Put(_ context.Context, key string, data []byte, _ string) error {
	s.put(key, data)
	return nil
}

func (s *memStore) Download(context.Context, string, string) error { return nil }
func (s *memStore) Upload(context.Context, string, string, string) error {
	return nil
}

type recordingSegments struct {
	mu      sync.Mutex
	upserts []repository.UpsertInput
	indices map[string]map[int]struct{}
}

func newRecordingSegments() *recordingSegments {
	return &recordingSegments{indices: map[string]map[int]struct{}{}}
}

func (r *recordingSegments) UpsertSegment(_ context.Context, in repository.UpsertInput) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, in)
	k := in.TenantId + "/" + in.SessionId
	if r.indices[k] == nil {
		r.indices[k] = map[int]struct{}{}
	}
	if _, ok := r.indices[k][in.ChunkIndex]; ok {
		return false, nil
	}
	r.indices[k][in.ChunkIndex] = struct{}{}
	return true, nil
}

func (r *recordingSegments) ListValidatedIndices(_ context.Context, tenantId, sessionId string) (map[int]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int]struct{}{}
	for idx := range r.indices[tenantId+"/"+sessionId] {
		out[idx] = struct{}{}
	}
	return out, nil
}

type undeclaredSessions struct{}

func (undeclaredSessions) Declare(context.Context, *entities.Session) error { return nil }
func (undeclaredSessions) Get(context.Context, string, string) (*entities.Session, error) {
	return nil, repository.ErrSessionNotFound
}
func (undeclaredSessions) GetExpectedCount(context.Context, string, string) (*int, error) {
	return nil, nil
}
func (undeclaredSessions) TransitionStatus(context.Context, string, string, []constant.SessionStatus, constant.SessionStatus) (bool, error) {
	return false, nil
}
func (undeclaredSessions) RecordArtifact(context.Context, string, string, constant.ArtifactKind, string) error {
	return nil
}
func (undeclaredSessions) RecordMissing(context.Context, string, string, []int) error { return nil }
func (undeclaredSessions) IncrementRetryCount(context.Context, string, string) error  { return nil }
func (undeclaredSessions) SetExecutionHandle(context.Context, string, string, string) error {
	return nil
}
func (undeclaredSessions) SetErrorDetail(context.Context, string, string, string) error { return nil }
func (undeclaredSessions) MarkCompleted(context.Context, string, string, string) (bool, error) {
	return false, nil
}

type noopDispatcher struct{}

func (noopDispatcher) Start(context.Context, dto.StartPayload) (string, error) { return "exec-1", nil }

func newTestListener(segments repository.SegmentRepository, store storage.ObjectStore) *Listener {
	det := detector.New(segments, undeclaredSessions{}, noopDispatcher{}, "recordings", "v1")
	return NewListener(segments, store, det)
}

func event(key string, size int64) dto.UploadEvent {
	return dto.UploadEvent{
		Bucket:         "recordings",
		ObjectKey:      key,
		ObjectSize:     size,
		ETag:           "etag",
		EventTimestamp: time.Now().UTC(),
	}
}

func TestHandle_RecordsValidChunk(t *testing.T) {
	store := newMemStore()
	segments := newRecordingSegments()
	listener := newTestListener(segments, store)

	key := "users/t1/chunks/s1/chunk_000.mp4"
	store.put(key, []byte("frame data"))

	require.NoError(t, listener.Handle(context.Background(), event(key, 10)))
	require.Len(t, segments.upserts, 1)
	assert.Equal(t, "t1", segments.upserts[0].TenantId)
	assert.Equal(t, "s1", segments.upserts[0].SessionId)
	assert.Equal(t, 0, segments.upserts[0].ChunkIndex)
	assert.Equal(t, key, segments.upserts[0].StorageRef)
}

func TestHandle_DropsMalformedKey(t *testing.T) {
	store := newMemStore()
	segments := newRecordingSegments()
	listener := newTestListener(segments, store)

	err := listener.Handle(context.Background(), event("users/t1/thumbnails/s1/frame.jpg", 10))
	require.NoError(t, err, "malformed keys are dropped, not retried")
	assert.Empty(t, segments.upserts)
}

func TestHandle_RejectsZeroSize(t *testing.T) {
	store := newMemStore()
	segments := newRecordingSegments()
	listener := newTestListener(segments, store)

	err := listener.Handle(context.Background(), event("users/t1/chunks/s1/chunk_000.mp4", 0))
	require.Error(t, err)
	assert.Equal(t, fault.InvalidSegment, fault.KindOf(err))
	assert.True(t, fault.Retryable(err))
	assert.Empty(t, segments.upserts)
}

func TestHandle_RetriesWhenObjectNotVisibleYet(t *testing.T) {
	store := newMemStore()
	segments := newRecordingSegments()
	listener := newTestListener(segments, store)

	// Notification arrives before the object is readable.
	err := listener.Handle(context.Background(), event("users/t1/chunks/s1/chunk_000.mp4", 10))
	require.Error(t, err)
	assert.Equal(t, fault.InvalidSegment, fault.KindOf(err))
	assert.Empty(t, segments.upserts)
}

func TestHandle_DuplicateStillRunsCompletionCheck(t *testing.T) {
	store := newMemStore()
	segments := newRecordingSegments()

	expected := 1
	sessions := detectorSessions{expected: &expected}
	dispatcher := &countingDispatcher{}
	det := detector.New(segments, &sessions, dispatcher, "recordings", "v1")
	listener := NewListener(segments, store, det)

	key := "users/t1/chunks/s1/chunk_000.mp4"
	store.put(key, []byte("frame data"))
	ctx := context.Background()

	require.NoError(t, listener.Handle(ctx, event(key, 10)))
	assert.Equal(t, 1, dispatcher.count)

	// The redelivered duplicate is absorbed by the registry but the
	// completion check still runs; it must not dispatch again.
	require.NoError(t, listener.Handle(ctx, event(key, 10)))
	assert.Len(t, segments.upserts, 2)
	assert.Equal(t, 1, dispatcher.count)
}

// detectorSessions declares a fixed expected count and performs a real CAS on
// a single status field.
type detectorSessions struct {
	undeclaredSessions
	mu       sync.Mutex
	expected *int
	status   constant.SessionStatus
}

func (d *detectorSessions) GetExpectedCount(context.Context, string, string) (*int, error) {
	return d.expected, nil
}

func (d *detectorSessions) TransitionStatus(_ context.Context, _, _ string, from []constant.SessionStatus, to constant.SessionStatus) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == "" {
		d.status = constant.SessionStatusUploading
	}
	for _, f := range from {
		if d.status == f {
			d.status = to
			return true, nil
		}
	}
	return false, nil
}

type countingDispatcher struct {
	count int
}

func (c *countingDispatcher) Start(context.Context, dto.StartPayload) (string, error) {
	c.count++
	return "exec-1", nil
}
