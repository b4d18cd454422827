// Package intake normalizes chunk-upload notifications into segment registry
// writes and completion checks. Notifications are at-least-once and unordered;
// every path through Handle is safe to replay.
package intake

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"

	"worker-pipeline/detector"
	"worker-pipeline/dto"
	"worker-pipeline/fault"
	"worker-pipeline/pkg/metrics"
	"worker-pipeline/repository"
	"worker-pipeline/storage"
)

// Fixed three-part key convention: users/{tenantId}/chunks/{sessionId}/chunk_{index:3}.mp4
var chunkKeyPattern = regexp.MustCompile(`^users/([^/]+)/chunks/([^/]+)/chunk_(\d{3})\.mp4$`)

type ChunkRef struct {
	TenantId   string
	SessionId  string
	ChunkIndex int
}

// ParseChunkKey extracts identity from an object key. A nil result with a
// MalformedKey fault means the notification must be dropped, not retried.
func ParseChunkKey(objectKey string) (ChunkRef, error) {
	// MinIO URL-encodes object keys in event records.
	if unescaped, err := url.QueryUnescape(objectKey); err == nil {
		objectKey = unescaped
	}
	m := chunkKeyPattern.FindStringSubmatch(objectKey)
	if m == nil {
		return ChunkRef{}, fault.Errorf(fault.MalformedKey, "object key %q does not match chunk convention", objectKey)
	}
	index, err := strconv.Atoi(m[3])
	if err != nil {
		return ChunkRef{}, fault.Errorf(fault.MalformedKey, "object key %q has non-numeric index", objectKey)
	}
	return ChunkRef{TenantId: m[1], SessionId: m[2], ChunkIndex: index}, nil
}

type Listener struct {
	segments repository.SegmentRepository
	store    storage.ObjectStore
	detector *detector.Detector
}

func NewListener(segments repository.SegmentRepository, store storage.ObjectStore, det *detector.Detector) *Listener {
	return &Listener{segments: segments, store: store, detector: det}
}

// Handle processes one upload notification: parse, validate, upsert, then
// always run the completion detector. The detector runs even when the upsert
// was a duplicate, because the last notification for a session may be the one
// that is redelivered.
func (l *Listener) Handle(ctx context.Context, ev dto.UploadEvent) error {
	log := zerolog.Ctx(ctx)

	ref, err := ParseChunkKey(ev.ObjectKey)
	if err != nil {
		log.Warn().Str("object_key", ev.ObjectKey).Msg("dropping notification with malformed key")
		metrics.ChunksRejected.WithLabelValues(string(fault.MalformedKey)).Inc()
		return nil
	}

	if ev.ObjectSize <= 0 {
		metrics.ChunksRejected.WithLabelValues(string(fault.InvalidSegment)).Inc()
		return fault.Errorf(fault.InvalidSegment, "chunk %s index %d has size %d", ref.SessionId, ref.ChunkIndex, ev.ObjectSize)
	}

	// Existence check: the notification may outrun object visibility.
	info, err := l.store.Stat(ctx, ev.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			metrics.ChunksRejected.WithLabelValues(string(fault.InvalidSegment)).Inc()
			return fault.Errorf(fault.InvalidSegment, "chunk object %s not reachable yet", ev.ObjectKey)
		}
		return err
	}
	if info.Size <= 0 {
		metrics.ChunksRejected.WithLabelValues(string(fault.InvalidSegment)).Inc()
		return fault.Errorf(fault.InvalidSegment, "chunk object %s is empty", ev.ObjectKey)
	}

	created, err := l.segments.UpsertSegment(ctx, repository.UpsertInput{
		TenantId:     ref.TenantId,
		SessionId:    ref.SessionId,
		ChunkIndex:   ref.ChunkIndex,
		StorageRef:   ev.ObjectKey,
		ByteSize:     ev.ObjectSize,
		IntegrityTag: ev.ETag,
		UploadedAt:   ev.EventTimestamp,
	})
	if err != nil {
		return err
	}
	metrics.ChunksReceived.Inc()

	log.Info().
		Str("session_id", ref.SessionId).
		Int("chunk_index", ref.ChunkIndex).
		Bool("created", created).
		Msg("chunk recorded")

	// Completion check failures must not block the registry write path.
	if _, err := l.detector.Check(ctx, ref.TenantId, ref.SessionId); err != nil {
		log.Error().Err(err).Str("session_id", ref.SessionId).Msg("completion check failed")
	}
	return nil
}
