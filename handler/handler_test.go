package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worker-pipeline/dto"
)

func bucketRecord(eventTime string) dto.BucketRecord {
	record := dto.BucketRecord{EventTime: eventTime}
	record.S3.Bucket.Name = "recordings"
	record.S3.Object.Key = "users/t1/chunks/s1/chunk_0.mp4"
	record.S3.Object.Size = 2048
	record.S3.Object.ETag = "etag-1"
	return record
}

func TestEventFromRecord_ParsesEventTime(t *testing.T) {
	ev := eventFromRecord(context.Background(), bucketRecord("2026-08-30T10:15:00Z"))

	assert.Equal(t, "recordings", ev.Bucket)
	assert.Equal(t, "users/t1/chunks/s1/chunk_0.mp4", ev.ObjectKey)
	assert.Equal(t, int64(2048), ev.ObjectSize)
	assert.Equal(t, "etag-1", ev.ETag)
	require.Equal(t, time.Date(2026, 8, 30, 10, 15, 0, 0, time.UTC), ev.EventTimestamp.UTC())
}

func TestEventFromRecord_UnparseableTimeFallsBackToReceiveTime(t *testing.T) {
	before := time.Now().UTC()
	ev := eventFromRecord(context.Background(), bucketRecord("not-a-timestamp"))
	after := time.Now().UTC()

	assert.False(t, ev.EventTimestamp.IsZero())
	assert.False(t, ev.EventTimestamp.Before(before))
	assert.False(t, ev.EventTimestamp.After(after))
}
