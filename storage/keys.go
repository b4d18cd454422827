package storage

import "fmt"

// Object key layout. Every key starts with the tenant prefix; scoped
// credentials from the exchange boundary restrict access to that prefix.

func TenantPrefix(tenantId string) string {
	return fmt.Sprintf("users/%s/", tenantId)
}

func ChunkPrefix(tenantId, sessionId string) string {
	return fmt.Sprintf("users/%s/chunks/%s/", tenantId, sessionId)
}

func ChunkKey(tenantId, sessionId string, index int) string {
	return fmt.Sprintf("users/%s/chunks/%s/chunk_%03d.mp4", tenantId, sessionId, index)
}

func VideoKey(tenantId, sessionId string) string {
	return fmt.Sprintf("users/%s/videos/%s.mp4", tenantId, sessionId)
}

func AudioKey(tenantId, sessionId string) string {
	return fmt.Sprintf("users/%s/audio/%s.wav", tenantId, sessionId)
}

func TranscriptKey(tenantId, sessionId string) string {
	return fmt.Sprintf("users/%s/transcripts/%s.json", tenantId, sessionId)
}

func SummaryKey(tenantId, sessionId string) string {
	return fmt.Sprintf("users/%s/summaries/%s.json", tenantId, sessionId)
}
