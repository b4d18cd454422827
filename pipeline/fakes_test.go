package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"worker-pipeline/constant"
	"worker-pipeline/dto"
	"worker-pipeline/entities"
	"worker-pipeline/media"
	"worker-pipeline/repository"
	"worker-pipeline/storage"
)

// fakeSessions is an in-memory SessionRepository with a real CAS under a
// mutex.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*entities.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*entities.Session{}}
}

func sessionKey(tenantId, sessionId string) string { return tenantId + "/" + sessionId }

func (f *fakeSessions) seed(s *entities.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionKey(s.TenantId, s.SessionId)] = s
}

func (f *fakeSessions) Declare(_ context.Context, decl *entities.Session) error {
	f.seed(decl)
	return nil
}

func (f *fakeSessions) Get(_ context.Context, tenantId, sessionId string) (*entities.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionKey(tenantId, sessionId)]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessions) GetExpectedCount(_ context.Context, tenantId, sessionId string) (*int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionKey(tenantId, sessionId)]
	if !ok {
		return nil, nil
	}
	return s.ExpectedSegmentCount, nil
}

func (f *fakeSessions) TransitionStatus(_ context.Context, tenantId, sessionId string, from []constant.SessionStatus, to constant.SessionStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionKey(tenantId, sessionId)]
	if !ok {
		return false, nil
	}
	for _, candidate := range from {
		if s.Status == candidate {
			s.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSessions) RecordArtifact(_ context.Context, tenantId, sessionId string, kind constant.ArtifactKind, location string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionKey(tenantId, sessionId)]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if s.DerivedArtifacts == nil {
		s.DerivedArtifacts = map[string]interface{}{}
	}
	s.DerivedArtifacts[kind.String()] = location
	return nil
}

func (f *fakeSessions) RecordMissing(_ context.Context, tenantId, sessionId string, missing []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionKey(tenantId, sessionId)]; ok {
		s.MissingIndices = missing
	}
	return nil
}

func (f *fakeSessions) IncrementRetryCount(_ context.Context, tenantId, sessionId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionKey(tenantId, sessionId)]; ok {
		s.RetryCount++
	}
	return nil
}

func (f *fakeSessions) SetExecutionHandle(_ context.Context, tenantId, sessionId, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionKey(tenantId, sessionId)]; ok {
		s.ExecutionHandle = &handle
	}
	return nil
}

func (f *fakeSessions) SetErrorDetail(_ context.Context, tenantId, sessionId, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionKey(tenantId, sessionId)]; ok {
		s.ErrorDetail = &detail
	}
	return nil
}

func (f *fakeSessions) MarkCompleted(_ context.Context, tenantId, sessionId, pipelineVersion string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionKey(tenantId, sessionId)]
	if !ok || s.Status != constant.SessionStatusFinalizing {
		return false, nil
	}
	now := time.Now().UTC()
	s.Status = constant.SessionStatusCompleted
	s.PipelineVersion = pipelineVersion
	s.CompletedAt = &now
	return true, nil
}

// memStore is an in-memory ObjectStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

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
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memStore) Download(context.Context, string, string) error { return nil }
func (s *memStore) Upload(context.Context, string, string, string) error {
	return nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// fakeTranscoder returns fixed artifact keys without touching ffmpeg.
type fakeTranscoder struct {
	failErr  error
	requests []media.Request
}

func (f *fakeTranscoder) Process(_ context.Context, req media.Request) (media.Result, error) {
	f.requests = append(f.requests, req)
	if f.failErr != nil {
		return media.Result{}, f.failErr
	}
	return media.Result{
		VideoKey: storage.VideoKey(req.TenantId, req.SessionId),
		AudioKey: storage.AudioKey(req.TenantId, req.SessionId),
	}, nil
}

// stubSummarizer returns canned model output.
type stubSummarizer struct {
	output  []byte
	failErr error
	calls   int
}

func (s *stubSummarizer) Summarize(context.Context, string) ([]byte, error) {
	s.calls++
	if s.failErr != nil {
		return nil, s.failErr
	}
	return s.output, nil
}

func (s *stubSummarizer) ModelVersion() string { return "stub-model-1" }

// capturePublisher records every scheduled step message.
type published struct {
	msg   dto.StepMessage
	delay time.Duration
}

type capturePublisher struct {
	mu    sync.Mutex
	queue []published
}

func (p *capturePublisher) Publish(_ context.Context, msg dto.StepMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, published{msg: msg})
	return nil
}

func (p *capturePublisher) PublishDelayed(_ context.Context, msg dto.StepMessage, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, published{msg: msg, delay: delay})
	return nil
}

// pop takes the oldest scheduled message, simulating broker delivery.
func (p *capturePublisher) pop() (published, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return published{}, false
	}
	head := p.queue[0]
	p.queue = p.queue[1:]
	return head, true
}

func (p *capturePublisher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

var errBoom = errors.New("boom")
