package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"worker-pipeline/constant"
	"worker-pipeline/entities"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	// Declare upserts the catalog row for a session. A declaration that races
	// with early chunk uploads only ever sets the expected count; it never
	// moves the status backward.
	Declare(ctx context.Context, decl *entities.Session) error
	Get(ctx context.Context, tenantId, sessionId string) (*entities.Session, error)
	// GetExpectedCount returns nil when the producer has not declared the
	// session size yet. Callers must treat nil as "not ready to evaluate
	// completion", never as zero.
	GetExpectedCount(ctx context.Context, tenantId, sessionId string) (*int, error)
	// TransitionStatus applies a compare-and-swap on the status column.
	// applied=false means another invocation won the race; callers treat that
	// as benign.
	TransitionStatus(ctx context.Context, tenantId, sessionId string, from []constant.SessionStatus, to constant.SessionStatus) (applied bool, err error)
	RecordArtifact(ctx context.Context, tenantId, sessionId string, kind constant.ArtifactKind, location string) error
	RecordMissing(ctx context.Context, tenantId, sessionId string, missing []int) error
	// IncrementRetryCount bumps the session's lifetime retry counter; kept for
	// operator visibility, never used in routing decisions.
	IncrementRetryCount(ctx context.Context, tenantId, sessionId string) error
	SetExecutionHandle(ctx context.Context, tenantId, sessionId, handle string) error
	SetErrorDetail(ctx context.Context, tenantId, sessionId, detail string) error
	MarkCompleted(ctx context.Context, tenantId, sessionId, pipelineVersion string) (applied bool, err error)
}

type sessionRepo struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Declare(ctx context.Context, decl *entities.Session) error {
	now := time.Now().UTC()
	decl.CreatedAt = now
	decl.UpdatedAt = now
	if decl.Status == "" {
		decl.Status = constant.SessionStatusUploading
	}
	if decl.DerivedArtifacts == nil {
		decl.DerivedArtifacts = datatypes.JSONMap{}
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"expected_segment_count", "total_duration_seconds", "updated_at",
		}),
	}).Create(decl).Error
}

func (r *sessionRepo) Get(ctx context.Context, tenantId, sessionId string) (*entities.Session, error) {
	session := &entities.Session{}
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ?", tenantId, sessionId).
		First(session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *sessionRepo) GetExpectedCount(ctx context.Context, tenantId, sessionId string) (*int, error) {
	session, err := r.Get(ctx, tenantId, sessionId)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session.ExpectedSegmentCount, nil
}

func (r *sessionRepo) TransitionStatus(ctx context.Context, tenantId, sessionId string, from []constant.SessionStatus, to constant.SessionStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&entities.Session{}).
		Where("tenant_id = ? AND session_id = ? AND status IN ?", tenantId, sessionId, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *sessionRepo) RecordArtifact(ctx context.Context, tenantId, sessionId string, kind constant.ArtifactKind, location string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session := &entities.Session{}
		err := tx.Where("tenant_id = ? AND session_id = ?", tenantId, sessionId).First(session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if session.DerivedArtifacts == nil {
			session.DerivedArtifacts = datatypes.JSONMap{}
		}
		session.DerivedArtifacts[kind.String()] = location
		return tx.Model(&entities.Session{}).
			Where("tenant_id = ? AND session_id = ?", tenantId, sessionId).
			Updates(map[string]interface{}{
				"derived_artifacts": session.DerivedArtifacts,
				"updated_at":        time.Now().UTC(),
			}).Error
	})
}

func (r *sessionRepo) RecordMissing(ctx context.Context, tenantId, sessionId string, missing []int) error {
	return r.db.WithContext(ctx).
		Model(&entities.Session{}).
		Where("tenant_id = ? AND session_id = ?", tenantId, sessionId).
		Updates(map[string]interface{}{
			"missing_indices": datatypes.NewJSONSlice(missing),
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *sessionRepo) IncrementRetryCount(ctx context.Context, tenantId, sessionId string) error {
	return r.db.WithContext(ctx).
		Model(&entities.Session{}).
		Where("tenant_id = ? AND session_id = ?", tenantId, sessionId).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *sessionRepo) SetExecutionHandle(ctx context.Context, tenantId, sessionId, handle string) error {
	return r.db.WithContext(ctx).
		Model(&entities.Session{}).
		Where("tenant_id = ? AND session_id = ?", tenantId, sessionId).
		Updates(map[string]interface{}{
			"execution_handle": handle,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (r *sessionRepo) SetErrorDetail(ctx context.Context, tenantId, sessionId, detail string) error {
	return r.db.WithContext(ctx).
		Model(&entities.Session{}).
		Where("tenant_id = ? AND session_id = ?", tenantId, sessionId).
		Updates(map[string]interface{}{
			"error_detail": detail,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *sessionRepo) MarkCompleted(ctx context.Context, tenantId, sessionId, pipelineVersion string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&entities.Session{}).
		Where("tenant_id = ? AND session_id = ? AND status = ?", tenantId, sessionId, constant.SessionStatusFinalizing).
		Updates(map[string]interface{}{
			"status":           constant.SessionStatusCompleted,
			"pipeline_version": pipelineVersion,
			"completed_at":     now,
			"updated_at":       now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
