package services

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/modern360/internal/metrics"
	"github.com/soaringjerry/modern360/internal/models"
)

type DeletionStore interface {
	DeleteAssessmentCascade(ctx context.Context, id int64) error
	DeleteCompanyCascade(ctx context.Context, id int64) error
	DeleteUserCascade(ctx context.Context, id int64) error
}

// Auditor records operator actions.
type Auditor interface {
	AddAudit(ctx context.Context, e models.AuditEntry)
}

// DeletionService removes companies, users and assessments together with
// everything that references them, one transaction per call.
type DeletionService struct {
	store   DeletionStore
	audit   Auditor
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewDeletionService(store DeletionStore, audit Auditor, logger *zap.Logger, m *metrics.Metrics) *DeletionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeletionService{store: store, audit: audit, logger: logger, metrics: m, now: func() time.Time { return time.Now().UTC() }}
}

func (s *DeletionService) DeleteAssessment(ctx context.Context, actor string, id int64) error {
	return s.run(ctx, actor, "assessment", id, s.store.DeleteAssessmentCascade)
}

func (s *DeletionService) DeleteCompany(ctx context.Context, actor string, id int64) error {
	return s.run(ctx, actor, "company", id, s.store.DeleteCompanyCascade)
}

func (s *DeletionService) DeleteUser(ctx context.Context, actor string, id int64) error {
	return s.run(ctx, actor, "user", id, s.store.DeleteUserCascade)
}

func (s *DeletionService) run(ctx context.Context, actor, entity string, id int64, del func(context.Context, int64) error) error {
	err := translateStoreError(del(ctx, id), entity)
	s.metrics.Deletion(entity, err)
	if err != nil {
		s.logger.Info("delete rejected", zap.String("entity", entity), zap.Int64("id", id), zap.Error(err))
		return err
	}
	s.logger.Info("deleted", zap.String("entity", entity), zap.Int64("id", id), zap.String("actor", actor))
	if s.audit != nil {
		s.audit.AddAudit(ctx, models.AuditEntry{
			Time:   s.now(),
			Actor:  actor,
			Action: "delete_" + entity,
			Target: entity + ":" + strconv.FormatInt(id, 10),
		})
	}
	return nil
}
