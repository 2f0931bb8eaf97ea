package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/modern360/internal/models"
)

type RosterStore interface {
	GetAssessment(ctx context.Context, id int64) (*models.Assessment, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	FindSelfParticipant(ctx context.Context, assessmentID, assesseeID int64) (*models.Participant, error)
	CreateRoster(ctx context.Context, rows []*models.Participant) error
	ListParticipants(ctx context.Context, assessmentID int64) ([]*models.Participant, error)
}

type RosterService struct {
	store  RosterStore
	logger *zap.Logger
	now    func() time.Time
}

func NewRosterService(store RosterStore, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// buildRoster returns the self row for assesseeID followed by one assessor
// row per distinct assessor. The assessee is never their own assessor.
func buildRoster(assessmentID, assesseeID int64, assessors []AssessorInput, now time.Time) []*models.Participant {
	rows := []*models.Participant{{
		AssessmentID: assessmentID,
		AssesseeID:   assesseeID,
		Role:         models.ParticipantSelf,
		CreatedAt:    now,
	}}
	seen := map[int64]bool{assesseeID: true}
	for _, a := range assessors {
		if a.UserID <= 0 || seen[a.UserID] {
			continue
		}
		seen[a.UserID] = true
		rows = append(rows, &models.Participant{
			AssessmentID: assessmentID,
			AssesseeID:   assesseeID,
			AssessorID:   a.UserID,
			Role:         models.ParticipantAssessor,
			Relationship: strings.TrimSpace(a.Relationship),
			CreatedAt:    now,
		})
	}
	return rows
}

// CreateRoster adds an assessee and their assessors to an existing
// assessment. Everything is written or nothing is.
func (s *RosterService) CreateRoster(ctx context.Context, assessmentID, assesseeID int64, assessors []AssessorInput) ([]*models.Participant, error) {
	if assesseeID <= 0 {
		return nil, NewInvalidError("Assessee is required")
	}
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.IsSystem {
		return nil, NewNotFoundError("assessment not found")
	}
	if err := s.requireUser(ctx, assesseeID, "Assessee"); err != nil {
		return nil, err
	}
	for _, as := range assessors {
		if as.UserID == assesseeID || as.UserID <= 0 {
			continue
		}
		if err := s.requireUser(ctx, as.UserID, "Assessor"); err != nil {
			return nil, err
		}
	}
	existing, err := s.store.FindSelfParticipant(ctx, assessmentID, assesseeID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("Assessee is already part of this assessment")
	}
	rows := buildRoster(assessmentID, assesseeID, assessors, s.now())
	if err := s.store.CreateRoster(ctx, rows); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, NewConflictError("Assessee is already part of this assessment")
		}
		return nil, err
	}
	s.logger.Info("roster created",
		zap.Int64("assessment_id", assessmentID),
		zap.Int64("assessee_id", assesseeID),
		zap.Int("participants", len(rows)))
	return rows, nil
}

func (s *RosterService) requireUser(ctx context.Context, id int64, label string) error {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if u == nil || u.IsSystem {
		return NewInvalidError(label + " not found")
	}
	return nil
}

// ParticipantView is a roster row with the names resolved.
type ParticipantView struct {
	*models.Participant
	AssesseeName  string `json:"assessee_name"`
	AssesseeEmail string `json:"assessee_email"`
	AssessorName  string `json:"assessor_name,omitempty"`
	AssessorEmail string `json:"assessor_email,omitempty"`
}

func (s *RosterService) ListParticipants(ctx context.Context, assessmentID int64) ([]ParticipantView, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.IsSystem {
		return nil, NewNotFoundError("assessment not found")
	}
	rows, err := s.store.ListParticipants(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	users := map[int64]*models.User{}
	lookup := func(id int64) (*models.User, error) {
		if id == 0 {
			return nil, nil
		}
		if u, ok := users[id]; ok {
			return u, nil
		}
		u, err := s.store.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		users[id] = u
		return u, nil
	}
	out := make([]ParticipantView, 0, len(rows))
	for _, p := range rows {
		v := ParticipantView{Participant: p}
		assessee, err := lookup(p.AssesseeID)
		if err != nil {
			return nil, err
		}
		if assessee != nil {
			v.AssesseeName, v.AssesseeEmail = assessee.Name, assessee.Email
		}
		assessor, err := lookup(p.AssessorID)
		if err != nil {
			return nil, err
		}
		if assessor != nil {
			v.AssessorName, v.AssessorEmail = assessor.Name, assessor.Email
		}
		out = append(out, v)
	}
	return out, nil
}
