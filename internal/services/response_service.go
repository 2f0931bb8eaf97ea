package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/modern360/internal/metrics"
	"github.com/soaringjerry/modern360/internal/models"
)

type ResponseStore interface {
	GetInvitation(ctx context.Context, id int64) (*models.Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error)
	GetAssessment(ctx context.Context, id int64) (*models.Assessment, error)
	GetParticipant(ctx context.Context, id int64) (*models.Participant, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	FindSelfParticipant(ctx context.Context, assessmentID, assesseeID int64) (*models.Participant, error)
	ListQuestions(ctx context.Context, assessmentID int64) ([]*models.Question, error)
	HasSessionResponse(ctx context.Context, assessmentID, userID int64, typ models.ResponseType) (bool, error)
	RecordSubmission(ctx context.Context, sub *models.Submission) error
	ListResponses(ctx context.Context, assessmentID int64) ([]*models.Response, error)
	ListDetails(ctx context.Context, assessmentID int64) ([]*models.ResponseDetail, error)
	ReplaceDetails(ctx context.Context, details []*models.ResponseDetail) error
}

// ResponseService captures submissions and keeps their column projection.
type ResponseService struct {
	store   ResponseStore
	schema  ProjectionSchema
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewResponseService(store ResponseStore, schema ProjectionSchema, logger *zap.Logger, m *metrics.Metrics) *ResponseService {
	if schema.columns == nil {
		schema = DefaultProjectionSchema()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseService{
		store:   store,
		schema:  schema,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SubmitWithToken records the answers behind an invitation link. The link is
// consumed in the same transaction; a second submission is a conflict.
func (s *ResponseService) SubmitWithToken(ctx context.Context, token string, raw map[string]any) (resp *models.Response, err error) {
	kind := string(models.ResponseAssessor)
	defer func() { s.metrics.Submission(kind, err) }()

	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, NewNotFoundError("invitation not found")
	}
	if inv.IsCompleted {
		return nil, NewConflictError("Assessment already completed")
	}
	a, err := s.store.GetAssessment(ctx, inv.AssessmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, NewNotFoundError("invitation not found")
	}
	if !a.IsActive {
		return nil, NewInvalidError("Assessment is not active")
	}
	answers, err := NormalizeAnswers(raw)
	if err != nil {
		return nil, err
	}
	resp = &models.Response{
		AssessmentID: a.ID,
		InvitationID: inv.ID,
		Type:         models.ResponseAssessor,
		Answers:      answers,
		SubmittedAt:  s.now(),
	}
	if inv.ParticipantID != 0 {
		p, err := s.store.GetParticipant(ctx, inv.ParticipantID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			resp.ParticipantID = p.ID
			resp.UserID = p.RespondentID()
			if p.Role == models.ParticipantSelf {
				resp.Type = models.ResponseSelf
			}
		}
	}
	kind = string(resp.Type)
	sub := &models.Submission{
		InvitationID:  inv.ID,
		ParticipantID: resp.ParticipantID,
		Response:      resp,
		Detail:        s.schema.Project(resp, inv.Email, a.Title),
	}
	if err := s.store.RecordSubmission(ctx, sub); err != nil {
		if errors.Is(err, models.ErrAlreadyCompleted) {
			return nil, NewConflictError("Assessment already completed")
		}
		return nil, err
	}
	s.logger.Info("response recorded",
		zap.Int64("assessment_id", a.ID),
		zap.Int64("invitation_id", inv.ID),
		zap.String("type", kind))
	return resp, nil
}

// SelfAssessView is the form a signed-in assessee fills in for themselves.
type SelfAssessView struct {
	Assessment       *models.Assessment `json:"assessment"`
	Questions        []*models.Question `json:"questions,omitempty"`
	AlreadyCompleted bool               `json:"already_completed"`
}

// selfAccess loads the assessment and the caller's self row, enforcing that
// the caller may answer it for themselves.
func (s *ResponseService) selfAccess(ctx context.Context, user *models.User, assessmentID int64) (*models.Assessment, *models.Participant, error) {
	if user == nil {
		return nil, nil, NewUnauthorizedError("login required")
	}
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, nil, err
	}
	if a == nil || a.IsSystem {
		return nil, nil, NewNotFoundError("assessment not found")
	}
	self, err := s.store.FindSelfParticipant(ctx, assessmentID, user.ID)
	if err != nil {
		return nil, nil, err
	}
	ownSelfAssessment := a.IsSelfAssessment && a.CreatorID == user.ID
	if !ownSelfAssessment && self == nil {
		return nil, nil, NewForbiddenError("Access denied")
	}
	return a, self, nil
}

func (s *ResponseService) SelfAssessment(ctx context.Context, user *models.User, assessmentID int64) (*SelfAssessView, error) {
	a, self, err := s.selfAccess(ctx, user, assessmentID)
	if err != nil {
		return nil, err
	}
	done, err := s.selfCompleted(ctx, a.ID, user.ID, self)
	if err != nil {
		return nil, err
	}
	view := &SelfAssessView{Assessment: a, AlreadyCompleted: done}
	if done {
		return view, nil
	}
	if view.Questions, err = s.store.ListQuestions(ctx, a.ID); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *ResponseService) selfCompleted(ctx context.Context, assessmentID, userID int64, self *models.Participant) (bool, error) {
	if self != nil && self.Status.Completed {
		return true, nil
	}
	return s.store.HasSessionResponse(ctx, assessmentID, userID, models.ResponseSelf)
}

// SubmitSelfAssessment records the caller's own answers. Any pending self
// link for the same roster row is voided in the same transaction.
func (s *ResponseService) SubmitSelfAssessment(ctx context.Context, user *models.User, assessmentID int64, raw map[string]any) (resp *models.Response, err error) {
	defer func() { s.metrics.Submission(string(models.ResponseSelf), err) }()

	a, self, err := s.selfAccess(ctx, user, assessmentID)
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return nil, NewInvalidError("Assessment is not active")
	}
	done, err := s.selfCompleted(ctx, a.ID, user.ID, self)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, NewConflictError("Self-assessment already completed")
	}
	answers, err := NormalizeAnswers(raw)
	if err != nil {
		return nil, err
	}
	resp = &models.Response{
		AssessmentID: a.ID,
		UserID:       user.ID,
		Type:         models.ResponseSelf,
		Answers:      answers,
		SubmittedAt:  s.now(),
	}
	if self != nil {
		resp.ParticipantID = self.ID
	}
	sub := &models.Submission{
		ParticipantID: resp.ParticipantID,
		Response:      resp,
		Detail:        s.schema.Project(resp, user.Email, a.Title),
	}
	if err := s.store.RecordSubmission(ctx, sub); err != nil {
		if errors.Is(err, models.ErrAlreadyCompleted) {
			return nil, NewConflictError("Self-assessment already completed")
		}
		return nil, err
	}
	s.logger.Info("self-assessment recorded", zap.Int64("assessment_id", a.ID), zap.Int64("user_id", user.ID))
	return resp, nil
}

// Details returns the projection rows of an assessment.
func (s *ResponseService) Details(ctx context.Context, assessmentID int64) ([]*models.ResponseDetail, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.IsSystem {
		return nil, NewNotFoundError("assessment not found")
	}
	return s.store.ListDetails(ctx, assessmentID)
}

// Responses returns the authoritative answers of an assessment.
func (s *ResponseService) Responses(ctx context.Context, assessmentID int64) ([]*models.Response, error) {
	return s.store.ListResponses(ctx, assessmentID)
}

// RebuildProjections recomputes the column rows of one assessment (or of
// every assessment when assessmentID is 0) from the stored answers.
func (s *ResponseService) RebuildProjections(ctx context.Context, assessmentID int64) (int, error) {
	responses, err := s.store.ListResponses(ctx, assessmentID)
	if err != nil {
		return 0, err
	}
	titles := map[int64]string{}
	details := make([]*models.ResponseDetail, 0, len(responses))
	for _, r := range responses {
		title, ok := titles[r.AssessmentID]
		if !ok {
			a, err := s.store.GetAssessment(ctx, r.AssessmentID)
			if err != nil {
				return 0, err
			}
			if a != nil {
				title = a.Title
			}
			titles[r.AssessmentID] = title
		}
		email, err := s.respondentEmail(ctx, r)
		if err != nil {
			return 0, err
		}
		details = append(details, s.schema.Project(r, email, title))
	}
	if err := s.store.ReplaceDetails(ctx, details); err != nil {
		return 0, err
	}
	s.logger.Info("projections rebuilt", zap.Int64("assessment_id", assessmentID), zap.Int("rows", len(details)))
	return len(details), nil
}

func (s *ResponseService) respondentEmail(ctx context.Context, r *models.Response) (string, error) {
	if r.InvitationID != 0 {
		inv, err := s.store.GetInvitation(ctx, r.InvitationID)
		if err != nil {
			return "", err
		}
		if inv != nil {
			return inv.Email, nil
		}
	}
	if r.UserID != 0 {
		u, err := s.store.GetUser(ctx, r.UserID)
		if err != nil {
			return "", err
		}
		if u != nil {
			return u.Email, nil
		}
	}
	return "", nil
}
