package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/modern360/internal/models"
)

type DirectoryStore interface {
	CreateCompany(ctx context.Context, c *models.Company) error
	GetCompany(ctx context.Context, id int64) (*models.Company, error)
	GetCompanyByName(ctx context.Context, name string) (*models.Company, error)
	UpdateCompany(ctx context.Context, c *models.Company) error
	ListCompanies(ctx context.Context, page models.Page) ([]*models.Company, int, error)
	AllCompanies(ctx context.Context) ([]*models.Company, error)

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	ListUsers(ctx context.Context, f models.UserFilter) ([]*models.User, int, error)

	CreateAssessment(ctx context.Context, a *models.Assessment, questions []*models.Question, roster []*models.Participant) error
	GetAssessment(ctx context.Context, id int64) (*models.Assessment, error)
	UpdateAssessment(ctx context.Context, a *models.Assessment) error
	ListAssessments(ctx context.Context, f models.AssessmentFilter) ([]*models.Assessment, int, error)
	ListQuestions(ctx context.Context, assessmentID int64) ([]*models.Question, error)
	SystemRecords(ctx context.Context) (*models.SystemRecords, error)
}

// DirectoryService manages companies, users and assessment definitions.
type DirectoryService struct {
	store  DirectoryStore
	logger *zap.Logger
	now    func() time.Time
}

func NewDirectoryService(store DirectoryStore, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type CompanyInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

func (s *DirectoryService) CreateCompany(ctx context.Context, in CompanyInput) (*models.Company, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, NewInvalidError("Company name is required")
	}
	existing, err := s.store.GetCompanyByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("Company name already exists")
	}
	c := &models.Company{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		IsActive:    in.IsActive == nil || *in.IsActive,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateCompany(ctx, c); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, NewConflictError("Company name already exists")
		}
		return nil, err
	}
	return c, nil
}

func (s *DirectoryService) UpdateCompany(ctx context.Context, id int64, in CompanyInput) (*models.Company, error) {
	c, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, NewNotFoundError("company not found")
	}
	if c.IsSystem {
		return nil, NewForbiddenError("cannot modify system company")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, NewInvalidError("Company name is required")
	}
	if !strings.EqualFold(name, c.Name) {
		other, err := s.store.GetCompanyByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != c.ID {
			return nil, NewConflictError("Company name already exists")
		}
	}
	c.Name = name
	c.Description = strings.TrimSpace(in.Description)
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if err := s.store.UpdateCompany(ctx, c); err != nil {
		return nil, translateStoreError(err, "company")
	}
	return c, nil
}

func (s *DirectoryService) GetCompany(ctx context.Context, id int64) (*models.Company, error) {
	c, err := s.store.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil || c.IsSystem {
		return nil, NewNotFoundError("company not found")
	}
	return c, nil
}

func (s *DirectoryService) ListCompanies(ctx context.Context, page models.Page) ([]*models.Company, int, error) {
	return s.store.ListCompanies(ctx, page)
}

// ActiveCompanies lists the companies offered in selection lists.
func (s *DirectoryService) ActiveCompanies(ctx context.Context) ([]*models.Company, error) {
	all, err := s.store.AllCompanies(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Company, 0, len(all))
	for _, c := range all {
		if c.IsActive && !c.IsSystem {
			out = append(out, c)
		}
	}
	return out, nil
}

type UserInput struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CompanyID int64  `json:"company_id"`
	IsActive  *bool  `json:"is_active"`
}

func (s *DirectoryService) CreateUser(ctx context.Context, in UserInput) (*models.User, error) {
	u, err := s.validateUser(ctx, in)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.GetUserByEmail(ctx, u.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("User with this email already exists")
	}
	u.IsActive = in.IsActive == nil || *in.IsActive
	u.CreatedAt = s.now()
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, NewConflictError("User with this email already exists")
		}
		return nil, err
	}
	return u, nil
}

func (s *DirectoryService) UpdateUser(ctx context.Context, id int64, in UserInput) (*models.User, error) {
	current, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, NewNotFoundError("user not found")
	}
	if current.IsSystem {
		return nil, NewForbiddenError("cannot modify system user")
	}
	u, err := s.validateUser(ctx, in)
	if err != nil {
		return nil, err
	}
	if u.Email != current.Email {
		other, err := s.store.GetUserByEmail(ctx, u.Email)
		if err != nil {
			return nil, err
		}
		if other != nil {
			return nil, NewConflictError("User with this email already exists")
		}
	}
	current.Email, current.Name, current.Role, current.CompanyID = u.Email, u.Name, u.Role, u.CompanyID
	if in.IsActive != nil {
		current.IsActive = *in.IsActive
	}
	if err := s.store.UpdateUser(ctx, current); err != nil {
		return nil, translateStoreError(err, "user")
	}
	return current, nil
}

func (s *DirectoryService) validateUser(ctx context.Context, in UserInput) (*models.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, NewInvalidError("Name is required")
	}
	role, ok := models.ParseRole(in.Role)
	if !ok {
		return nil, NewInvalidError("Invalid role: " + in.Role)
	}
	if in.CompanyID != 0 {
		c, err := s.store.GetCompany(ctx, in.CompanyID)
		if err != nil {
			return nil, err
		}
		if c == nil || c.IsSystem {
			return nil, NewInvalidError("Company not found")
		}
	}
	return &models.User{Email: email, Name: name, Role: role, CompanyID: in.CompanyID}, nil
}

func (s *DirectoryService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil || u.IsSystem {
		return nil, NewNotFoundError("user not found")
	}
	return u, nil
}

func (s *DirectoryService) ListUsers(ctx context.Context, f models.UserFilter) ([]*models.User, int, error) {
	return s.store.ListUsers(ctx, f)
}

// CompanyUsers returns the active users of a company for roster pickers.
func (s *DirectoryService) CompanyUsers(ctx context.Context, companyID int64) ([]*models.User, error) {
	if _, err := s.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}
	users, _, err := s.store.ListUsers(ctx, models.UserFilter{CompanyID: companyID, Page: models.Page{Number: 1, Size: 200}})
	if err != nil {
		return nil, err
	}
	out := make([]*models.User, 0, len(users))
	for _, u := range users {
		if u.IsActive {
			out = append(out, u)
		}
	}
	return out, nil
}

type AssessorInput struct {
	UserID       int64  `json:"id"`
	Relationship string `json:"relationship"`
}

type AssessmentInput struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	CompanyID        int64           `json:"company_id"`
	CreatorID        int64           `json:"creator_id"`
	Deadline         string          `json:"deadline"`
	IsSelfAssessment bool            `json:"is_self_assessment"`
	IsActive         *bool           `json:"is_active"`
	AssesseeIDs      []int64         `json:"assessees"`
	Assessors        []AssessorInput `json:"assessors"`
	SendInvitations  bool            `json:"send_invitations"`
}

// CreateAssessmentOptions distinguishes operator-created assessments, which
// need a company and a full roster, from ones users create for themselves.
type CreateAssessmentOptions struct {
	RequireRoster bool
}

// CreateAssessment copies the template question set into a new assessment
// and writes its roster, if any, in the same transaction.
func (s *DirectoryService) CreateAssessment(ctx context.Context, in AssessmentInput, opts CreateAssessmentOptions) (*models.Assessment, []*models.Participant, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, nil, NewInvalidError("Assessment title is required")
	}
	if opts.RequireRoster {
		if in.CompanyID == 0 {
			return nil, nil, NewInvalidError("Assessment title and company are required")
		}
		switch {
		case len(in.AssesseeIDs) == 0:
			return nil, nil, NewInvalidError("One assessee must be selected")
		case len(in.AssesseeIDs) > 1:
			return nil, nil, NewInvalidError("Only one assessee can be selected per assessment")
		case len(in.Assessors) == 0:
			return nil, nil, NewInvalidError("At least one assessor must be selected")
		}
	}
	deadline, err := ParseDeadline(in.Deadline)
	if err != nil {
		return nil, nil, err
	}
	if in.CompanyID != 0 {
		if err := s.requireTenant(ctx, in.CompanyID); err != nil {
			return nil, nil, err
		}
	}
	var assesseeID int64
	if len(in.AssesseeIDs) > 0 {
		assesseeID = in.AssesseeIDs[0]
	}
	creatorID := in.CreatorID
	if creatorID == 0 {
		creatorID = assesseeID
	}
	if creatorID == 0 {
		return nil, nil, NewInvalidError("Assessment creator is required")
	}
	if _, err := s.requireUser(ctx, creatorID, "Creator"); err != nil {
		return nil, nil, err
	}
	questions, err := s.templateQuestions(ctx)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	a := &models.Assessment{
		Title:            title,
		Description:      strings.TrimSpace(in.Description),
		CreatorID:        creatorID,
		CompanyID:        in.CompanyID,
		Deadline:         deadline,
		IsActive:         in.IsActive == nil || *in.IsActive,
		IsSelfAssessment: in.IsSelfAssessment,
		CreatedAt:        now,
	}
	var roster []*models.Participant
	if assesseeID != 0 {
		if err := s.checkRosterUsers(ctx, assesseeID, in.Assessors); err != nil {
			return nil, nil, err
		}
		roster = buildRoster(0, assesseeID, in.Assessors, now)
	}
	if err := s.store.CreateAssessment(ctx, a, questions, roster); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, nil, NewConflictError("Assessee is already part of this assessment")
		}
		return nil, nil, err
	}
	s.logger.Info("assessment created",
		zap.Int64("assessment_id", a.ID),
		zap.Int("questions", len(questions)),
		zap.Int("participants", len(roster)))
	return a, roster, nil
}

func (s *DirectoryService) templateQuestions(ctx context.Context) ([]*models.Question, error) {
	rec, err := s.store.SystemRecords(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Template == nil {
		return nil, NewInvalidError("No template questions found; run the migrate command first")
	}
	src, err := s.store.ListQuestions(ctx, rec.Template.ID)
	if err != nil {
		return nil, err
	}
	if len(src) == 0 {
		return nil, NewInvalidError("No template questions found; run the migrate command first")
	}
	out := make([]*models.Question, 0, len(src))
	for _, q := range src {
		cp := *q
		cp.ID = 0
		cp.AssessmentID = 0
		cp.Options = append([]string(nil), q.Options...)
		out = append(out, &cp)
	}
	return out, nil
}

func (s *DirectoryService) requireUser(ctx context.Context, id int64, label string) (*models.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil || u.IsSystem {
		return nil, NewInvalidError(fmt.Sprintf("%s %d not found", label, id))
	}
	return u, nil
}

func (s *DirectoryService) checkRosterUsers(ctx context.Context, assesseeID int64, assessors []AssessorInput) error {
	if _, err := s.requireUser(ctx, assesseeID, "Assessee"); err != nil {
		return err
	}
	for _, a := range assessors {
		if a.UserID == assesseeID {
			continue
		}
		if _, err := s.requireUser(ctx, a.UserID, "Assessor"); err != nil {
			return err
		}
	}
	return nil
}

// requireTenant rejects unknown companies and the system company.
func (s *DirectoryService) requireTenant(ctx context.Context, companyID int64) error {
	c, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if c == nil || c.IsSystem {
		return NewInvalidError("Company not found")
	}
	return nil
}

// UpdateAssessment edits the definition fields. The roster and questions are
// not touched.
func (s *DirectoryService) UpdateAssessment(ctx context.Context, id int64, in AssessmentInput, requireCompany bool) (*models.Assessment, error) {
	a, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, NewNotFoundError("assessment not found")
	}
	if a.IsSystem {
		return nil, NewForbiddenError("cannot modify the template assessment")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" || (requireCompany && in.CompanyID == 0) {
		return nil, NewInvalidError("Assessment title and company are required")
	}
	deadline, err := ParseDeadline(in.Deadline)
	if err != nil {
		return nil, err
	}
	if in.CompanyID != 0 && in.CompanyID != a.CompanyID {
		if err := s.requireTenant(ctx, in.CompanyID); err != nil {
			return nil, err
		}
	}
	a.Title = title
	a.Description = strings.TrimSpace(in.Description)
	if in.CompanyID != 0 {
		a.CompanyID = in.CompanyID
	}
	a.Deadline = deadline
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
	if err := s.store.UpdateAssessment(ctx, a); err != nil {
		return nil, translateStoreError(err, "assessment")
	}
	return a, nil
}

func (s *DirectoryService) GetAssessment(ctx context.Context, id int64) (*models.Assessment, error) {
	a, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil || a.IsSystem {
		return nil, NewNotFoundError("assessment not found")
	}
	return a, nil
}

// OwnedAssessment loads an assessment and checks that userID created it.
func (s *DirectoryService) OwnedAssessment(ctx context.Context, id, userID int64) (*models.Assessment, error) {
	a, err := s.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.CreatorID != userID {
		return nil, NewForbiddenError("Access denied")
	}
	return a, nil
}

func (s *DirectoryService) ListAssessments(ctx context.Context, f models.AssessmentFilter) ([]*models.Assessment, int, error) {
	return s.store.ListAssessments(ctx, f)
}

func (s *DirectoryService) Questions(ctx context.Context, assessmentID int64) ([]*models.Question, error) {
	return s.store.ListQuestions(ctx, assessmentID)
}

var deadlineLayouts = []string{"2006-01-02T15:04", "2006-01-02", time.RFC3339}

// ParseDeadline accepts the datetime-local form, a bare date or RFC 3339.
// An empty string clears the deadline.
func ParseDeadline(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, NewInvalidError("Invalid deadline format")
}
