package services

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	m360mail "github.com/soaringjerry/modern360/internal/mail"
	"github.com/soaringjerry/modern360/internal/models"
)

// stubStore is an in-memory store covering the directory, roster,
// invitation, response and auth interfaces.
type stubStore struct {
	nextID        int64
	companies     map[int64]*models.Company
	users         map[int64]*models.User
	assessments   map[int64]*models.Assessment
	questions     map[int64][]*models.Question
	participants  map[int64]*models.Participant
	invitations   map[int64]*models.Invitation
	responses     []*models.Response
	details       []*models.ResponseDetail
	verifications map[int64]*models.EmailVerification
	system        *models.SystemRecords
	lastLogin     map[int64]time.Time

	createInvitationsErr error
	recordErr            error
}

func newStubStore() *stubStore {
	return &stubStore{
		companies:     map[int64]*models.Company{},
		users:         map[int64]*models.User{},
		assessments:   map[int64]*models.Assessment{},
		questions:     map[int64][]*models.Question{},
		participants:  map[int64]*models.Participant{},
		invitations:   map[int64]*models.Invitation{},
		verifications: map[int64]*models.EmailVerification{},
		system:        &models.SystemRecords{},
		lastLogin:     map[int64]time.Time{},
	}
}

func (s *stubStore) id() int64 {
	s.nextID++
	return s.nextID
}

// seedTemplate installs a template assessment with n questions.
func (s *stubStore) seedTemplate(n int) {
	tpl := &models.Assessment{ID: s.id(), Title: TemplateTitle, IsSystem: true}
	s.assessments[tpl.ID] = tpl
	s.system.Template = tpl
	qs := DefaultQuestions()[:n]
	for _, q := range qs {
		q.ID = s.id()
		q.AssessmentID = tpl.ID
	}
	s.questions[tpl.ID] = qs
}

func (s *stubStore) addUser(email, name string) *models.User {
	u := &models.User{ID: s.id(), Email: email, Name: name, Role: models.RoleUser, IsActive: true}
	s.users[u.ID] = u
	return u
}

func (s *stubStore) addAssessment(title string, creatorID int64) *models.Assessment {
	a := &models.Assessment{ID: s.id(), Title: title, CreatorID: creatorID, IsActive: true}
	s.assessments[a.ID] = a
	s.questions[a.ID] = []*models.Question{{ID: s.id(), AssessmentID: a.ID, Text: "Q1", Type: models.QuestionRating, Position: 1}}
	return a
}

func (s *stubStore) CreateCompany(_ context.Context, c *models.Company) error {
	for _, other := range s.companies {
		if strings.EqualFold(other.Name, c.Name) {
			return models.ErrDuplicate
		}
	}
	c.ID = s.id()
	cp := *c
	s.companies[c.ID] = &cp
	return nil
}

func (s *stubStore) GetCompany(_ context.Context, id int64) (*models.Company, error) {
	if c, ok := s.companies[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) GetCompanyByName(_ context.Context, name string) (*models.Company, error) {
	for _, c := range s.companies {
		if strings.EqualFold(c.Name, name) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubStore) UpdateCompany(_ context.Context, c *models.Company) error {
	if _, ok := s.companies[c.ID]; !ok {
		return models.ErrNotFound
	}
	cp := *c
	s.companies[c.ID] = &cp
	return nil
}

func (s *stubStore) ListCompanies(_ context.Context, _ models.Page) ([]*models.Company, int, error) {
	var out []*models.Company
	for _, c := range s.companies {
		if !c.IsSystem {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (s *stubStore) AllCompanies(_ context.Context) ([]*models.Company, error) {
	var out []*models.Company
	for _, c := range s.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubStore) CreateUser(_ context.Context, u *models.User) error {
	for _, other := range s.users {
		if other.Email == strings.ToLower(u.Email) {
			return models.ErrDuplicate
		}
	}
	u.ID = s.id()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *stubStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == strings.ToLower(strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubStore) UpdateUser(_ context.Context, u *models.User) error {
	if _, ok := s.users[u.ID]; !ok {
		return models.ErrNotFound
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *stubStore) TouchLastLogin(_ context.Context, userID int64, at time.Time) error {
	s.lastLogin[userID] = at
	return nil
}

func (s *stubStore) ListUsers(_ context.Context, f models.UserFilter) ([]*models.User, int, error) {
	var out []*models.User
	for _, u := range s.users {
		if u.IsSystem || (f.CompanyID != 0 && u.CompanyID != f.CompanyID) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (s *stubStore) CreateAssessment(ctx context.Context, a *models.Assessment, questions []*models.Question, roster []*models.Participant) error {
	a.ID = s.id()
	cp := *a
	s.assessments[a.ID] = &cp
	for _, q := range questions {
		q.ID = s.id()
		q.AssessmentID = a.ID
	}
	s.questions[a.ID] = questions
	for _, p := range roster {
		p.AssessmentID = a.ID
	}
	return s.CreateRoster(ctx, roster)
}

func (s *stubStore) GetAssessment(_ context.Context, id int64) (*models.Assessment, error) {
	if a, ok := s.assessments[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) UpdateAssessment(_ context.Context, a *models.Assessment) error {
	if _, ok := s.assessments[a.ID]; !ok {
		return models.ErrNotFound
	}
	cp := *a
	s.assessments[a.ID] = &cp
	return nil
}

func (s *stubStore) ListAssessments(_ context.Context, f models.AssessmentFilter) ([]*models.Assessment, int, error) {
	var out []*models.Assessment
	for _, a := range s.assessments {
		if a.IsSystem || (f.CreatorID != 0 && a.CreatorID != f.CreatorID) {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

func (s *stubStore) ListQuestions(_ context.Context, assessmentID int64) ([]*models.Question, error) {
	return s.questions[assessmentID], nil
}

func (s *stubStore) SystemRecords(_ context.Context) (*models.SystemRecords, error) {
	return s.system, nil
}

func (s *stubStore) FindSelfParticipant(_ context.Context, assessmentID, assesseeID int64) (*models.Participant, error) {
	for _, p := range s.participants {
		if p.AssessmentID == assessmentID && p.AssesseeID == assesseeID && p.Role == models.ParticipantSelf {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubStore) CreateRoster(_ context.Context, rows []*models.Participant) error {
	for _, p := range rows {
		for _, other := range s.participants {
			if other.AssessmentID == p.AssessmentID && other.AssesseeID == p.AssesseeID &&
				other.Role == p.Role && other.AssessorID == p.AssessorID {
				return models.ErrDuplicate
			}
		}
	}
	for _, p := range rows {
		p.ID = s.id()
		cp := *p
		s.participants[p.ID] = &cp
	}
	return nil
}

func (s *stubStore) GetParticipant(_ context.Context, id int64) (*models.Participant, error) {
	if p, ok := s.participants[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) ListParticipants(_ context.Context, assessmentID int64) ([]*models.Participant, error) {
	var out []*models.Participant
	for _, p := range s.participants {
		if p.AssessmentID == assessmentID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubStore) PendingParticipantInvitations(_ context.Context, assessmentID int64) (map[int64]bool, error) {
	out := map[int64]bool{}
	for _, inv := range s.invitations {
		if inv.AssessmentID == assessmentID && inv.ParticipantID != 0 && !inv.IsCompleted {
			out[inv.ParticipantID] = true
		}
	}
	return out, nil
}

func (s *stubStore) InvitedEmails(_ context.Context, assessmentID int64) (map[string]bool, error) {
	out := map[string]bool{}
	for _, inv := range s.invitations {
		if inv.AssessmentID == assessmentID {
			out[inv.Email] = true
		}
	}
	return out, nil
}

func (s *stubStore) CreateInvitations(_ context.Context, invs []*models.Invitation) error {
	if s.createInvitationsErr != nil {
		return s.createInvitationsErr
	}
	for _, inv := range invs {
		inv.ID = s.id()
		cp := *inv
		s.invitations[inv.ID] = &cp
	}
	return nil
}

func (s *stubStore) GetInvitation(_ context.Context, id int64) (*models.Invitation, error) {
	if inv, ok := s.invitations[id]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) GetInvitationByToken(_ context.Context, token string) (*models.Invitation, error) {
	for _, inv := range s.invitations {
		if inv.Token == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubStore) ListInvitations(_ context.Context, assessmentID int64, pendingOnly bool, _ models.Page) ([]*models.Invitation, int, error) {
	var out []*models.Invitation
	for _, inv := range s.invitations {
		if (assessmentID != 0 && inv.AssessmentID != assessmentID) || (pendingOnly && inv.IsCompleted) {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (s *stubStore) MarkReminded(_ context.Context, id int64, at time.Time) error {
	inv, ok := s.invitations[id]
	if !ok || inv.IsCompleted {
		return models.ErrNotFound
	}
	inv.RemindersSent++
	inv.LastRemindedAt = &at
	return nil
}

func (s *stubStore) OverdueAssessments(_ context.Context, now time.Time) ([]*models.Assessment, error) {
	var out []*models.Assessment
	for _, a := range s.assessments {
		if !a.IsSystem && a.Overdue(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubStore) HasSessionResponse(_ context.Context, assessmentID, userID int64, typ models.ResponseType) (bool, error) {
	for _, r := range s.responses {
		if r.AssessmentID == assessmentID && r.UserID == userID && r.Type == typ && r.InvitationID == 0 {
			return true, nil
		}
	}
	return false, nil
}

// RecordSubmission mirrors the conditional writes of the SQL store.
func (s *stubStore) RecordSubmission(_ context.Context, sub *models.Submission) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	at := sub.Response.SubmittedAt
	if sub.InvitationID != 0 {
		inv := s.invitations[sub.InvitationID]
		if inv == nil || inv.IsCompleted {
			return models.ErrAlreadyCompleted
		}
	}
	if sub.ParticipantID != 0 {
		if p := s.participants[sub.ParticipantID]; p == nil || p.Status.Completed {
			return models.ErrAlreadyCompleted
		}
	}
	if sub.InvitationID != 0 {
		inv := s.invitations[sub.InvitationID]
		inv.IsCompleted = true
		inv.RespondedAt = &at
	}
	if sub.ParticipantID != 0 {
		p := s.participants[sub.ParticipantID]
		p.Status = models.CompletionStatus{Completed: true, CompletedAt: &at}
		for _, inv := range s.invitations {
			if inv.ParticipantID == p.ID && !inv.IsCompleted {
				inv.IsCompleted = true
				inv.RespondedAt = &at
			}
		}
	}
	sub.Response.ID = s.id()
	s.responses = append(s.responses, sub.Response)
	if sub.Detail != nil {
		sub.Detail.ResponseID = sub.Response.ID
		sub.Detail.ID = s.id()
		s.details = append(s.details, sub.Detail)
	}
	return nil
}

func (s *stubStore) ListResponses(_ context.Context, assessmentID int64) ([]*models.Response, error) {
	var out []*models.Response
	for _, r := range s.responses {
		if assessmentID == 0 || r.AssessmentID == assessmentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubStore) ListDetails(_ context.Context, assessmentID int64) ([]*models.ResponseDetail, error) {
	var out []*models.ResponseDetail
	for _, d := range s.details {
		if d.AssessmentID == assessmentID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubStore) ReplaceDetails(_ context.Context, details []*models.ResponseDetail) error {
	replaced := map[int64]bool{}
	for _, d := range details {
		replaced[d.ResponseID] = true
	}
	kept := s.details[:0]
	for _, d := range s.details {
		if !replaced[d.ResponseID] {
			kept = append(kept, d)
		}
	}
	s.details = append(kept, details...)
	return nil
}

func (s *stubStore) CreateVerification(_ context.Context, v *models.EmailVerification) error {
	v.ID = s.id()
	cp := *v
	s.verifications[v.ID] = &cp
	return nil
}

func (s *stubStore) GetVerificationByToken(_ context.Context, token string) (*models.EmailVerification, error) {
	for _, v := range s.verifications {
		if v.LoginToken == token {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubStore) ConsumeVerification(_ context.Context, id int64, now time.Time) (bool, error) {
	v, ok := s.verifications[id]
	if !ok || !v.Usable(now) {
		return false, nil
	}
	v.IsUsed = true
	return true, nil
}

func (s *stubStore) AttachVerificationUser(_ context.Context, id, userID int64) error {
	if v, ok := s.verifications[id]; ok {
		v.UserID = userID
	}
	return nil
}

// outbox records sent mail and can be told to fail.
type outbox struct {
	sent []m360mail.Message
	fail error
}

func (o *outbox) Send(_ context.Context, msg m360mail.Message) error {
	if o.fail != nil {
		return o.fail
	}
	o.sent = append(o.sent, msg)
	return nil
}

func itoa64(v int64) string { return strconv.FormatInt(v, 10) }
