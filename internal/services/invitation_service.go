package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	m360mail "github.com/soaringjerry/modern360/internal/mail"
	"github.com/soaringjerry/modern360/internal/metrics"
	"github.com/soaringjerry/modern360/internal/models"
)

type InvitationStore interface {
	GetAssessment(ctx context.Context, id int64) (*models.Assessment, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetParticipant(ctx context.Context, id int64) (*models.Participant, error)
	ListParticipants(ctx context.Context, assessmentID int64) ([]*models.Participant, error)
	ListQuestions(ctx context.Context, assessmentID int64) ([]*models.Question, error)
	PendingParticipantInvitations(ctx context.Context, assessmentID int64) (map[int64]bool, error)
	InvitedEmails(ctx context.Context, assessmentID int64) (map[string]bool, error)
	CreateInvitations(ctx context.Context, invs []*models.Invitation) error
	GetInvitation(ctx context.Context, id int64) (*models.Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error)
	ListInvitations(ctx context.Context, assessmentID int64, pendingOnly bool, page models.Page) ([]*models.Invitation, int, error)
	MarkReminded(ctx context.Context, id int64, at time.Time) error
	OverdueAssessments(ctx context.Context, now time.Time) ([]*models.Assessment, error)
}

// InvitationService issues single-use respondent links and mails them.
type InvitationService struct {
	store    InvitationStore
	mailer   m360mail.Mailer
	logger   *zap.Logger
	metrics  *metrics.Metrics
	baseURL  string
	now      func() time.Time
	newToken func() (string, error)
}

func NewInvitationService(store InvitationStore, mailer m360mail.Mailer, baseURL string, logger *zap.Logger, m *metrics.Metrics) *InvitationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvitationService{
		store:    store,
		mailer:   mailer,
		logger:   logger,
		metrics:  m,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      func() time.Time { return time.Now().UTC() },
		newToken: func() (string, error) { return generateToken(inviteTokenBytes) },
	}
}

// IssueResult counts what an issuance did. Failed mails leave their
// invitation in place so a reminder can resend it.
type IssueResult struct {
	Created int `json:"created"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type pendingMail struct {
	inv    *models.Invitation
	letter m360mail.Invite
}

// IssueInvitations creates one invitation per roster row that is neither
// completed nor already invited, commits them, then mails each link.
func (s *InvitationService) IssueInvitations(ctx context.Context, assessmentID, senderID int64) (*IssueResult, error) {
	a, err := s.activeAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if senderID == 0 {
		senderID = a.CreatorID
	}
	rows, err := s.store.ListParticipants(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.PendingParticipantInvitations(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	res := &IssueResult{}
	now := s.now()
	users := map[int64]*models.User{}
	var batch []pendingMail
	for _, p := range rows {
		if p.Status.Completed || pending[p.ID] {
			res.Skipped++
			continue
		}
		respondent, err := s.cachedUser(ctx, users, p.RespondentID())
		if err != nil {
			return nil, err
		}
		assessee, err := s.cachedUser(ctx, users, p.AssesseeID)
		if err != nil {
			return nil, err
		}
		if respondent == nil || !respondent.IsActive || assessee == nil {
			s.logger.Warn("skipping roster row without an active respondent",
				zap.Int64("assessment_id", assessmentID), zap.Int64("participant_id", p.ID))
			res.Skipped++
			continue
		}
		token, err := s.newToken()
		if err != nil {
			return nil, err
		}
		inv := &models.Invitation{
			AssessmentID:  assessmentID,
			ParticipantID: p.ID,
			SenderID:      senderID,
			Email:         respondent.Email,
			Token:         token,
			SentAt:        now,
		}
		batch = append(batch, pendingMail{inv: inv, letter: m360mail.Invite{
			To:           respondent.Email,
			Title:        a.Title,
			AssesseeName: assessee.Name,
			Deadline:     a.Deadline,
			Self:         p.Role == models.ParticipantSelf,
		}})
	}
	if err := s.commit(ctx, batch, res); err != nil {
		return nil, err
	}
	s.logger.Info("invitations issued",
		zap.Int64("assessment_id", assessmentID),
		zap.Int("created", res.Created), zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed), zap.Int("skipped", res.Skipped))
	return res, nil
}

// InviteByEmail creates ad hoc invitations that are not tied to a roster row.
// Addresses that already hold an invitation for the assessment are skipped.
func (s *InvitationService) InviteByEmail(ctx context.Context, assessmentID, senderID int64, raw string) (*IssueResult, error) {
	emails, err := ParseEmailList(raw)
	if err != nil {
		return nil, err
	}
	if len(emails) == 0 {
		return nil, NewInvalidError("Assessment and email addresses are required")
	}
	a, err := s.activeAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if senderID == 0 {
		senderID = a.CreatorID
	}
	invited, err := s.store.InvitedEmails(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	res := &IssueResult{}
	now := s.now()
	var batch []pendingMail
	for _, email := range emails {
		if invited[email] {
			res.Skipped++
			continue
		}
		token, err := s.newToken()
		if err != nil {
			return nil, err
		}
		batch = append(batch, pendingMail{
			inv: &models.Invitation{
				AssessmentID: assessmentID,
				SenderID:     senderID,
				Email:        email,
				Token:        token,
				SentAt:       now,
			},
			letter: m360mail.Invite{To: email, Title: a.Title, Deadline: a.Deadline, Adhoc: true},
		})
	}
	if err := s.commit(ctx, batch, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *InvitationService) commit(ctx context.Context, batch []pendingMail, res *IssueResult) error {
	if len(batch) == 0 {
		return nil
	}
	invs := make([]*models.Invitation, 0, len(batch))
	for _, b := range batch {
		invs = append(invs, b.inv)
	}
	if err := s.store.CreateInvitations(ctx, invs); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return NewConflictError("Invitation already exists")
		}
		return err
	}
	res.Created = len(invs)
	s.metrics.InvitationsCreated(len(invs))
	for _, b := range batch {
		b.letter.Link = s.respondLink(b.inv.Token)
		if err := s.dispatch(ctx, b.letter, false); err != nil {
			res.Failed++
			s.logger.Warn("invitation email failed",
				zap.Int64("invitation_id", b.inv.ID), zap.String("email", b.inv.Email), zap.Error(err))
			continue
		}
		res.Sent++
	}
	return nil
}

func (s *InvitationService) dispatch(ctx context.Context, in m360mail.Invite, reminder bool) error {
	build := m360mail.Invitation
	if reminder {
		build = m360mail.Reminder
	}
	msg, err := build(in)
	if err != nil {
		return err
	}
	if s.mailer == nil {
		err = errors.New("mailer not configured")
	} else {
		err = s.mailer.Send(ctx, msg)
	}
	s.metrics.MailSent(string(msg.Kind), err)
	return err
}

func (s *InvitationService) respondLink(token string) string {
	return s.baseURL + "/respond/" + token
}

func (s *InvitationService) activeAssessment(ctx context.Context, id int64) (*models.Assessment, error) {
	a, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil || a.IsSystem {
		return nil, NewNotFoundError("assessment not found")
	}
	if !a.IsActive {
		return nil, NewInvalidError("Assessment is not active")
	}
	return a, nil
}

func (s *InvitationService) cachedUser(ctx context.Context, cache map[int64]*models.User, id int64) (*models.User, error) {
	if u, ok := cache[id]; ok {
		return u, nil
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	cache[id] = u
	return u, nil
}

// InvitationView is what a respondent sees when following a link.
type InvitationView struct {
	Invitation       *models.Invitation `json:"invitation"`
	Assessment       *models.Assessment `json:"assessment"`
	Questions        []*models.Question `json:"questions,omitempty"`
	AssesseeName     string             `json:"assessee_name,omitempty"`
	Self             bool               `json:"self"`
	AlreadyCompleted bool               `json:"already_completed"`
}

// ResolveInvitation looks a token up exactly. Completed invitations resolve
// to a view flagged AlreadyCompleted without the questions.
func (s *InvitationService) ResolveInvitation(ctx context.Context, token string) (*InvitationView, error) {
	inv, err := s.lookupToken(ctx, token)
	if err != nil {
		return nil, err
	}
	a, err := s.store.GetAssessment(ctx, inv.AssessmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, NewNotFoundError("invitation not found")
	}
	view := &InvitationView{Invitation: inv, Assessment: a, AlreadyCompleted: inv.IsCompleted}
	if inv.IsCompleted {
		return view, nil
	}
	if inv.ParticipantID != 0 {
		p, err := s.store.GetParticipant(ctx, inv.ParticipantID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			view.Self = p.Role == models.ParticipantSelf
			if u, err := s.store.GetUser(ctx, p.AssesseeID); err != nil {
				return nil, err
			} else if u != nil {
				view.AssesseeName = u.Name
			}
		}
	}
	if view.Questions, err = s.store.ListQuestions(ctx, a.ID); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *InvitationService) lookupToken(ctx context.Context, token string) (*models.Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, NewNotFoundError("invitation not found")
	}
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, NewNotFoundError("invitation not found")
	}
	return inv, nil
}

// SendReminder re-mails a pending invitation with reminder wording.
func (s *InvitationService) SendReminder(ctx context.Context, invitationID int64) (*models.Invitation, error) {
	inv, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, NewNotFoundError("invitation not found")
	}
	if inv.IsCompleted {
		return nil, NewConflictError("Invitation already completed")
	}
	a, err := s.store.GetAssessment(ctx, inv.AssessmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, NewNotFoundError("assessment not found")
	}
	letter := m360mail.Invite{To: inv.Email, Title: a.Title, Deadline: a.Deadline, Link: s.respondLink(inv.Token), Adhoc: true}
	if inv.ParticipantID != 0 {
		p, err := s.store.GetParticipant(ctx, inv.ParticipantID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			assessee, err := s.store.GetUser(ctx, p.AssesseeID)
			if err != nil {
				return nil, err
			}
			if assessee != nil {
				letter.Adhoc = false
				letter.AssesseeName = assessee.Name
				letter.Self = p.Role == models.ParticipantSelf
			}
		}
	}
	if err := s.dispatch(ctx, letter, true); err != nil {
		s.logger.Warn("reminder email failed", zap.Int64("invitation_id", inv.ID), zap.Error(err))
		return nil, NewBadGatewayError("Failed to send reminder: " + err.Error())
	}
	now := s.now()
	if err := s.store.MarkReminded(ctx, inv.ID, now); err != nil {
		return nil, translateStoreError(err, "invitation")
	}
	inv.RemindersSent++
	inv.LastRemindedAt = &now
	return inv, nil
}

func (s *InvitationService) ListInvitations(ctx context.Context, assessmentID int64, pendingOnly bool, page models.Page) ([]*models.Invitation, int, error) {
	return s.store.ListInvitations(ctx, assessmentID, pendingOnly, page)
}

type Notifications struct {
	PendingInvitations []*models.Invitation `json:"pending_invitations"`
	PendingTotal       int                  `json:"pending_total"`
	OverdueAssessments []*models.Assessment `json:"overdue_assessments"`
}

// Notifications lists what still needs chasing: pending invitations and
// active assessments past their deadline.
func (s *InvitationService) Notifications(ctx context.Context, page models.Page) (*Notifications, error) {
	pending, total, err := s.store.ListInvitations(ctx, 0, true, page)
	if err != nil {
		return nil, err
	}
	overdue, err := s.store.OverdueAssessments(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return &Notifications{PendingInvitations: pending, PendingTotal: total, OverdueAssessments: overdue}, nil
}

// ParseEmailList splits on commas and newlines, lower-cases and de-duplicates.
func ParseEmailList(raw string) ([]string, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' || r == '\r' || r == ';' })
	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			continue
		}
		email, err := normalizeEmail(f)
		if err != nil {
			return nil, err
		}
		if seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	return out, nil
}
