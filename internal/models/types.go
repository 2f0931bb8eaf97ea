package models

import (
	"strconv"
	"strings"
	"time"
)

// Role is the coarse permission class of a user.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleUser     Role = "user"
	RoleAssessee Role = "assessee"
	RoleAssessor Role = "assessor"
)

// ParseRole normalizes s; empty input yields RoleUser.
func ParseRole(s string) (Role, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RoleUser, true
	}
	switch r := Role(s); r {
	case RoleAdmin, RoleManager, RoleUser, RoleAssessee, RoleAssessor:
		return r, true
	}
	return "", false
}

// Company is a tenant. The system company owns template records only.
type Company struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	IsSystem    bool      `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

type User struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      Role       `json:"role"`
	CompanyID int64      `json:"company_id,omitempty"` // 0 when unassigned
	IsActive  bool       `json:"is_active"`
	IsSystem  bool       `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

type Assessment struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	CreatorID        int64      `json:"creator_id"`
	CompanyID        int64      `json:"company_id,omitempty"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	IsActive         bool       `json:"is_active"`
	IsSelfAssessment bool       `json:"is_self_assessment"`
	IsSystem         bool       `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Overdue reports whether an active assessment has passed its deadline.
func (a *Assessment) Overdue(now time.Time) bool {
	return a != nil && a.IsActive && a.Deadline != nil && a.Deadline.Before(now)
}

type QuestionType string

const (
	QuestionRating         QuestionType = "rating"
	QuestionText           QuestionType = "text"
	QuestionMultipleChoice QuestionType = "multiple_choice"
)

type Question struct {
	ID           int64        `json:"id"`
	AssessmentID int64        `json:"assessment_id"`
	Text         string       `json:"text"`
	Group        string       `json:"group,omitempty"`
	Type         QuestionType `json:"type"`
	Position     int          `json:"position"`
	Options      []string     `json:"options,omitempty"`
}

// Key is the answer key of the question: "q" followed by its 1-based position.
func (q *Question) Key() string { return "q" + strconv.Itoa(q.Position) }

// ParticipantRole distinguishes the assessee's own row from assessor rows.
type ParticipantRole string

const (
	ParticipantSelf     ParticipantRole = "self"
	ParticipantAssessor ParticipantRole = "assessor"
)

// CompletionStatus is the single completion state of a participant row.
type CompletionStatus struct {
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type Participant struct {
	ID           int64            `json:"id"`
	AssessmentID int64            `json:"assessment_id"`
	AssesseeID   int64            `json:"assessee_id"`
	AssessorID   int64            `json:"assessor_id,omitempty"` // 0 for the self row
	Role         ParticipantRole  `json:"role"`
	Relationship string           `json:"relationship,omitempty"`
	Status       CompletionStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
}

// RespondentID is the user expected to answer for this row.
func (p *Participant) RespondentID() int64 {
	if p.Role == ParticipantSelf {
		return p.AssesseeID
	}
	return p.AssessorID
}

type Invitation struct {
	ID             int64      `json:"id"`
	AssessmentID   int64      `json:"assessment_id"`
	ParticipantID  int64      `json:"participant_id,omitempty"`
	SenderID       int64      `json:"sender_id"`
	Email          string     `json:"email"`
	Token          string     `json:"-"`
	SentAt         time.Time  `json:"sent_at"`
	RespondedAt    *time.Time `json:"responded_at,omitempty"`
	IsCompleted    bool       `json:"is_completed"`
	RemindersSent  int        `json:"reminders_sent"`
	LastRemindedAt *time.Time `json:"last_reminded_at,omitempty"`
}

type ResponseType string

const (
	ResponseSelf     ResponseType = "self"
	ResponseAssessor ResponseType = "assessor"
)

// Response is the authoritative record of one submission.
type Response struct {
	ID            int64             `json:"id"`
	AssessmentID  int64             `json:"assessment_id"`
	UserID        int64             `json:"user_id,omitempty"`
	InvitationID  int64             `json:"invitation_id,omitempty"`
	ParticipantID int64             `json:"participant_id,omitempty"`
	Type          ResponseType      `json:"response_type"`
	Answers       map[string]string `json:"answers"`
	SubmittedAt   time.Time         `json:"submitted_at"`
}

// ProjectionColumnCount is the number of answer columns in a ResponseDetail.
const ProjectionColumnCount = 39

// ProjectionColumn names the i-th (1-based) answer column.
func ProjectionColumn(i int) string { return "q" + strconv.Itoa(i) }

// ResponseDetail is the column projection of a Response. Columns is keyed by
// projection column name (q1..q39 by default).
type ResponseDetail struct {
	ID              int64             `json:"id"`
	ResponseID      int64             `json:"assessment_response_id"`
	AssessmentID    int64             `json:"assessment_id"`
	InvitationID    int64             `json:"invitation_id,omitempty"`
	UserID          int64             `json:"user_id,omitempty"`
	RespondentEmail string            `json:"respondent_email,omitempty"`
	AssessmentTitle string            `json:"assessment_title,omitempty"`
	SubmittedAt     time.Time         `json:"submitted_at"`
	Columns         map[string]string `json:"columns"`
}

type EmailVerification struct {
	ID         int64
	UserID     int64
	Email      string
	Code       string
	LoginToken string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	IsUsed     bool
}

// Usable reports whether the verification can still be redeemed at now.
func (v *EmailVerification) Usable(now time.Time) bool {
	return v != nil && !v.IsUsed && now.Before(v.ExpiresAt)
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}

// Page selects a 1-based page of a listing.
type Page struct {
	Number int
	Size   int
}

const DefaultPageSize = 20

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 || p.Size > 200 {
		p.Size = DefaultPageSize
	}
	return p
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// UserFilter narrows user listings. Zero values mean no constraint.
type UserFilter struct {
	CompanyID int64
	Search    string
	Page      Page
}

// AssessmentFilter narrows assessment listings. Zero values mean no constraint.
type AssessmentFilter struct {
	CompanyID int64
	CreatorID int64
	Search    string
	Page      Page
}

// SystemRecords are the protected template company, owner user and question
// template. Any field may be nil before bootstrap.
type SystemRecords struct {
	Company  *Company
	User     *User
	Template *Assessment
}

// Submission is one response write: the invitation (if any) to consume, the
// participant row to complete, the authoritative response and its projection.
type Submission struct {
	InvitationID  int64
	ParticipantID int64
	Response      *Response
	Detail        *ResponseDetail
}

// DashboardCounts are headline totals over non-system records.
type DashboardCounts struct {
	Companies          int `json:"companies"`
	Users              int `json:"users"`
	Assessments        int `json:"assessments"`
	ActiveAssessments  int `json:"active_assessments"`
	Invitations        int `json:"invitations"`
	PendingInvitations int `json:"pending_invitations"`
	Responses          int `json:"responses"`
}

// AssessmentStat is the per-assessment row of the admin report.
type AssessmentStat struct {
	AssessmentID int64      `json:"assessment_id"`
	Title        string     `json:"title"`
	CompanyName  string     `json:"company_name"`
	CreatorName  string     `json:"creator_name"`
	IsActive     bool       `json:"is_active"`
	IsSelf       bool       `json:"is_self_assessment"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Invitations  int        `json:"invitations"`
	Responses    int        `json:"responses"`
}

// UserActivity is the per-user row of the admin report.
type UserActivity struct {
	UserID             int64  `json:"user_id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Role               Role   `json:"role"`
	CompanyName        string `json:"company_name"`
	AssessmentsCreated int    `json:"assessments_created"`
	Responses          int    `json:"responses"`
	InvitationsSent    int    `json:"invitations_sent"`
}
