package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/soaringjerry/modern360/internal/models"
)

type ReportStore interface {
	DashboardCounts(ctx context.Context) (*models.DashboardCounts, error)
	AssessmentStats(ctx context.Context) ([]models.AssessmentStat, error)
	UserActivity(ctx context.Context) ([]models.UserActivity, error)
	ListAssessments(ctx context.Context, f models.AssessmentFilter) ([]*models.Assessment, int, error)
	ListInvitations(ctx context.Context, assessmentID int64, pendingOnly bool, page models.Page) ([]*models.Invitation, int, error)
	RecentResponsesForCreator(ctx context.Context, userID int64, limit int) ([]*models.Response, error)
	ListAssessmentsForAssessor(ctx context.Context, userID int64) ([]*models.Assessment, error)
	GetAssessment(ctx context.Context, id int64) (*models.Assessment, error)
	ListQuestions(ctx context.Context, assessmentID int64) ([]*models.Question, error)
	ListDetails(ctx context.Context, assessmentID int64) ([]*models.ResponseDetail, error)
	ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

type ReportService struct {
	store ReportStore
	now   func() time.Time
}

func NewReportService(store ReportStore) *ReportService {
	return &ReportService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

type AssessmentReport struct {
	models.AssessmentStat
	CompletionRate float64 `json:"completion_rate"`
}

type UserReport struct {
	models.UserActivity
	ActivityScore int `json:"activity_score"`
}

type Report struct {
	Assessments []AssessmentReport `json:"assessments"`
	Users       []UserReport       `json:"users"`
}

// CompletionRate is responses per invitation as a percentage with one
// decimal; zero invitations give zero.
func CompletionRate(responses, invitations int) float64 {
	if invitations <= 0 {
		return 0
	}
	return math.Round(float64(responses)/float64(invitations)*1000) / 10
}

// ActivityScore weights created assessments 3, responses 2 and sent
// invitations 1.
func ActivityScore(a models.UserActivity) int {
	return a.AssessmentsCreated*3 + a.Responses*2 + a.InvitationsSent
}

func (s *ReportService) Report(ctx context.Context) (*Report, error) {
	stats, err := s.store.AssessmentStats(ctx)
	if err != nil {
		return nil, err
	}
	activity, err := s.store.UserActivity(ctx)
	if err != nil {
		return nil, err
	}
	out := &Report{
		Assessments: make([]AssessmentReport, 0, len(stats)),
		Users:       make([]UserReport, 0, len(activity)),
	}
	for _, st := range stats {
		out.Assessments = append(out.Assessments, AssessmentReport{AssessmentStat: st, CompletionRate: CompletionRate(st.Responses, st.Invitations)})
	}
	for _, a := range activity {
		out.Users = append(out.Users, UserReport{UserActivity: a, ActivityScore: ActivityScore(a)})
	}
	return out, nil
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportCSV renders the full report for download.
func (s *ReportService) ExportCSV(ctx context.Context) (*ExportResult, error) {
	rep, err := s.Report(ctx)
	if err != nil {
		return nil, err
	}
	data, err := ExportReportCSV(rep.Assessments, rep.Users)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("modern360_report_%s.csv", s.now().Format("2006-01-02")),
		ContentType: "text/csv",
		Data:        data,
	}, nil
}

// ExportResponsesCSV renders one assessment's answer columns for download.
func (s *ReportService) ExportResponsesCSV(ctx context.Context, assessmentID int64) (*ExportResult, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.IsSystem {
		return nil, NewNotFoundError("assessment not found")
	}
	questions, err := s.store.ListQuestions(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	details, err := s.store.ListDetails(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	data, err := ExportDetailsCSV(questions, details)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("modern360_responses_%d_%s.csv", assessmentID, s.now().Format("2006-01-02")),
		ContentType: "text/csv",
		Data:        data,
	}, nil
}

type AdminDashboard struct {
	Counts             *models.DashboardCounts `json:"counts"`
	RecentAssessments  []*models.Assessment    `json:"recent_assessments"`
	RecentInvitations  []*models.Invitation    `json:"recent_invitations"`
	RecentAuditEntries []models.AuditEntry     `json:"recent_audit"`
}

// AdminDashboard collects the headline numbers and the five newest items.
func (s *ReportService) AdminDashboard(ctx context.Context) (*AdminDashboard, error) {
	counts, err := s.store.DashboardCounts(ctx)
	if err != nil {
		return nil, err
	}
	recent := models.Page{Number: 1, Size: 5}
	assessments, _, err := s.store.ListAssessments(ctx, models.AssessmentFilter{Page: recent})
	if err != nil {
		return nil, err
	}
	invitations, _, err := s.store.ListInvitations(ctx, 0, false, recent)
	if err != nil {
		return nil, err
	}
	audit, err := s.store.ListAudit(ctx, 10)
	if err != nil {
		return nil, err
	}
	return &AdminDashboard{Counts: counts, RecentAssessments: assessments, RecentInvitations: invitations, RecentAuditEntries: audit}, nil
}

type UserDashboard struct {
	Assessments     []*models.Assessment `json:"assessments"`
	ToAssess        []*models.Assessment `json:"to_assess"`
	RecentResponses []*models.Response   `json:"recent_responses"`
}

// UserDashboard lists what the user created, the newest answers to it and
// the assessments the user was asked to rate.
func (s *ReportService) UserDashboard(ctx context.Context, userID int64) (*UserDashboard, error) {
	assessments, _, err := s.store.ListAssessments(ctx, models.AssessmentFilter{CreatorID: userID, Page: models.Page{Number: 1, Size: 200}})
	if err != nil {
		return nil, err
	}
	recent, err := s.store.RecentResponsesForCreator(ctx, userID, 5)
	if err != nil {
		return nil, err
	}
	toAssess, err := s.store.ListAssessmentsForAssessor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserDashboard{Assessments: assessments, ToAssess: toAssess, RecentResponses: recent}, nil
}

type AssessmentDetails struct {
	Assessment  *models.Assessment       `json:"assessment"`
	Invitations []*models.Invitation     `json:"invitations"`
	Responses   []*models.ResponseDetail `json:"responses"`
}

// AssessmentDetails lists the invitations and answers of an assessment the
// caller has already been authorized for.
func (s *ReportService) AssessmentDetails(ctx context.Context, a *models.Assessment) (*AssessmentDetails, error) {
	invs, _, err := s.store.ListInvitations(ctx, a.ID, false, models.Page{Number: 1, Size: 200})
	if err != nil {
		return nil, err
	}
	details, err := s.store.ListDetails(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return &AssessmentDetails{Assessment: a, Invitations: invs, Responses: details}, nil
}
