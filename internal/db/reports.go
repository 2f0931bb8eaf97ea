package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soaringjerry/modern360/internal/models"
)

func (s *SQLiteStore) DashboardCounts(ctx context.Context) (*models.DashboardCounts, error) {
	var c models.DashboardCounts
	queries := []struct {
		dst  *int
		stmt string
	}{
		{&c.Companies, "SELECT COUNT(*) FROM companies WHERE is_system = 0"},
		{&c.Users, "SELECT COUNT(*) FROM users WHERE is_system = 0"},
		{&c.Assessments, "SELECT COUNT(*) FROM assessments WHERE is_system = 0"},
		{&c.ActiveAssessments, "SELECT COUNT(*) FROM assessments WHERE is_system = 0 AND is_active = 1"},
		{&c.Invitations, "SELECT COUNT(*) FROM invitations"},
		{&c.PendingInvitations, "SELECT COUNT(*) FROM invitations WHERE is_completed = 0"},
		{&c.Responses, "SELECT COUNT(*) FROM assessment_responses"},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.stmt).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("dashboard counts: %w", err)
		}
	}
	return &c, nil
}

func (s *SQLiteStore) AssessmentStats(ctx context.Context) ([]models.AssessmentStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.title, COALESCE(c.name, ''), COALESCE(u.name, ''), a.is_active, a.is_self_assessment, a.deadline, a.created_at,
		       (SELECT COUNT(*) FROM invitations i WHERE i.assessment_id = a.id),
		       (SELECT COUNT(*) FROM assessment_responses r WHERE r.assessment_id = a.id)
		  FROM assessments a
		  LEFT JOIN companies c ON c.id = a.company_id
		  LEFT JOIN users u ON u.id = a.creator_id
		 WHERE a.is_system = 0
		 ORDER BY a.created_at DESC, a.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("assessment stats: %w", err)
	}
	defer rows.Close()
	var out []models.AssessmentStat
	for rows.Next() {
		var (
			st       models.AssessmentStat
			active   int64
			self     int64
			deadline sql.NullString
			created  string
		)
		if err := rows.Scan(&st.AssessmentID, &st.Title, &st.CompanyName, &st.CreatorName, &active, &self, &deadline, &created,
			&st.Invitations, &st.Responses); err != nil {
			return nil, err
		}
		st.IsActive = active != 0
		st.IsSelf = self != 0
		st.Deadline = fromNullTime(deadline)
		st.CreatedAt = parseTime(created)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UserActivity(ctx context.Context) ([]models.UserActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.role, COALESCE(c.name, ''),
		       (SELECT COUNT(*) FROM assessments a WHERE a.creator_id = u.id AND a.is_system = 0),
		       (SELECT COUNT(*) FROM assessment_responses r WHERE r.user_id = u.id),
		       (SELECT COUNT(*) FROM invitations i WHERE i.sender_id = u.id)
		  FROM users u
		  LEFT JOIN companies c ON c.id = u.company_id
		 WHERE u.is_system = 0
		 ORDER BY u.name ASC, u.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("user activity: %w", err)
	}
	defer rows.Close()
	var out []models.UserActivity
	for rows.Next() {
		var (
			a    models.UserActivity
			role string
		)
		if err := rows.Scan(&a.UserID, &a.Name, &a.Email, &role, &a.CompanyName, &a.AssessmentsCreated, &a.Responses, &a.InvitationsSent); err != nil {
			return nil, err
		}
		a.Role = models.Role(role)
		out = append(out, a)
	}
	return out, rows.Err()
}

// OverdueAssessments returns active non-system assessments whose deadline is before now.
func (s *SQLiteStore) OverdueAssessments(ctx context.Context, now time.Time) ([]*models.Assessment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+assessmentColumns+" FROM assessments WHERE is_system = 0 AND is_active = 1 AND deadline IS NOT NULL AND deadline < ? ORDER BY deadline ASC",
		formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("overdue assessments: %w", err)
	}
	defer rows.Close()
	var out []*models.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
