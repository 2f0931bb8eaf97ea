package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/soaringjerry/modern360/internal/models"
)

func systemRecords(ctx context.Context, q querier) (*models.SystemRecords, error) {
	rec := &models.SystemRecords{}
	c, err := scanCompany(q.QueryRowContext(ctx, "SELECT "+companyColumns+" FROM companies WHERE is_system = 1 ORDER BY id LIMIT 1"))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load system company: %w", err)
	}
	rec.Company = c
	u, err := scanUser(q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE is_system = 1 ORDER BY id LIMIT 1"))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load system user: %w", err)
	}
	rec.User = u
	a, err := scanAssessment(q.QueryRowContext(ctx, "SELECT "+assessmentColumns+" FROM assessments WHERE is_system = 1 ORDER BY id LIMIT 1"))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load template assessment: %w", err)
	}
	rec.Template = a
	return rec, nil
}

// SystemRecords loads the template records; missing ones are nil.
func (s *SQLiteStore) SystemRecords(ctx context.Context) (*models.SystemRecords, error) {
	return systemRecords(ctx, s.db)
}

// EnsureSystemRecords creates whichever of want's records are missing and
// seeds the template with questions when it has none. Existing records are
// left untouched.
func (s *SQLiteStore) EnsureSystemRecords(ctx context.Context, want *models.SystemRecords, questions []*models.Question) (*models.SystemRecords, error) {
	var out *models.SystemRecords
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := systemRecords(ctx, tx)
		if err != nil {
			return err
		}
		if rec.Company == nil {
			c := *want.Company
			c.IsSystem = true
			res, err := tx.ExecContext(ctx,
				"INSERT INTO companies (name, description, is_active, is_system, created_at) VALUES (?, ?, ?, 1, ?)",
				c.Name, toNullString(c.Description), boolToInt64(c.IsActive), formatTime(c.CreatedAt))
			if err != nil {
				return fmt.Errorf("insert system company: %w", err)
			}
			if c.ID, err = res.LastInsertId(); err != nil {
				return err
			}
			rec.Company = &c
		}
		if rec.User == nil {
			u := *want.User
			u.IsSystem = true
			u.CompanyID = rec.Company.ID
			res, err := tx.ExecContext(ctx,
				"INSERT INTO users (email, name, role, company_id, is_active, is_system, created_at) VALUES (?, ?, ?, ?, ?, 1, ?)",
				u.Email, u.Name, string(u.Role), u.CompanyID, boolToInt64(u.IsActive), formatTime(u.CreatedAt))
			if err != nil {
				return fmt.Errorf("insert system user: %w", err)
			}
			if u.ID, err = res.LastInsertId(); err != nil {
				return err
			}
			rec.User = &u
		}
		if rec.Template == nil {
			a := *want.Template
			a.IsSystem = true
			a.CreatorID = rec.User.ID
			a.CompanyID = rec.Company.ID
			if err := insertAssessment(ctx, tx, &a); err != nil {
				return err
			}
			rec.Template = &a
		}
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM questions WHERE assessment_id = ?", rec.Template.ID).Scan(&n); err != nil {
			return fmt.Errorf("count template questions: %w", err)
		}
		if n == 0 {
			if err := insertQuestions(ctx, tx, rec.Template.ID, questions); err != nil {
				return err
			}
		}
		out = rec
		return nil
	})
	return out, err
}
