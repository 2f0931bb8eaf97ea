package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/soaringjerry/modern360/internal/models"
)

// deleteResponsesWhere removes responses matching cond along with their projections.
func deleteResponsesWhere(ctx context.Context, q querier, cond string, args ...any) error {
	if _, err := q.ExecContext(ctx,
		"DELETE FROM response_details WHERE assessment_response_id IN (SELECT id FROM assessment_responses WHERE "+cond+")",
		args...); err != nil {
		return fmt.Errorf("delete response details: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM assessment_responses WHERE "+cond, args...); err != nil {
		return fmt.Errorf("delete responses: %w", err)
	}
	return nil
}

// purgeAssessment deletes an assessment and everything hanging off it.
func purgeAssessment(ctx context.Context, q querier, id int64) error {
	if err := deleteResponsesWhere(ctx, q, "assessment_id = ?", id); err != nil {
		return err
	}
	// Stray projections whose response row belongs elsewhere still point here.
	steps := []struct{ what, stmt string }{
		{"response details", "DELETE FROM response_details WHERE assessment_id = ?"},
		{"invitations", "DELETE FROM invitations WHERE assessment_id = ?"},
		{"participants", "DELETE FROM assessment_participants WHERE assessment_id = ?"},
		{"questions", "DELETE FROM questions WHERE assessment_id = ?"},
		{"assessment", "DELETE FROM assessments WHERE id = ?"},
	}
	for _, st := range steps {
		if _, err := q.ExecContext(ctx, st.stmt, id); err != nil {
			return fmt.Errorf("delete %s: %w", st.what, err)
		}
	}
	return nil
}

// DeleteAssessmentCascade removes a non-system assessment with its responses,
// projections, participants, invitations and questions.
func (s *SQLiteStore) DeleteAssessmentCascade(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		a, err := scanAssessment(tx.QueryRowContext(ctx, "SELECT "+assessmentColumns+" FROM assessments WHERE id = ?", id))
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}
		if a.IsSystem {
			return models.ErrProtected
		}
		return purgeAssessment(ctx, tx, id)
	})
}

// DeleteCompanyCascade removes a company that owns no non-system users or
// assessments. System records still pointing at it move to the system company.
func (s *SQLiteStore) DeleteCompanyCascade(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := scanCompany(tx.QueryRowContext(ctx, "SELECT "+companyColumns+" FROM companies WHERE id = ?", id))
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}
		if c.IsSystem {
			return models.ErrProtected
		}
		var dep models.DependentsError
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE company_id = ? AND is_system = 0", id).Scan(&dep.Users); err != nil {
			return fmt.Errorf("count company users: %w", err)
		}
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM assessments WHERE company_id = ? AND is_system = 0", id).Scan(&dep.Assessments); err != nil {
			return fmt.Errorf("count company assessments: %w", err)
		}
		if dep.Users > 0 || dep.Assessments > 0 {
			return &dep
		}
		var target sql.NullInt64
		err = tx.QueryRowContext(ctx, "SELECT id FROM companies WHERE is_system = 1 AND id != ? ORDER BY id LIMIT 1", id).Scan(&target)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find system company: %w", err)
		}
		for _, table := range []string{"users", "assessments"} {
			if _, err := tx.ExecContext(ctx, "UPDATE "+table+" SET company_id = ? WHERE company_id = ?", target, id); err != nil {
				return fmt.Errorf("reassign %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM companies WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete company: %w", err)
		}
		return nil
	})
}

// DeleteUserCascade removes a non-system user and every record that
// references it. A template assessment owned by the user moves to another
// system user, or is purged when none exists.
func (s *SQLiteStore) DeleteUserCascade(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := scanUser(tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}
		if u.IsSystem {
			return models.ErrProtected
		}

		if err := deleteResponsesWhere(ctx, tx, "user_id = ?", id); err != nil {
			return err
		}

		// Invitations the user sent, and whatever was submitted through them.
		if err := deleteResponsesWhere(ctx, tx, "invitation_id IN (SELECT id FROM invitations WHERE sender_id = ?)", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM invitations WHERE sender_id = ?", id); err != nil {
			return fmt.Errorf("delete sent invitations: %w", err)
		}

		// Participant rows naming the user on either side.
		const mine = "SELECT id FROM assessment_participants WHERE assessee_id = ? OR assessor_id = ?"
		if err := deleteResponsesWhere(ctx, tx, "participant_id IN ("+mine+")", id, id); err != nil {
			return err
		}
		if err := deleteResponsesWhere(ctx, tx, "invitation_id IN (SELECT id FROM invitations WHERE participant_id IN ("+mine+"))", id, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM invitations WHERE participant_id IN ("+mine+")", id, id); err != nil {
			return fmt.Errorf("delete participant invitations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM assessment_participants WHERE assessee_id = ? OR assessor_id = ?", id, id); err != nil {
			return fmt.Errorf("delete participants: %w", err)
		}

		templates, err := assessmentIDs(ctx, tx, "creator_id = ? AND is_system = 1", id)
		if err != nil {
			return err
		}
		if len(templates) > 0 {
			var heir sql.NullInt64
			err := tx.QueryRowContext(ctx, "SELECT id FROM users WHERE is_system = 1 AND id != ? ORDER BY id LIMIT 1", id).Scan(&heir)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("find system user: %w", err)
			}
			for _, tid := range templates {
				if heir.Valid {
					if _, err := tx.ExecContext(ctx, "UPDATE assessments SET creator_id = ? WHERE id = ?", heir.Int64, tid); err != nil {
						return fmt.Errorf("reassign template: %w", err)
					}
					continue
				}
				if err := purgeAssessment(ctx, tx, tid); err != nil {
					return err
				}
			}
		}

		owned, err := assessmentIDs(ctx, tx, "creator_id = ? AND is_system = 0", id)
		if err != nil {
			return err
		}
		for _, aid := range owned {
			if err := purgeAssessment(ctx, tx, aid); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM email_verifications WHERE user_id = ?", id); err != nil {
			return fmt.Errorf("delete verifications: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

func assessmentIDs(ctx context.Context, q querier, cond string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT id FROM assessments WHERE "+cond+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("select assessments: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
