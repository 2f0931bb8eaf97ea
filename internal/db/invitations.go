package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soaringjerry/modern360/internal/models"
)

const invitationColumns = "id, assessment_id, participant_id, sender_id, email, token, sent_at, responded_at, is_completed, reminders_sent, last_reminded_at"

func scanInvitation(r rowScanner) (*models.Invitation, error) {
	var (
		inv               models.Invitation
		participant       sql.NullInt64
		sent              string
		responded, remind sql.NullString
		completed         int64
	)
	if err := r.Scan(&inv.ID, &inv.AssessmentID, &participant, &inv.SenderID, &inv.Email, &inv.Token, &sent,
		&responded, &completed, &inv.RemindersSent, &remind); err != nil {
		return nil, err
	}
	inv.ParticipantID = participant.Int64
	inv.SentAt = parseTime(sent)
	inv.RespondedAt = fromNullTime(responded)
	inv.IsCompleted = completed != 0
	inv.LastRemindedAt = fromNullTime(remind)
	return &inv, nil
}

// CreateInvitations inserts all invitations in one transaction.
func (s *SQLiteStore) CreateInvitations(ctx context.Context, invs []*models.Invitation) error {
	if len(invs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, inv := range invs {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO invitations (assessment_id, participant_id, sender_id, email, token, sent_at, is_completed, reminders_sent)
				 VALUES (?, ?, ?, ?, ?, ?, 0, 0)`,
				inv.AssessmentID, toNullID(inv.ParticipantID), inv.SenderID, strings.ToLower(inv.Email), inv.Token, formatTime(inv.SentAt))
			if err != nil {
				if isUniqueViolation(err) {
					return models.ErrDuplicate
				}
				return fmt.Errorf("insert invitation: %w", err)
			}
			if inv.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetInvitation(ctx context.Context, id int64) (*models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, "SELECT "+invitationColumns+" FROM invitations WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inv, err
}

// GetInvitationByToken matches the token exactly.
func (s *SQLiteStore) GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, "SELECT "+invitationColumns+" FROM invitations WHERE token = ?", token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inv, err
}

// InvitedEmails returns the lower-cased emails already invited to the assessment.
func (s *SQLiteStore) InvitedEmails(ctx context.Context, assessmentID int64) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT email FROM invitations WHERE assessment_id = ?", assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list invited emails: %w", err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out[strings.ToLower(email)] = true
	}
	return out, rows.Err()
}

// PendingParticipantInvitations returns participant ids of the assessment
// that already hold an uncompleted invitation.
func (s *SQLiteStore) PendingParticipantInvitations(ctx context.Context, assessmentID int64) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT participant_id FROM invitations WHERE assessment_id = ? AND participant_id IS NOT NULL AND is_completed = 0",
		assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list pending participant invitations: %w", err)
	}
	defer rows.Close()
	out := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// ListInvitations returns invitations newest first. A zero assessmentID lists
// across all assessments; pendingOnly drops completed ones.
func (s *SQLiteStore) ListInvitations(ctx context.Context, assessmentID int64, pendingOnly bool, page models.Page) ([]*models.Invitation, int, error) {
	where := []string{"1 = 1"}
	var args []any
	if assessmentID != 0 {
		where = append(where, "assessment_id = ?")
		args = append(args, assessmentID)
	}
	if pendingOnly {
		where = append(where, "is_completed = 0")
	}
	cond := strings.Join(where, " AND ")
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM invitations WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invitations: %w", err)
	}
	page = page.Normalize()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+invitationColumns+" FROM invitations WHERE "+cond+" ORDER BY sent_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()
	var out []*models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

// MarkReminded records a reminder dispatch on a pending invitation.
func (s *SQLiteStore) MarkReminded(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE invitations SET reminders_sent = reminders_sent + 1, last_reminded_at = ? WHERE id = ? AND is_completed = 0",
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	return requireRow(res)
}

// completeInvitation flips the invitation to completed only if it was still
// pending. Losing the race yields models.ErrAlreadyCompleted.
func completeInvitation(ctx context.Context, q querier, id int64, at time.Time) error {
	res, err := q.ExecContext(ctx,
		"UPDATE invitations SET is_completed = 1, responded_at = ? WHERE id = ? AND is_completed = 0",
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("complete invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrAlreadyCompleted
	}
	return nil
}
