package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/soaringjerry/modern360/internal/models"
)

var projectionColumns = func() map[string]bool {
	out := make(map[string]bool, models.ProjectionColumnCount)
	for i := 1; i <= models.ProjectionColumnCount; i++ {
		out[models.ProjectionColumn(i)] = true
	}
	return out
}()

const responseColumns = "id, assessment_id, user_id, invitation_id, participant_id, response_type, answers, submitted_at"

func (s *SQLiteStore) scanResponse(r rowScanner) (*models.Response, error) {
	var (
		resp                    models.Response
		user, inv, participant  sql.NullInt64
		typ, answers, submitted string
	)
	if err := r.Scan(&resp.ID, &resp.AssessmentID, &user, &inv, &participant, &typ, &answers, &submitted); err != nil {
		return nil, err
	}
	resp.UserID = user.Int64
	resp.InvitationID = inv.Int64
	resp.ParticipantID = participant.Int64
	resp.Type = models.ResponseType(typ)
	resp.Answers = s.decodeStringMap(answers)
	resp.SubmittedAt = parseTime(submitted)
	return &resp, nil
}

// RecordSubmission writes a submission atomically. The invitation flip is
// conditional and the response row is guarded by unique indexes, so a second
// submission for the same token or the same self-assessment returns
// models.ErrAlreadyCompleted with nothing written.
func (s *SQLiteStore) RecordSubmission(ctx context.Context, sub *models.Submission) error {
	if sub == nil || sub.Response == nil {
		return fmt.Errorf("submission requires a response")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		at := sub.Response.SubmittedAt
		if sub.InvitationID != 0 {
			if err := completeInvitation(ctx, tx, sub.InvitationID, at); err != nil {
				return err
			}
		}
		if err := insertResponse(ctx, tx, sub.Response); err != nil {
			return err
		}
		if sub.ParticipantID != 0 {
			if err := markParticipantCompleted(ctx, tx, sub.ParticipantID, at); err != nil {
				return err
			}
			// Any other outstanding link for this participant is now moot.
			if _, err := tx.ExecContext(ctx,
				"UPDATE invitations SET is_completed = 1, responded_at = ? WHERE participant_id = ? AND is_completed = 0",
				formatTime(at), sub.ParticipantID); err != nil {
				return fmt.Errorf("void participant invitations: %w", err)
			}
		}
		if sub.Detail != nil {
			sub.Detail.ResponseID = sub.Response.ID
			if err := insertDetail(ctx, tx, sub.Detail); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertResponse(ctx context.Context, q querier, r *models.Response) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO assessment_responses (assessment_id, user_id, invitation_id, participant_id, response_type, answers, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.AssessmentID, toNullID(r.UserID), toNullID(r.InvitationID), toNullID(r.ParticipantID), string(r.Type),
		string(answers), formatTime(r.SubmittedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrAlreadyCompleted
		}
		return fmt.Errorf("insert response: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

func insertDetail(ctx context.Context, q querier, d *models.ResponseDetail) error {
	cols := []string{"assessment_response_id", "assessment_id", "invitation_id", "user_id", "respondent_email", "assessment_title", "submitted_at"}
	args := []any{d.ResponseID, d.AssessmentID, toNullID(d.InvitationID), toNullID(d.UserID),
		toNullString(d.RespondentEmail), toNullString(d.AssessmentTitle), formatTime(d.SubmittedAt)}
	keys := make([]string, 0, len(d.Columns))
	for k := range d.Columns {
		if !projectionColumns[k] {
			return fmt.Errorf("unknown projection column %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cols = append(cols, k)
		args = append(args, d.Columns[k])
	}
	res, err := q.ExecContext(ctx,
		"INSERT INTO response_details ("+strings.Join(cols, ", ")+") VALUES ("+placeholders(len(cols))+")", args...)
	if err != nil {
		return fmt.Errorf("insert response detail: %w", err)
	}
	d.ID, err = res.LastInsertId()
	return err
}

// HasSessionResponse reports whether userID already submitted a response of
// the given type without an invitation.
func (s *SQLiteStore) HasSessionResponse(ctx context.Context, assessmentID, userID int64, typ models.ResponseType) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM assessment_responses WHERE assessment_id = ? AND user_id = ? AND response_type = ? AND invitation_id IS NULL",
		assessmentID, userID, string(typ)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check session response: %w", err)
	}
	return n > 0, nil
}

// ListResponses returns responses of one assessment, or of all when assessmentID is 0.
func (s *SQLiteStore) ListResponses(ctx context.Context, assessmentID int64) ([]*models.Response, error) {
	query := "SELECT " + responseColumns + " FROM assessment_responses"
	var args []any
	if assessmentID != 0 {
		query += " WHERE assessment_id = ?"
		args = append(args, assessmentID)
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY submitted_at DESC, id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()
	var out []*models.Response
	for rows.Next() {
		r, err := s.scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentResponsesForCreator returns the newest responses to assessments created by userID.
func (s *SQLiteStore) RecentResponsesForCreator(ctx context.Context, userID int64, limit int) ([]*models.Response, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.assessment_id, r.user_id, r.invitation_id, r.participant_id, r.response_type, r.answers, r.submitted_at
		   FROM assessment_responses r
		   JOIN assessments a ON a.id = r.assessment_id
		  WHERE a.creator_id = ?
		  ORDER BY r.submitted_at DESC, r.id DESC
		  LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent responses: %w", err)
	}
	defer rows.Close()
	var out []*models.Response
	for rows.Next() {
		r, err := s.scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListDetails returns projection rows of an assessment ordered by submission.
func (s *SQLiteStore) ListDetails(ctx context.Context, assessmentID int64) ([]*models.ResponseDetail, error) {
	qcols := make([]string, 0, models.ProjectionColumnCount)
	for i := 1; i <= models.ProjectionColumnCount; i++ {
		qcols = append(qcols, models.ProjectionColumn(i))
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assessment_response_id, assessment_id, invitation_id, user_id, respondent_email, assessment_title, submitted_at, `+
			strings.Join(qcols, ", ")+` FROM response_details WHERE assessment_id = ? ORDER BY submitted_at ASC, id ASC`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list response details: %w", err)
	}
	defer rows.Close()
	var out []*models.ResponseDetail
	for rows.Next() {
		var (
			d            models.ResponseDetail
			inv, user    sql.NullInt64
			email, title sql.NullString
			submitted    string
		)
		vals := make([]sql.NullString, models.ProjectionColumnCount)
		dest := []any{&d.ID, &d.ResponseID, &d.AssessmentID, &inv, &user, &email, &title, &submitted}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		d.InvitationID = inv.Int64
		d.UserID = user.Int64
		d.RespondentEmail = email.String
		d.AssessmentTitle = title.String
		d.SubmittedAt = parseTime(submitted)
		d.Columns = map[string]string{}
		for i, v := range vals {
			if v.Valid {
				d.Columns[qcols[i]] = v.String
			}
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// ReplaceDetails rewrites the projection rows of the given responses in one transaction.
func (s *SQLiteStore) ReplaceDetails(ctx context.Context, details []*models.ResponseDetail) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, d := range details {
			if _, err := tx.ExecContext(ctx, "DELETE FROM response_details WHERE assessment_response_id = ?", d.ResponseID); err != nil {
				return fmt.Errorf("delete response detail: %w", err)
			}
			if err := insertDetail(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
}
