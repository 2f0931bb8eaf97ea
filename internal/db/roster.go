package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soaringjerry/modern360/internal/models"
)

const participantColumns = "id, assessment_id, assessee_id, assessor_id, role, relationship, is_completed, completed_at, created_at"

func scanParticipant(r rowScanner) (*models.Participant, error) {
	var (
		p         models.Participant
		assessor  sql.NullInt64
		role      string
		rel       sql.NullString
		completed int64
		doneAt    sql.NullString
		created   string
	)
	if err := r.Scan(&p.ID, &p.AssessmentID, &p.AssesseeID, &assessor, &role, &rel, &completed, &doneAt, &created); err != nil {
		return nil, err
	}
	p.AssessorID = assessor.Int64
	p.Role = models.ParticipantRole(role)
	p.Relationship = rel.String
	p.Status = models.CompletionStatus{Completed: completed != 0, CompletedAt: fromNullTime(doneAt)}
	p.CreatedAt = parseTime(created)
	return &p, nil
}

// CreateRoster inserts every participant row or none. A second self row for
// the same assessee, or a repeated assessor, yields models.ErrDuplicate.
func (s *SQLiteStore) CreateRoster(ctx context.Context, rows []*models.Participant) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertParticipants(ctx, tx, rows)
	})
}

func insertParticipants(ctx context.Context, q querier, rows []*models.Participant) error {
	for _, p := range rows {
		res, err := q.ExecContext(ctx,
			`INSERT INTO assessment_participants (assessment_id, assessee_id, assessor_id, role, relationship, is_completed, created_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?)`,
			p.AssessmentID, p.AssesseeID, toNullID(p.AssessorID), string(p.Role), toNullString(p.Relationship), formatTime(p.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return models.ErrDuplicate
			}
			return fmt.Errorf("insert participant: %w", err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetParticipant(ctx context.Context, id int64) (*models.Participant, error) {
	p, err := scanParticipant(s.db.QueryRowContext(ctx, "SELECT "+participantColumns+" FROM assessment_participants WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// FindSelfParticipant returns the self row of assesseeID in the assessment, if any.
func (s *SQLiteStore) FindSelfParticipant(ctx context.Context, assessmentID, assesseeID int64) (*models.Participant, error) {
	p, err := scanParticipant(s.db.QueryRowContext(ctx,
		"SELECT "+participantColumns+" FROM assessment_participants WHERE assessment_id = ? AND assessee_id = ? AND role = 'self'",
		assessmentID, assesseeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) ListParticipants(ctx context.Context, assessmentID int64) ([]*models.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+participantColumns+" FROM assessment_participants WHERE assessment_id = ? ORDER BY role DESC, id ASC",
		assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	var out []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// markParticipantCompleted is conditional like completeInvitation: a row that
// is already completed yields models.ErrAlreadyCompleted.
func markParticipantCompleted(ctx context.Context, q querier, id int64, at time.Time) error {
	if id == 0 {
		return nil
	}
	res, err := q.ExecContext(ctx,
		"UPDATE assessment_participants SET is_completed = 1, completed_at = ? WHERE id = ? AND is_completed = 0",
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("complete participant: %w", err)
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
