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

func (s *SQLiteStore) CreateVerification(ctx context.Context, v *models.EmailVerification) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO email_verifications (user_id, email, code, login_token, created_at, expires_at, is_used)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		toNullID(v.UserID), strings.ToLower(v.Email), v.Code, v.LoginToken, formatTime(v.CreatedAt), formatTime(v.ExpiresAt))
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("insert verification: %w", err)
	}
	v.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) GetVerificationByToken(ctx context.Context, token string) (*models.EmailVerification, error) {
	var (
		v                models.EmailVerification
		user             sql.NullInt64
		created, expires string
		used             int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, email, code, login_token, created_at, expires_at, is_used FROM email_verifications WHERE login_token = ?",
		token).Scan(&v.ID, &user, &v.Email, &v.Code, &v.LoginToken, &created, &expires, &used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load verification: %w", err)
	}
	v.UserID = user.Int64
	v.CreatedAt = parseTime(created)
	v.ExpiresAt = parseTime(expires)
	v.IsUsed = used != 0
	return &v, nil
}

// ConsumeVerification marks the verification used if it is still unused and
// unexpired at now. It reports false when another request got there first.
func (s *SQLiteStore) ConsumeVerification(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE email_verifications SET is_used = 1 WHERE id = ? AND is_used = 0 AND expires_at > ?",
		id, formatTime(now))
	if err != nil {
		return false, fmt.Errorf("consume verification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AttachVerificationUser links a consumed verification to the user it created.
func (s *SQLiteStore) AttachVerificationUser(ctx context.Context, id, userID int64) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE email_verifications SET user_id = ? WHERE id = ?", userID, id); err != nil {
		return fmt.Errorf("attach verification user: %w", err)
	}
	return nil
}
