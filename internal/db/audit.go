package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/soaringjerry/modern360/internal/models"
	"go.uber.org/zap"
)

// AddAudit appends an audit entry. Failures are logged, never returned.
func (s *SQLiteStore) AddAudit(ctx context.Context, e models.AuditEntry) {
	_, err := s.db.ExecContext(ctx, "INSERT INTO audit_log (time, actor, action, target, note) VALUES (?, ?, ?, ?, ?)",
		formatTime(e.Time), e.Actor, e.Action, toNullString(e.Target), toNullString(e.Note))
	if err != nil {
		s.logger.Warn("sqlite store: add audit", zap.String("action", e.Action), zap.Error(err))
	}
}

// ListAudit returns the newest entries first.
func (s *SQLiteStore) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, "SELECT time, actor, action, target, note FROM audit_log ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()
	var out []models.AuditEntry
	for rows.Next() {
		var (
			e            models.AuditEntry
			at           string
			target, note sql.NullString
		)
		if err := rows.Scan(&at, &e.Actor, &e.Action, &target, &note); err != nil {
			return nil, err
		}
		e.Time = parseTime(at)
		e.Target = target.String
		e.Note = note.String
		out = append(out, e)
	}
	return out, rows.Err()
}
