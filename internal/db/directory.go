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

const companyColumns = "id, name, description, is_active, is_system, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(r rowScanner) (*models.Company, error) {
	var (
		c           models.Company
		desc        sql.NullString
		active, sys int64
		created     string
	)
	if err := r.Scan(&c.ID, &c.Name, &desc, &active, &sys, &created); err != nil {
		return nil, err
	}
	c.Description = desc.String
	c.IsActive = active != 0
	c.IsSystem = sys != 0
	c.CreatedAt = parseTime(created)
	return &c, nil
}

func (s *SQLiteStore) CreateCompany(ctx context.Context, c *models.Company) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO companies (name, description, is_active, is_system, created_at) VALUES (?, ?, ?, ?, ?)",
		c.Name, toNullString(c.Description), boolToInt64(c.IsActive), boolToInt64(c.IsSystem), formatTime(c.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("insert company: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id int64) (*models.Company, error) {
	c, err := scanCompany(s.db.QueryRowContext(ctx, "SELECT "+companyColumns+" FROM companies WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) GetCompanyByName(ctx context.Context, name string) (*models.Company, error) {
	c, err := scanCompany(s.db.QueryRowContext(ctx, "SELECT "+companyColumns+" FROM companies WHERE name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) UpdateCompany(ctx context.Context, c *models.Company) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE companies SET name = ?, description = ?, is_active = ? WHERE id = ? AND is_system = 0",
		c.Name, toNullString(c.Description), boolToInt64(c.IsActive), c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("update company: %w", err)
	}
	return requireRow(res)
}

// ListCompanies returns non-system companies ordered by name.
func (s *SQLiteStore) ListCompanies(ctx context.Context, page models.Page) ([]*models.Company, int, error) {
	page = page.Normalize()
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM companies WHERE is_system = 0").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count companies: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+companyColumns+" FROM companies WHERE is_system = 0 ORDER BY name ASC LIMIT ? OFFSET ?",
		page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()
	var out []*models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// AllCompanies returns every non-system company for selection lists.
func (s *SQLiteStore) AllCompanies(ctx context.Context) ([]*models.Company, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+companyColumns+" FROM companies WHERE is_system = 0 ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()
	var out []*models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const userColumns = "id, email, name, role, company_id, is_active, is_system, created_at, last_login"

func scanUser(r rowScanner) (*models.User, error) {
	var (
		u           models.User
		role        string
		company     sql.NullInt64
		active, sys int64
		created     string
		lastLogin   sql.NullString
	)
	if err := r.Scan(&u.ID, &u.Email, &u.Name, &role, &company, &active, &sys, &created, &lastLogin); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.CompanyID = company.Int64
	u.IsActive = active != 0
	u.IsSystem = sys != 0
	u.CreatedAt = parseTime(created)
	u.LastLogin = fromNullTime(lastLogin)
	return &u, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, name, role, company_id, is_active, is_system, created_at, last_login)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.ToLower(u.Email), u.Name, string(u.Role), toNullID(u.CompanyID), boolToInt64(u.IsActive),
		boolToInt64(u.IsSystem), formatTime(u.CreatedAt), toNullTime(u.LastLogin))
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?",
		strings.ToLower(strings.TrimSpace(email))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, u *models.User) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET email = ?, name = ?, role = ?, company_id = ?, is_active = ? WHERE id = ? AND is_system = 0",
		strings.ToLower(u.Email), u.Name, string(u.Role), toNullID(u.CompanyID), boolToInt64(u.IsActive), u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicate
		}
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE users SET last_login = ? WHERE id = ?", formatTime(at), userID)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// ListUsers returns non-system users, newest first.
func (s *SQLiteStore) ListUsers(ctx context.Context, f models.UserFilter) ([]*models.User, int, error) {
	where := []string{"is_system = 0"}
	var args []any
	if f.CompanyID != 0 {
		where = append(where, "company_id = ?")
		args = append(args, f.CompanyID)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		where = append(where, "(email LIKE ? OR name LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	cond := strings.Join(where, " AND ")
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	page := f.Page.Normalize()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+cond+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

const assessmentColumns = "id, title, description, creator_id, company_id, deadline, is_active, is_self_assessment, is_system, created_at"

func scanAssessment(r rowScanner) (*models.Assessment, error) {
	var (
		a                 models.Assessment
		desc, deadline    sql.NullString
		company           sql.NullInt64
		active, self, sys int64
		created           string
	)
	if err := r.Scan(&a.ID, &a.Title, &desc, &a.CreatorID, &company, &deadline, &active, &self, &sys, &created); err != nil {
		return nil, err
	}
	a.Description = desc.String
	a.CompanyID = company.Int64
	a.Deadline = fromNullTime(deadline)
	a.IsActive = active != 0
	a.IsSelfAssessment = self != 0
	a.IsSystem = sys != 0
	a.CreatedAt = parseTime(created)
	return &a, nil
}

func insertAssessment(ctx context.Context, q querier, a *models.Assessment) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO assessments (title, description, creator_id, company_id, deadline, is_active, is_self_assessment, is_system, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Title, toNullString(a.Description), a.CreatorID, toNullID(a.CompanyID), toNullTime(a.Deadline),
		boolToInt64(a.IsActive), boolToInt64(a.IsSelfAssessment), boolToInt64(a.IsSystem), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

func insertQuestions(ctx context.Context, q querier, assessmentID int64, qs []*models.Question) error {
	for _, qu := range qs {
		opts, err := encodeJSON(nilIfEmpty(qu.Options))
		if err != nil {
			return fmt.Errorf("encode question options: %w", err)
		}
		res, err := q.ExecContext(ctx,
			"INSERT INTO questions (assessment_id, text, group_name, question_type, position, options) VALUES (?, ?, ?, ?, ?, ?)",
			assessmentID, qu.Text, toNullString(qu.Group), string(qu.Type), qu.Position, opts)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		qu.AssessmentID = assessmentID
		if qu.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func nilIfEmpty(v []string) any {
	if len(v) == 0 {
		return nil
	}
	return v
}

// CreateAssessment inserts the assessment together with its question set and
// an optional initial roster, all or nothing.
func (s *SQLiteStore) CreateAssessment(ctx context.Context, a *models.Assessment, questions []*models.Question, roster []*models.Participant) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertAssessment(ctx, tx, a); err != nil {
			return err
		}
		if err := insertQuestions(ctx, tx, a.ID, questions); err != nil {
			return err
		}
		for _, p := range roster {
			p.AssessmentID = a.ID
		}
		return insertParticipants(ctx, tx, roster)
	})
}

func (s *SQLiteStore) GetAssessment(ctx context.Context, id int64) (*models.Assessment, error) {
	a, err := scanAssessment(s.db.QueryRowContext(ctx, "SELECT "+assessmentColumns+" FROM assessments WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) UpdateAssessment(ctx context.Context, a *models.Assessment) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assessments SET title = ?, description = ?, company_id = ?, deadline = ?, is_active = ?, is_self_assessment = ?
		 WHERE id = ? AND is_system = 0`,
		a.Title, toNullString(a.Description), toNullID(a.CompanyID), toNullTime(a.Deadline),
		boolToInt64(a.IsActive), boolToInt64(a.IsSelfAssessment), a.ID)
	if err != nil {
		return fmt.Errorf("update assessment: %w", err)
	}
	return requireRow(res)
}

// ListAssessments returns non-system assessments, newest first.
func (s *SQLiteStore) ListAssessments(ctx context.Context, f models.AssessmentFilter) ([]*models.Assessment, int, error) {
	where := []string{"is_system = 0"}
	var args []any
	if f.CompanyID != 0 {
		where = append(where, "company_id = ?")
		args = append(args, f.CompanyID)
	}
	if f.CreatorID != 0 {
		where = append(where, "creator_id = ?")
		args = append(args, f.CreatorID)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		where = append(where, "title LIKE ?")
		args = append(args, "%"+q+"%")
	}
	cond := strings.Join(where, " AND ")
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assessments WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assessments: %w", err)
	}
	page := f.Page.Normalize()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+assessmentColumns+" FROM assessments WHERE "+cond+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()
	var out []*models.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// ListAssessmentsForAssessor returns assessments where userID holds an assessor row.
func (s *SQLiteStore) ListAssessmentsForAssessor(ctx context.Context, userID int64) ([]*models.Assessment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT a.id, a.title, a.description, a.creator_id, a.company_id, a.deadline, a.is_active,
		        a.is_self_assessment, a.is_system, a.created_at
		   FROM assessments a
		   JOIN assessment_participants p ON p.assessment_id = a.id
		  WHERE p.role = 'assessor' AND p.assessor_id = ? AND a.is_system = 0
		  ORDER BY a.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list assessor assessments: %w", err)
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

func (s *SQLiteStore) ListQuestions(ctx context.Context, assessmentID int64) ([]*models.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, assessment_id, text, group_name, question_type, position, options FROM questions WHERE assessment_id = ? ORDER BY position ASC, id ASC",
		assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	var out []*models.Question
	for rows.Next() {
		var (
			q     models.Question
			group sql.NullString
			typ   string
			opts  sql.NullString
		)
		if err := rows.Scan(&q.ID, &q.AssessmentID, &q.Text, &group, &typ, &q.Position, &opts); err != nil {
			return nil, err
		}
		q.Group = group.String
		q.Type = models.QuestionType(typ)
		q.Options = s.decodeStringSlice(opts)
		out = append(out, &q)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
