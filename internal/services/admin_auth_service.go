package services

import (
	"crypto/subtle"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/soaringjerry/modern360/internal/metrics"
)

// AdminSubject is the session subject of the single configured operator.
const AdminSubject = "admin"

// AdminAuthService checks the operator credentials of the admin app.
type AdminAuthService struct {
	username  string
	passHash  []byte
	signToken TokenSigner
	tokenTTL  time.Duration
	metrics   *metrics.Metrics
}

// NewAdminAuthService accepts either a bcrypt hash or a plain password; the
// plain password is hashed once here.
func NewAdminAuthService(username, password, passwordHash string, signer TokenSigner, ttl time.Duration, m *metrics.Metrics) (*AdminAuthService, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, NewInvalidError("admin username required")
	}
	var hash []byte
	switch {
	case passwordHash != "":
		hash = []byte(passwordHash)
	case password != "":
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
	default:
		return nil, NewInvalidError("admin password required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AdminAuthService{username: username, passHash: hash, signToken: signer, tokenTTL: ttl, metrics: m}, nil
}

func (s *AdminAuthService) Login(username, password string) (*LoginResult, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, NewInvalidError("username/password required")
	}
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(s.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.passHash, []byte(password))
	if !userOK || passErr != nil {
		err := NewUnauthorizedError("Invalid credentials")
		s.metrics.Login("admin", err)
		return nil, err
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(AdminSubject, s.tokenTTL)
	s.metrics.Login("admin", err)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: time.Now().UTC().Add(s.tokenTTL)}, nil
}

// ResolveSession accepts only the admin subject.
func (s *AdminAuthService) ResolveSession(subject string) error {
	if subject != AdminSubject {
		return NewUnauthorizedError("invalid session")
	}
	return nil
}

func (s *AdminAuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
