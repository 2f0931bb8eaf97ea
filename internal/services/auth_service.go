package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	m360mail "github.com/soaringjerry/modern360/internal/mail"
	"github.com/soaringjerry/modern360/internal/metrics"
	"github.com/soaringjerry/modern360/internal/models"
)

// DefaultCodeTTL is how long a login code and its direct link stay usable.
const DefaultCodeTTL = 15 * time.Minute

type AuthStore interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
	CreateVerification(ctx context.Context, v *models.EmailVerification) error
	GetVerificationByToken(ctx context.Context, token string) (*models.EmailVerification, error)
	ConsumeVerification(ctx context.Context, id int64, now time.Time) (bool, error)
	AttachVerificationUser(ctx context.Context, id, userID int64) error
}

// TokenSigner issues a session token for subject.
type TokenSigner func(subject string, ttl time.Duration) (string, error)

type AuthService struct {
	store     AuthStore
	mailer    m360mail.Mailer
	logger    *zap.Logger
	metrics   *metrics.Metrics
	baseURL   string
	now       func() time.Time
	newToken  func() (string, error)
	newCode   func() (string, error)
	signToken TokenSigner
	codeTTL   time.Duration
	tokenTTL  time.Duration
}

type AuthOptions struct {
	BaseURL  string
	CodeTTL  time.Duration
	TokenTTL time.Duration
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// LoginChallenge is returned after a code has been issued.
type LoginChallenge struct {
	LoginToken string    `json:"login_token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func NewAuthService(store AuthStore, mailer m360mail.Mailer, signer TokenSigner, opts AuthOptions) *AuthService {
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = DefaultCodeTTL
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 7 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &AuthService{
		store:     store,
		mailer:    mailer,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		now:       func() time.Time { return time.Now().UTC() },
		newToken:  func() (string, error) { return generateToken(inviteTokenBytes) },
		newCode:   generateCode,
		signToken: signer,
		codeTTL:   opts.CodeTTL,
		tokenTTL:  opts.TokenTTL,
	}
}

// StartLogin issues a one-time code for email and mails it together with a
// direct login link.
func (s *AuthService) StartLogin(ctx context.Context, email string) (*LoginChallenge, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.IsActive {
		return nil, NewForbiddenError("Account is disabled")
	}
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}
	token, err := s.newToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	v := &models.EmailVerification{
		Email:      email,
		Code:       code,
		LoginToken: token,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.codeTTL),
	}
	if existing != nil {
		v.UserID = existing.ID
	}
	if err := s.store.CreateVerification(ctx, v); err != nil {
		return nil, err
	}
	msg, err := m360mail.Verification(email, code, s.baseURL+"/verify/"+token, s.baseURL+"/auth/direct/"+token, s.codeTTL)
	if err != nil {
		return nil, err
	}
	err = s.send(ctx, msg)
	s.metrics.Login("start", err)
	if err != nil {
		s.logger.Warn("verification email failed", zap.String("email", email), zap.Error(err))
		return nil, NewBadGatewayError("Failed to send verification email")
	}
	return &LoginChallenge{LoginToken: token, ExpiresAt: v.ExpiresAt}, nil
}

// CheckLoginToken reports whether the verification behind token can still be
// redeemed.
func (s *AuthService) CheckLoginToken(ctx context.Context, token string) (*models.EmailVerification, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, NewNotFoundError("Invalid verification link")
	}
	v, err := s.store.GetVerificationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, NewNotFoundError("Invalid verification link")
	}
	if !v.Usable(s.now()) {
		return nil, NewInvalidError("Verification code has expired or was already used")
	}
	return v, nil
}

// VerifyCode redeems token with the code the user typed in.
func (s *AuthService) VerifyCode(ctx context.Context, token, code string) (*LoginResult, error) {
	v, err := s.CheckLoginToken(ctx, token)
	if err != nil {
		s.metrics.Login("code", err)
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" || subtle.ConstantTimeCompare([]byte(code), []byte(v.Code)) != 1 {
		err := NewInvalidError("Invalid verification code")
		s.metrics.Login("code", err)
		return nil, err
	}
	res, err := s.completeLogin(ctx, v)
	s.metrics.Login("code", err)
	return res, err
}

// DirectLogin redeems token without a code, as sent in the email link.
func (s *AuthService) DirectLogin(ctx context.Context, token string) (*LoginResult, error) {
	v, err := s.CheckLoginToken(ctx, token)
	if err != nil {
		s.metrics.Login("link", err)
		return nil, err
	}
	res, err := s.completeLogin(ctx, v)
	s.metrics.Login("link", err)
	return res, err
}

func (s *AuthService) completeLogin(ctx context.Context, v *models.EmailVerification) (*LoginResult, error) {
	now := s.now()
	ok, err := s.store.ConsumeVerification(ctx, v.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewInvalidError("Verification code has expired or was already used")
	}
	user, err := s.findOrCreateUser(ctx, v.Email, now)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, NewForbiddenError("Account is disabled")
	}
	if v.UserID == 0 {
		if err := s.store.AttachVerificationUser(ctx, v.ID, user.ID); err != nil {
			s.logger.Warn("attach verification user", zap.Int64("verification_id", v.ID), zap.Error(err))
		}
	}
	if err := s.store.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(strconv.FormatInt(user.ID, 10), s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: now.Add(s.tokenTTL), User: user}, nil
}

func (s *AuthService) findOrCreateUser(ctx context.Context, email string, now time.Time) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil || user != nil {
		return user, err
	}
	user = &models.User{
		Email:     email,
		Name:      nameFromEmail(email),
		Role:      models.RoleUser,
		IsActive:  true,
		CreatedAt: now,
	}
	err = s.store.CreateUser(ctx, user)
	if errors.Is(err, models.ErrDuplicate) {
		// A concurrent first login created the row.
		return s.store.GetUserByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created on first login", zap.Int64("user_id", user.ID), zap.String("email", email))
	return user, nil
}

// ResolveSession reloads the session subject; missing and inactive users are
// rejected.
func (s *AuthService) ResolveSession(ctx context.Context, subject string) (*models.User, error) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, NewUnauthorizedError("invalid session")
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, NewUnauthorizedError("invalid session")
	}
	return user, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}

func (s *AuthService) send(ctx context.Context, msg m360mail.Message) error {
	if s.mailer == nil {
		return errors.New("mailer not configured")
	}
	return s.mailer.Send(ctx, msg)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", NewInvalidError("Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", NewInvalidError("Invalid email address: " + raw)
	}
	return email, nil
}

// nameFromEmail title-cases the local part: "john.doe" becomes "John.Doe".
func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	prevLetter := false
	for _, r := range local {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
