package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/soaringjerry/modern360/internal/utils"
)

// Scope separates user sessions from admin sessions signed with the same key.
type Scope string

const (
	ScopeUser  Scope = "user"
	ScopeAdmin Scope = "admin"
)

const principalKey = "m360.principal"

// Claims carry only the subject (user id or admin name); the principal is
// reloaded on every request.
type Claims struct {
	Scope Scope `json:"scope"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 session tokens for one scope.
type Signer struct {
	secret []byte
	scope  Scope
	now    func() time.Time
}

func NewSigner(secret string, scope Scope) (*Signer, error) {
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 characters")
	}
	return &Signer{secret: []byte(secret), scope: scope, now: time.Now}, nil
}

// Sign matches services.TokenSigner.
func (s *Signer) Sign(subject string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Scope: s.scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Signer) Parse(tok string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}
	if c.Scope != s.scope {
		return nil, fmt.Errorf("token scope %q not accepted", c.Scope)
	}
	if c.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return c, nil
}

// Resolver loads the principal behind a session subject. Returned errors are
// passed to the echo error handler unchanged.
type Resolver[T any] func(ctx context.Context, subject string) (T, error)

// RequireSession accepts the session cookie or an Authorization bearer token.
func RequireSession[T any](signer *Signer, cookieName string, resolve Resolver[T]) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok := sessionToken(c, cookieName)
			if tok == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, utils.T(LocaleFrom(c), "auth.required"))
			}
			claims, err := signer.Parse(tok)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, utils.T(LocaleFrom(c), "auth.invalid_session"))
			}
			p, err := resolve(c.Request().Context(), claims.Subject)
			if err != nil {
				return err
			}
			c.Set(principalKey, p)
			return next(c)
		}
	}
}

// Principal returns what RequireSession resolved for this request.
func Principal[T any](c echo.Context) (T, bool) {
	v, ok := c.Get(principalKey).(T)
	return v, ok
}

func sessionToken(c echo.Context, cookieName string) string {
	if ck, err := c.Cookie(cookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func SetSessionCookie(c echo.Context, name, token string, expires time.Time, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(c echo.Context, name string, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
