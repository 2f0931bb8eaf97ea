package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/soaringjerry/modern360/internal/models"
)

func newTestAuth(store *stubStore, box *outbox) *AuthService {
	svc := NewAuthService(store, box, func(subject string, ttl time.Duration) (string, error) {
		return "session:" + subject, nil
	}, AuthOptions{BaseURL: "https://app.example.com/"})
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	svc.newCode = func() (string, error) { return "042137", nil }
	svc.newToken = func() (string, error) { return "login-token", nil }
	return svc
}

func TestAuthCodeLoginCreatesUser(t *testing.T) {
	store := newStubStore()
	box := &outbox{}
	svc := newTestAuth(store, box)
	ctx := context.Background()

	ch, err := svc.StartLogin(ctx, "  John.Doe@Example.com ")
	if err != nil {
		t.Fatalf("StartLogin returned error: %v", err)
	}
	if ch.LoginToken != "login-token" {
		t.Fatalf("login token = %q", ch.LoginToken)
	}
	if want := svc.now().Add(DefaultCodeTTL); !ch.ExpiresAt.Equal(want) {
		t.Fatalf("expires at = %v, want %v", ch.ExpiresAt, want)
	}
	if len(box.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(box.sent))
	}
	msg := box.sent[0]
	if msg.To != "john.doe@example.com" || msg.Subject != "Your Modern360 Login Code" {
		t.Fatalf("unexpected mail %+v", msg)
	}
	if !strings.Contains(msg.Body, "042137") || !strings.Contains(msg.Body, "https://app.example.com/auth/direct/login-token") {
		t.Fatalf("mail body misses code or link: %s", msg.Body)
	}

	if _, err := svc.VerifyCode(ctx, "login-token", "000000"); err == nil {
		t.Fatalf("expected wrong code to fail")
	} else if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalid {
		t.Fatalf("wrong code error = %v, want invalid", err)
	}

	res, err := svc.VerifyCode(ctx, "login-token", "042137")
	if err != nil {
		t.Fatalf("VerifyCode returned error: %v", err)
	}
	if res.User == nil || res.User.Name != "John.Doe" || res.User.Role != models.RoleUser {
		t.Fatalf("unexpected user %+v", res.User)
	}
	if res.Token != "session:"+itoa64(res.User.ID) {
		t.Fatalf("token = %q", res.Token)
	}
	if _, ok := store.lastLogin[res.User.ID]; !ok {
		t.Fatalf("last login not stamped")
	}

	if _, err := svc.VerifyCode(ctx, "login-token", "042137"); err == nil {
		t.Fatalf("expected reuse of a consumed code to fail")
	}
}

func TestAuthDirectLoginAndExpiry(t *testing.T) {
	store := newStubStore()
	existing := store.addUser("ana@example.com", "Ana")
	svc := newTestAuth(store, &outbox{})
	ctx := context.Background()

	if _, err := svc.StartLogin(ctx, "ana@example.com"); err != nil {
		t.Fatalf("StartLogin returned error: %v", err)
	}
	later := svc.now().Add(DefaultCodeTTL + time.Second)
	svc.now = func() time.Time { return later }
	if _, err := svc.DirectLogin(ctx, "login-token"); err == nil {
		t.Fatalf("expected expired link to fail")
	}

	svc.now = func() time.Time { return later.Add(-2 * time.Minute) }
	res, err := svc.DirectLogin(ctx, "login-token")
	if err != nil {
		t.Fatalf("DirectLogin returned error: %v", err)
	}
	if res.User.ID != existing.ID {
		t.Fatalf("logged in as %d, want existing user %d", res.User.ID, existing.ID)
	}
}

func TestAuthRejectsUnknownTokenAndDisabledUser(t *testing.T) {
	store := newStubStore()
	u := store.addUser("off@example.com", "Off")
	u.IsActive = false
	svc := newTestAuth(store, &outbox{})
	ctx := context.Background()

	_, err := svc.CheckLoginToken(ctx, "nope")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
		t.Fatalf("unknown token error = %v, want not_found", err)
	}
	_, err = svc.StartLogin(ctx, "off@example.com")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorForbidden {
		t.Fatalf("disabled user error = %v, want forbidden", err)
	}
	if _, err := svc.StartLogin(ctx, "not-an-email"); err == nil {
		t.Fatalf("expected invalid email to fail")
	}
}

func TestAuthMailFailureIsBadGateway(t *testing.T) {
	svc := newTestAuth(newStubStore(), &outbox{fail: errors.New("smtp down")})
	_, err := svc.StartLogin(context.Background(), "x@example.com")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorBadGateway {
		t.Fatalf("error = %v, want bad_gateway", err)
	}
}

func TestAuthResolveSession(t *testing.T) {
	store := newStubStore()
	u := store.addUser("a@example.com", "A")
	svc := newTestAuth(store, &outbox{})
	ctx := context.Background()

	got, err := svc.ResolveSession(ctx, itoa64(u.ID))
	if err != nil || got.ID != u.ID {
		t.Fatalf("ResolveSession = %+v, %v", got, err)
	}
	store.users[u.ID].IsActive = false
	if _, err := svc.ResolveSession(ctx, itoa64(u.ID)); err == nil {
		t.Fatalf("expected inactive user to be rejected")
	}
	if _, err := svc.ResolveSession(ctx, "admin"); err == nil {
		t.Fatalf("expected non-numeric subject to be rejected")
	}
}

func TestNameFromEmail(t *testing.T) {
	cases := map[string]string{
		"john.doe@example.com": "John.Doe",
		"MARY_ann@example.com": "Mary_Ann",
		"x2y@example.com":      "X2Y",
		"o'brien@example.com":  "O'Brien",
	}
	for in, want := range cases {
		if got := nameFromEmail(in); got != want {
			t.Fatalf("nameFromEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAdminLogin(t *testing.T) {
	svc, err := NewAdminAuthService("admin", "s3cret", "", func(subject string, ttl time.Duration) (string, error) {
		return "session:" + subject, nil
	}, 0, nil)
	if err != nil {
		t.Fatalf("NewAdminAuthService returned error: %v", err)
	}
	res, err := svc.Login("admin", "s3cret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if res.Token != "session:admin" {
		t.Fatalf("token = %q", res.Token)
	}
	for _, c := range [][2]string{{"admin", "wrong"}, {"root", "s3cret"}} {
		_, err := svc.Login(c[0], c[1])
		if se, ok := AsServiceError(err); !ok || se.Code != ErrorUnauthorized {
			t.Fatalf("Login(%q,%q) error = %v, want unauthorized", c[0], c[1], err)
		}
	}
	if err := svc.ResolveSession(AdminSubject); err != nil {
		t.Fatalf("ResolveSession(admin) = %v", err)
	}
	if err := svc.ResolveSession("7"); err == nil {
		t.Fatalf("expected user subject to be rejected")
	}
}
