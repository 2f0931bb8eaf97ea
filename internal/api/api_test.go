package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/modern360/internal/db"
	m360mail "github.com/soaringjerry/modern360/internal/mail"
	"github.com/soaringjerry/modern360/internal/metrics"
	"github.com/soaringjerry/modern360/internal/middleware"
	"github.com/soaringjerry/modern360/internal/models"
	"github.com/soaringjerry/modern360/internal/services"
)

const (
	adminPassword = "correct horse battery"
	sessionSecret = "api-test-session-secret"
)

type testEnv struct {
	store *db.SQLiteStore
	user  *echo.Echo
	admin *echo.Echo

	mu   sync.Mutex
	sent []m360mail.Message
}

func newTestEnv(t *testing.T, rate int) *testEnv {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = db.RunMigrations(ctx, conn, "")
	require.NoError(t, err)
	store, err := db.NewSQLiteStore(conn, nil)
	require.NoError(t, err)
	_, err = services.Bootstrap(ctx, store, nil)
	require.NoError(t, err)

	env := &testEnv{store: store}
	mailer := m360mail.MailerFunc(func(_ context.Context, msg m360mail.Message) error {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.sent = append(env.sent, msg)
		return nil
	})
	userSigner, err := middleware.NewSigner(sessionSecret, middleware.ScopeUser)
	require.NoError(t, err)
	adminSigner, err := middleware.NewSigner(sessionSecret, middleware.ScopeAdmin)
	require.NoError(t, err)

	userSvc, err := NewServices(store, mailer, ServiceOptions{BaseURL: "https://m360.test", UserSigner: userSigner})
	require.NoError(t, err)
	adminSvc, err := NewServices(store, mailer, ServiceOptions{
		BaseURL:       "https://m360.test",
		AdminSigner:   adminSigner,
		AdminUsername: "admin",
		AdminPassword: adminPassword,
	})
	require.NoError(t, err)

	env.user = NewUserServer(store, userSvc, userSigner, Options{Metrics: metrics.New("user"), RatePerMinute: rate})
	env.admin = NewAdminServer(store, adminSvc, adminSigner, Options{Metrics: metrics.New("admin"), RatePerMinute: rate})
	return env
}

func call(t *testing.T, e *echo.Echo, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", name)
	return nil
}

func (env *testEnv) adminLogin(t *testing.T) *http.Cookie {
	t.Helper()
	rec := call(t, env.admin, http.MethodPost, "/admin/login", map[string]string{"username": "admin", "password": adminPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(t, rec, AdminCookie)
}

// userLogin runs the email-code flow for email and returns the session cookie.
func (env *testEnv) userLogin(t *testing.T, email string) *http.Cookie {
	t.Helper()
	rec := call(t, env.user, http.MethodPost, "/login", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	challenge := decode[services.LoginChallenge](t, rec)

	v, err := env.store.GetVerificationByToken(context.Background(), challenge.LoginToken)
	require.NoError(t, err)
	require.NotNil(t, v)

	rec = call(t, env.user, http.MethodPost, "/verify/"+challenge.LoginToken, map[string]string{"code": v.Code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(t, rec, UserCookie)
}

func (env *testEnv) createCompany(t *testing.T, admin *http.Cookie, name string) *models.Company {
	t.Helper()
	rec := call(t, env.admin, http.MethodPost, "/admin/companies", map[string]any{"name": name}, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*models.Company](t, rec)
}

func (env *testEnv) createUser(t *testing.T, admin *http.Cookie, email, name string, companyID int64) *models.User {
	t.Helper()
	rec := call(t, env.admin, http.MethodPost, "/admin/users",
		map[string]any{"email": email, "name": name, "role": "user", "company_id": companyID}, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*models.User](t, rec)
}

func (env *testEnv) invitations(t *testing.T, assessmentID int64) map[string]*models.Invitation {
	t.Helper()
	invs, _, err := env.store.ListInvitations(context.Background(), assessmentID, false, models.Page{Number: 1, Size: 100})
	require.NoError(t, err)
	out := map[string]*models.Invitation{}
	for _, inv := range invs {
		out[inv.Email] = inv
	}
	return out
}

func TestScenarioSelfAssessmentByToken(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	admin := env.adminLogin(t)

	acme := env.createCompany(t, admin, "Acme")
	alice := env.createUser(t, admin, "alice@acme.com", "Alice", acme.ID)

	session := env.userLogin(t, "alice@acme.com")
	rec := call(t, env.user, http.MethodPost, "/assessment/create", map[string]any{"title": "Q1 Review"}, session)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decode[*models.Assessment](t, rec)
	assert.Equal(t, alice.ID, a.CreatorID)
	assert.Equal(t, acme.ID, a.CompanyID)

	rec = call(t, env.admin, http.MethodPost, fmt.Sprintf("/admin/assessments/%d/participants", a.ID),
		map[string]any{"assessee_id": alice.ID}, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(t, env.admin, http.MethodPost, fmt.Sprintf("/admin/assessments/%d/send-invitations", a.ID), nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[services.IssueResult](t, rec).Created)

	inv := env.invitations(t, a.ID)["alice@acme.com"]
	require.NotNil(t, inv)
	assert.False(t, inv.IsCompleted)

	rec = call(t, env.user, http.MethodGet, "/respond/"+inv.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[services.InvitationView](t, rec)
	assert.True(t, view.Self)
	assert.NotEmpty(t, view.Questions)

	rec = call(t, env.user, http.MethodPost, "/submit_response/"+inv.Token, map[string]any{"q1": "5"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	got, err := env.store.GetInvitationByToken(ctx, inv.Token)
	require.NoError(t, err)
	assert.True(t, got.IsCompleted)
	details, err := env.store.ListDetails(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "5", details[0].Columns["q1"])

	rec = call(t, env.user, http.MethodPost, "/submit_response/"+inv.Token, map[string]any{"q1": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already completed")
	details, err = env.store.ListDetails(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "5", details[0].Columns["q1"])

	rec = call(t, env.user, http.MethodGet, "/respond/"+inv.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["already_completed"])

	rec = call(t, env.user, http.MethodPost, "/submit_response/no-such-token", map[string]any{"q1": "5"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScenarioThreeSixtyRoster(t *testing.T) {
	env := newTestEnv(t, 0)
	admin := env.adminLogin(t)

	acme := env.createCompany(t, admin, "Acme")
	bob := env.createUser(t, admin, "bob@acme.com", "Bob", acme.ID)
	carol := env.createUser(t, admin, "carol@acme.com", "Carol", acme.ID)
	dave := env.createUser(t, admin, "dave@acme.com", "Dave", acme.ID)

	rec := call(t, env.admin, http.MethodPost, "/admin/assessments", map[string]any{
		"title":      "360 Review",
		"company_id": acme.ID,
		"assessees":  []int64{bob.ID},
		"assessors": []map[string]any{
			{"id": carol.ID, "relationship": "peer"},
			{"id": dave.ID, "relationship": "manager"},
		},
		"send_invitations": true,
	}, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[struct {
		Assessment   *models.Assessment    `json:"assessment"`
		Participants []*models.Participant `json:"participants"`
		Invitations  *services.IssueResult `json:"invitations"`
	}](t, rec)
	require.Len(t, created.Participants, 3)
	assert.Equal(t, models.ParticipantSelf, created.Participants[0].Role)
	assert.Equal(t, 3, created.Invitations.Created)

	invs := env.invitations(t, created.Assessment.ID)
	require.Len(t, invs, 3)

	rec = call(t, env.user, http.MethodPost, "/submit_response/"+invs["carol@acme.com"].Token, map[string]any{"q1": 4, "q2": "3"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	invs = env.invitations(t, created.Assessment.ID)
	assert.True(t, invs["carol@acme.com"].IsCompleted)
	assert.False(t, invs["dave@acme.com"].IsCompleted)
	assert.False(t, invs["bob@acme.com"].IsCompleted)

	rec = call(t, env.admin, http.MethodGet, fmt.Sprintf("/admin/assessments/%d/participants", created.Assessment.ID), nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]services.ParticipantView](t, rec)
	require.Len(t, rows, 3)
	for _, row := range rows {
		switch {
		case row.Role == models.ParticipantSelf:
			assert.False(t, row.Status.Completed, "self row must be untouched")
		case row.AssessorID == carol.ID:
			assert.True(t, row.Status.Completed)
		default:
			assert.False(t, row.Status.Completed)
		}
	}

	rec = call(t, env.admin, http.MethodGet, fmt.Sprintf("/admin/assessments/%d/analytics", created.Assessment.ID), nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, env.admin, http.MethodGet, fmt.Sprintf("/admin/assessments/%d/responses/export/csv", created.Assessment.ID), nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "modern360_responses_")
	assert.Contains(t, rec.Body.String(), "carol@acme.com")
}

func TestTemplateAssessmentCannotBeDeleted(t *testing.T) {
	env := newTestEnv(t, 0)
	admin := env.adminLogin(t)
	sys, err := env.store.SystemRecords(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sys.Template)

	rec := call(t, env.admin, http.MethodDelete, fmt.Sprintf("/admin/assessments/%d", sys.Template.ID), nil, admin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "system")

	got, err := env.store.GetAssessment(context.Background(), sys.Template.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestCompanyDeletionReportsDependents(t *testing.T) {
	env := newTestEnv(t, 0)
	admin := env.adminLogin(t)
	acme := env.createCompany(t, admin, "Acme")
	u := env.createUser(t, admin, "erin@acme.com", "Erin", acme.ID)

	rec := call(t, env.admin, http.MethodDelete, fmt.Sprintf("/admin/companies/%d", acme.ID), nil, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "1 users")

	rec = call(t, env.admin, http.MethodDelete, fmt.Sprintf("/admin/users/%d", u.ID), nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = call(t, env.admin, http.MethodDelete, fmt.Sprintf("/admin/companies/%d", acme.ID), nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, env.admin, http.MethodGet, "/admin/audit", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "delete_company")
}

func TestUpdateAssessmentValidatesCompany(t *testing.T) {
	env := newTestEnv(t, 0)
	admin := env.adminLogin(t)
	acme := env.createCompany(t, admin, "Acme")
	pat := env.createUser(t, admin, "pat@acme.com", "Pat", acme.ID)
	quinn := env.createUser(t, admin, "quinn@acme.com", "Quinn", acme.ID)
	rec := call(t, env.admin, http.MethodPost, "/admin/assessments", map[string]any{
		"title": "Moves", "company_id": acme.ID, "assessees": []int64{pat.ID},
		"assessors": []map[string]any{{"id": quinn.ID}},
	}, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decode[struct {
		Assessment *models.Assessment `json:"assessment"`
	}](t, rec).Assessment
	sys, err := env.store.SystemRecords(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sys.Company)

	path := fmt.Sprintf("/admin/assessments/%d", a.ID)
	for _, companyID := range []int64{99999, sys.Company.ID} {
		rec = call(t, env.admin, http.MethodPut, path, map[string]any{"title": "Moves", "company_id": companyID}, admin)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "company %d", companyID)
		assert.Equal(t, "Company not found", decode[map[string]string](t, rec)["error"])
	}

	got, err := env.store.GetAssessment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, acme.ID, got.CompanyID)

	rec = call(t, env.admin, http.MethodDelete, fmt.Sprintf("/admin/companies/%d", acme.ID), nil, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthenticationRequired(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := call(t, env.user, http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])

	rec = call(t, env.admin, http.MethodGet, "/admin/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, env.admin, http.MethodPost, "/admin/login", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A user session must not open the admin app.
	env.createUserDirect(t, "frank@example.com")
	userCookie := env.userLogin(t, "frank@example.com")
	rec = call(t, env.admin, http.MethodGet, "/admin/dashboard", nil, &http.Cookie{Name: AdminCookie, Value: userCookie.Value})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func (env *testEnv) createUserDirect(t *testing.T, email string) {
	t.Helper()
	require.NoError(t, env.store.CreateUser(context.Background(), &models.User{Email: email, Name: email, Role: models.RoleUser, IsActive: true}))
}

func TestUserLoginCreatesAccountAndDashboard(t *testing.T) {
	env := newTestEnv(t, 0)
	session := env.userLogin(t, "new.person@example.com")

	rec := call(t, env.user, http.MethodGet, "/me", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[*models.User](t, rec)
	assert.Equal(t, "New.Person", me.Name)
	assert.NotNil(t, me.LastLogin)

	rec = call(t, env.user, http.MethodGet, "/dashboard", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)

	env.mu.Lock()
	require.NotEmpty(t, env.sent)
	assert.Equal(t, m360mail.KindVerification, env.sent[0].Kind)
	env.mu.Unlock()

	rec = call(t, env.user, http.MethodPost, "/logout", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == UserCookie {
			assert.Empty(t, c.Value)
		}
	}
}

func TestVerificationErrors(t *testing.T) {
	env := newTestEnv(t, 0)
	rec := call(t, env.user, http.MethodGet, "/verify/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, env.user, http.MethodPost, "/login", map[string]string{"email": "gina@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode[services.LoginChallenge](t, rec).LoginToken

	rec = call(t, env.user, http.MethodGet, "/verify/"+token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, env.user, http.MethodPost, "/verify/"+token, map[string]string{"code": "000000x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, env.user, http.MethodGet, "/auth/direct/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, env.user, http.MethodGet, "/verify/"+token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "a used link is no longer valid")
}

func TestSelfAssessmentAccess(t *testing.T) {
	env := newTestEnv(t, 0)
	env.createUserDirect(t, "hana@example.com")
	env.createUserDirect(t, "ivan@example.com")
	hana := env.userLogin(t, "hana@example.com")
	ivan := env.userLogin(t, "ivan@example.com")

	rec := call(t, env.user, http.MethodPost, "/assessment/create",
		map[string]any{"title": "My growth", "is_self_assessment": true}, hana)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decode[*models.Assessment](t, rec)

	rec = call(t, env.user, http.MethodGet, fmt.Sprintf("/assessment/%d/self-assess", a.ID), nil, ivan)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = call(t, env.user, http.MethodGet, fmt.Sprintf("/assessment/%d", a.ID), nil, ivan)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, env.user, http.MethodGet, fmt.Sprintf("/assessment/%d/self-assess", a.ID), nil, hana)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[services.SelfAssessView](t, rec).AlreadyCompleted)

	path := fmt.Sprintf("/submit_self_assessment/%d", a.ID)
	rec = call(t, env.user, http.MethodPost, path, map[string]any{"q1": "4"}, hana)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = call(t, env.user, http.MethodPost, path, map[string]any{"q1": "2"}, hana)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, env.user, http.MethodGet, fmt.Sprintf("/assessment/%d/analytics", a.ID), nil, hana)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestFormSubmission(t *testing.T) {
	env := newTestEnv(t, 0)
	admin := env.adminLogin(t)
	acme := env.createCompany(t, admin, "Acme")
	jo := env.createUser(t, admin, "jo@acme.com", "Jo", acme.ID)
	kim := env.createUser(t, admin, "kim@acme.com", "Kim", acme.ID)
	rec := call(t, env.admin, http.MethodPost, "/admin/assessments", map[string]any{
		"title": "Form review", "company_id": acme.ID, "assessees": []int64{jo.ID},
		"assessors": []map[string]any{{"id": kim.ID}}, "send_invitations": true,
	}, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decode[struct {
		Assessment *models.Assessment `json:"assessment"`
	}](t, rec).Assessment
	inv := env.invitations(t, a.ID)["kim@acme.com"]

	req := httptest.NewRequest(http.MethodPost, "/submit_response/"+inv.Token, strings.NewReader("q1=5&q2=well+done"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	out := httptest.NewRecorder()
	env.user.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code, out.Body.String())

	resps, err := env.store.ListResponses(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.Equal(t, map[string]string{"q1": "5", "q2": "well done"}, resps[0].Answers)
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, 2)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := call(t, env.user, http.MethodPost, "/login", map[string]string{"email": "spam@example.com"})
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, 0)
	rec := call(t, env.user, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = call(t, env.admin, http.MethodGet, "/admin/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, env.user, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "modern360_http_requests_total")
}

func TestAdminListingsAndReports(t *testing.T) {
	env := newTestEnv(t, 0)
	admin := env.adminLogin(t)
	acme := env.createCompany(t, admin, "Acme")
	env.createUser(t, admin, "lea@acme.com", "Lea", acme.ID)

	rec := call(t, env.admin, http.MethodGet, "/admin/companies", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	companies := decode[listResponse[*models.Company]](t, rec)
	assert.Equal(t, 1, companies.Total, "system company stays hidden")

	rec = call(t, env.admin, http.MethodGet, fmt.Sprintf("/admin/users?company_id=%d", acme.ID), nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[listResponse[*models.User]](t, rec).Total)

	rec = call(t, env.admin, http.MethodGet, fmt.Sprintf("/admin/api/company/%d/users", acme.ID), nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]*models.User](t, rec), 1)

	for _, path := range []string{"/admin/dashboard", "/admin/reports", "/admin/notifications", "/admin/invitations?pending=1", "/admin/assessments"} {
		rec = call(t, env.admin, http.MethodGet, path, nil, admin)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec = call(t, env.admin, http.MethodGet, "/admin/reports/export/csv", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")

	rec = call(t, env.admin, http.MethodPost, "/admin/send-reminder/999", nil, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticFrontendServesDeepLinks(t *testing.T) {
	env := newTestEnv(t, 0)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>m360</html>"), 0o644))
	userSigner, err := middleware.NewSigner(sessionSecret, middleware.ScopeUser)
	require.NoError(t, err)
	svc, err := NewServices(env.store, m360mail.MailerFunc(func(context.Context, m360mail.Message) error { return nil }),
		ServiceOptions{BaseURL: "https://m360.test", UserSigner: userSigner})
	require.NoError(t, err)
	srv := NewUserServer(env.store, svc, userSigner, Options{StaticDir: dir})

	for _, path := range []string{"/", "/some/page", "/assessments/12"} {
		rec := call(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "m360", path)
	}

	rec := call(t, srv, http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = call(t, srv, http.MethodGet, "/health", nil)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
