package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/soaringjerry/modern360/internal/middleware"
	"github.com/soaringjerry/modern360/internal/models"
	"github.com/soaringjerry/modern360/internal/services"
)

type adminHandler struct {
	svc   *Services
	store Store
	opts  Options
}

// NewAdminServer builds the operator app. Every route lives under /admin and
// all but login, health, version and metrics need an admin session.
func NewAdminServer(store Store, svc *Services, signer *middleware.Signer, opts Options) *echo.Echo {
	e := newEcho(store, opts, "/admin")
	h := &adminHandler{svc: svc, store: store, opts: opts}
	limited := middleware.NewRateLimiter(opts.RatePerMinute).Middleware()

	g := e.Group("/admin", middleware.NoStore)
	g.POST("/login", h.login, limited)
	g.POST("/logout", h.logout)

	a := g.Group("", middleware.RequireSession(signer, AdminCookie, adminResolver(svc.AdminAuth)))
	a.GET("/dashboard", h.dashboard)
	a.GET("/audit", h.audit)

	a.GET("/companies", h.listCompanies)
	a.POST("/companies", h.createCompany)
	a.PUT("/companies/:id", h.updateCompany)
	a.DELETE("/companies/:id", h.deleteCompany)

	a.GET("/users", h.listUsers)
	a.POST("/users", h.createUser)
	a.PUT("/users/:id", h.updateUser)
	a.DELETE("/users/:id", h.deleteUser)
	a.GET("/api/company/:id/users", h.companyUsers)

	a.GET("/assessments", h.listAssessments)
	a.POST("/assessments", h.createAssessment)
	a.PUT("/assessments/:id", h.updateAssessment)
	a.DELETE("/assessments/:id", h.deleteAssessment)
	a.GET("/assessments/:id/participants", h.listParticipants)
	a.POST("/assessments/:id/participants", h.addParticipants)
	a.POST("/assessments/:id/send-invitations", h.sendInvitations)
	a.GET("/assessments/:id/responses", h.responses)
	a.GET("/assessments/:id/responses/export/csv", h.exportResponses)
	a.GET("/assessments/:id/analytics", h.analytics)

	a.GET("/invitations", h.listInvitations)
	a.POST("/invitations/send", h.sendAdhocInvitations)
	a.GET("/notifications", h.notifications)
	a.POST("/send-reminder/:id", h.sendReminder)

	a.GET("/reports", h.reports)
	a.GET("/reports/export/csv", h.exportReport)
	return e
}

func adminResolver(svc *services.AdminAuthService) middleware.Resolver[string] {
	return func(_ context.Context, subject string) (string, error) {
		if svc == nil {
			return "", services.NewUnauthorizedError("admin login disabled")
		}
		if err := svc.ResolveSession(subject); err != nil {
			return "", err
		}
		return subject, nil
	}
}

func actor(c echo.Context) string {
	if s, ok := middleware.Principal[string](c); ok {
		return s
	}
	return services.AdminSubject
}

func (h *adminHandler) record(c echo.Context, action, entity string, id int64, note string) {
	h.store.AddAudit(c.Request().Context(), models.AuditEntry{
		Time:   time.Now().UTC(),
		Actor:  actor(c),
		Action: action,
		Target: entity + ":" + strconv.FormatInt(id, 10),
		Note:   note,
	})
}

func (h *adminHandler) login(c echo.Context) error {
	if h.svc.AdminAuth == nil {
		return services.NewUnauthorizedError("admin login disabled")
	}
	var req struct {
		Username string `json:"username" form:"username"`
		Password string `json:"password" form:"password"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.AdminAuth.Login(req.Username, req.Password)
	if err != nil {
		return err
	}
	middleware.SetSessionCookie(c, AdminCookie, res.Token, res.ExpiresAt, h.opts.CookieSecure)
	return c.JSON(http.StatusOK, res)
}

func (h *adminHandler) logout(c echo.Context) error {
	middleware.ClearSessionCookie(c, AdminCookie, h.opts.CookieSecure)
	return success(c)
}

func (h *adminHandler) dashboard(c echo.Context) error {
	dash, err := h.svc.Reports.AdminDashboard(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dash)
}

func (h *adminHandler) audit(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	entries, err := h.store.ListAudit(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}

// Companies

func (h *adminHandler) listCompanies(c echo.Context) error {
	page := pageFrom(c)
	items, total, err := h.svc.Directory.ListCompanies(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newList(items, total, page))
}

func (h *adminHandler) createCompany(c echo.Context) error {
	var in services.CompanyInput
	if err := bind(c, &in); err != nil {
		return err
	}
	co, err := h.svc.Directory.CreateCompany(c.Request().Context(), in)
	if err != nil {
		return err
	}
	h.record(c, "create_company", "company", co.ID, co.Name)
	return c.JSON(http.StatusCreated, co)
}

func (h *adminHandler) updateCompany(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in services.CompanyInput
	if err := bind(c, &in); err != nil {
		return err
	}
	co, err := h.svc.Directory.UpdateCompany(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	h.record(c, "update_company", "company", co.ID, co.Name)
	return c.JSON(http.StatusOK, co)
}

func (h *adminHandler) deleteCompany(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Deletion.DeleteCompany(c.Request().Context(), actor(c), id); err != nil {
		return err
	}
	return success(c)
}

// Users

func (h *adminHandler) listUsers(c echo.Context) error {
	page := pageFrom(c)
	items, total, err := h.svc.Directory.ListUsers(c.Request().Context(), models.UserFilter{
		CompanyID: queryID(c, "company_id"),
		Search:    c.QueryParam("search"),
		Page:      page,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newList(items, total, page))
}

func (h *adminHandler) createUser(c echo.Context) error {
	var in services.UserInput
	if err := bind(c, &in); err != nil {
		return err
	}
	u, err := h.svc.Directory.CreateUser(c.Request().Context(), in)
	if err != nil {
		return err
	}
	h.record(c, "create_user", "user", u.ID, u.Email)
	return c.JSON(http.StatusCreated, u)
}

func (h *adminHandler) updateUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in services.UserInput
	if err := bind(c, &in); err != nil {
		return err
	}
	u, err := h.svc.Directory.UpdateUser(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	h.record(c, "update_user", "user", u.ID, u.Email)
	return c.JSON(http.StatusOK, u)
}

func (h *adminHandler) deleteUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Deletion.DeleteUser(c.Request().Context(), actor(c), id); err != nil {
		return err
	}
	return success(c)
}

func (h *adminHandler) companyUsers(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	users, err := h.svc.Directory.CompanyUsers(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if users == nil {
		users = []*models.User{}
	}
	return c.JSON(http.StatusOK, users)
}

// Assessments

func (h *adminHandler) listAssessments(c echo.Context) error {
	page := pageFrom(c)
	items, total, err := h.svc.Directory.ListAssessments(c.Request().Context(), models.AssessmentFilter{
		CompanyID: queryID(c, "company_id"),
		Search:    c.QueryParam("search"),
		Page:      page,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newList(items, total, page))
}

func (h *adminHandler) createAssessment(c echo.Context) error {
	var in services.AssessmentInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, roster, err := h.svc.Directory.CreateAssessment(ctx, in, services.CreateAssessmentOptions{RequireRoster: true})
	if err != nil {
		return err
	}
	h.record(c, "create_assessment", "assessment", a.ID, a.Title)
	out := map[string]any{"assessment": a, "participants": roster}
	if in.SendInvitations {
		res, err := h.svc.Invitations.IssueInvitations(ctx, a.ID, 0)
		if err != nil {
			return err
		}
		out["invitations"] = res
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *adminHandler) updateAssessment(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in services.AssessmentInput
	if err := bind(c, &in); err != nil {
		return err
	}
	a, err := h.svc.Directory.UpdateAssessment(c.Request().Context(), id, in, true)
	if err != nil {
		return err
	}
	h.record(c, "update_assessment", "assessment", a.ID, a.Title)
	return c.JSON(http.StatusOK, a)
}

func (h *adminHandler) deleteAssessment(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Deletion.DeleteAssessment(c.Request().Context(), actor(c), id); err != nil {
		return err
	}
	return success(c)
}

func (h *adminHandler) listParticipants(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	rows, err := h.svc.Roster.ListParticipants(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []services.ParticipantView{}
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *adminHandler) addParticipants(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		AssesseeID int64                    `json:"assessee_id"`
		Assessors  []services.AssessorInput `json:"assessors"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	rows, err := h.svc.Roster.CreateRoster(c.Request().Context(), id, req.AssesseeID, req.Assessors)
	if err != nil {
		return err
	}
	h.record(c, "add_participants", "assessment", id, fmt.Sprintf("%d rows", len(rows)))
	return c.JSON(http.StatusCreated, rows)
}

func (h *adminHandler) sendInvitations(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.svc.Invitations.IssueInvitations(c.Request().Context(), id, 0)
	if err != nil {
		return err
	}
	h.record(c, "send_invitations", "assessment", id, fmt.Sprintf("created %d, sent %d", res.Created, res.Sent))
	return c.JSON(http.StatusOK, res)
}

func (h *adminHandler) responses(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	details, err := h.svc.Responses.Details(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if details == nil {
		details = []*models.ResponseDetail{}
	}
	return c.JSON(http.StatusOK, map[string]any{"responses": details})
}

func (h *adminHandler) exportResponses(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.svc.Reports.ExportResponsesCSV(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return attachment(c, res)
}

func (h *adminHandler) analytics(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	out, err := h.svc.Analytics.Summary(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// Invitations

func (h *adminHandler) listInvitations(c echo.Context) error {
	page := pageFrom(c)
	pending := c.QueryParam("pending") == "1" || c.QueryParam("pending") == "true"
	items, total, err := h.svc.Invitations.ListInvitations(c.Request().Context(), queryID(c, "assessment_id"), pending, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newList(items, total, page))
}

func (h *adminHandler) sendAdhocInvitations(c echo.Context) error {
	var req struct {
		AssessmentID int64  `json:"assessment_id" form:"assessment_id"`
		SenderID     int64  `json:"sender_id" form:"sender_id"`
		Emails       string `json:"emails" form:"emails"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.AssessmentID == 0 {
		return services.NewInvalidError("Assessment and email addresses are required")
	}
	res, err := h.svc.Invitations.InviteByEmail(c.Request().Context(), req.AssessmentID, req.SenderID, req.Emails)
	if err != nil {
		return err
	}
	h.record(c, "send_invitations", "assessment", req.AssessmentID, fmt.Sprintf("created %d, sent %d", res.Created, res.Sent))
	return c.JSON(http.StatusOK, res)
}

func (h *adminHandler) notifications(c echo.Context) error {
	n, err := h.svc.Invitations.Notifications(c.Request().Context(), pageFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, n)
}

func (h *adminHandler) sendReminder(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	inv, err := h.svc.Invitations.SendReminder(c.Request().Context(), id)
	if err != nil {
		return err
	}
	h.record(c, "send_reminder", "invitation", inv.ID, inv.Email)
	return c.JSON(http.StatusOK, inv)
}

// Reports

func (h *adminHandler) reports(c echo.Context) error {
	rep, err := h.svc.Reports.Report(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *adminHandler) exportReport(c echo.Context) error {
	res, err := h.svc.Reports.ExportCSV(c.Request().Context())
	if err != nil {
		return err
	}
	return attachment(c, res)
}
