package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/soaringjerry/modern360/internal/middleware"
	"github.com/soaringjerry/modern360/internal/models"
	"github.com/soaringjerry/modern360/internal/services"
)

type userHandler struct {
	svc    *Services
	opts   Options
	signer *middleware.Signer
}

// NewUserServer builds the participant-facing app: email-code login, the
// user's own assessments and the token-based response form.
func NewUserServer(store Store, svc *Services, signer *middleware.Signer, opts Options) *echo.Echo {
	e := newEcho(store, opts, "")
	e.Use(middleware.CORS)
	h := &userHandler{svc: svc, opts: opts, signer: signer}
	limited := middleware.NewRateLimiter(opts.RatePerMinute).Middleware()

	// Per-route middleware leaves unmatched paths to the static frontend.
	open := []echo.MiddlewareFunc{middleware.NoStore}
	throttled := []echo.MiddlewareFunc{middleware.NoStore, limited}
	authed := []echo.MiddlewareFunc{
		middleware.NoStore,
		middleware.RequireSession(signer, UserCookie, middleware.Resolver[*models.User](svc.Auth.ResolveSession)),
	}

	e.POST("/login", h.login, throttled...)
	e.GET("/verify/:token", h.checkVerification, open...)
	e.POST("/verify/:token", h.verifyCode, throttled...)
	e.GET("/auth/direct/:token", h.directLogin, throttled...)
	e.POST("/logout", h.logout, open...)
	e.GET("/respond/:token", h.respondForm, open...)
	e.POST("/submit_response/:token", h.submitResponse, throttled...)

	e.GET("/me", h.me, authed...)
	e.GET("/dashboard", h.dashboard, authed...)
	e.POST("/assessment/create", h.createAssessment, authed...)
	e.GET("/assessment/:id", h.assessment, authed...)
	e.POST("/assessment/:id/invite", h.invite, authed...)
	e.GET("/assessment/:id/analytics", h.analytics, authed...)
	e.GET("/assessment/:id/self-assess", h.selfAssessForm, authed...)
	e.POST("/submit_self_assessment/:id", h.submitSelfAssessment, authed...)

	if opts.StaticDir != "" {
		e.Use(echomw.StaticWithConfig(echomw.StaticConfig{Root: opts.StaticDir, HTML5: true}))
	}
	return e
}

func currentUser(c echo.Context) (*models.User, error) {
	u, ok := middleware.Principal[*models.User](c)
	if !ok || u == nil {
		return nil, services.NewUnauthorizedError("login required")
	}
	return u, nil
}

func (h *userHandler) startSession(c echo.Context, res *services.LoginResult) {
	middleware.SetSessionCookie(c, UserCookie, res.Token, res.ExpiresAt, h.opts.CookieSecure)
}

func (h *userHandler) login(c echo.Context) error {
	var req struct {
		Email string `json:"email" form:"email"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	ch, err := h.svc.Auth.StartLogin(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *userHandler) checkVerification(c echo.Context) error {
	v, err := h.svc.Auth.CheckLoginToken(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"valid": true, "email": v.Email, "expires_at": v.ExpiresAt})
}

func (h *userHandler) verifyCode(c echo.Context) error {
	var req struct {
		Code string `json:"code" form:"code"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Auth.VerifyCode(c.Request().Context(), c.Param("token"), req.Code)
	if err != nil {
		return err
	}
	h.startSession(c, res)
	return c.JSON(http.StatusOK, res)
}

// directLogin is the link in the login email. Browsers are sent on to the
// frontend; API clients get the session as JSON.
func (h *userHandler) directLogin(c echo.Context) error {
	res, err := h.svc.Auth.DirectLogin(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	h.startSession(c, res)
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML) {
		return c.Redirect(http.StatusSeeOther, "/")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *userHandler) logout(c echo.Context) error {
	middleware.ClearSessionCookie(c, UserCookie, h.opts.CookieSecure)
	return success(c)
}

func (h *userHandler) me(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *userHandler) dashboard(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	dash, err := h.svc.Reports.UserDashboard(c.Request().Context(), u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"user": u, "dashboard": dash})
}

func (h *userHandler) createAssessment(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req struct {
		Title            string `json:"title" form:"title"`
		Description      string `json:"description" form:"description"`
		Deadline         string `json:"deadline" form:"deadline"`
		IsSelfAssessment bool   `json:"is_self_assessment" form:"is_self_assessment"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	a, _, err := h.svc.Directory.CreateAssessment(c.Request().Context(), services.AssessmentInput{
		Title:            req.Title,
		Description:      req.Description,
		Deadline:         req.Deadline,
		IsSelfAssessment: req.IsSelfAssessment,
		CreatorID:        u.ID,
		CompanyID:        u.CompanyID,
	}, services.CreateAssessmentOptions{})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *userHandler) owned(c echo.Context) (*models.Assessment, error) {
	u, err := currentUser(c)
	if err != nil {
		return nil, err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return nil, err
	}
	return h.svc.Directory.OwnedAssessment(c.Request().Context(), id, u.ID)
}

func (h *userHandler) assessment(c echo.Context) error {
	a, err := h.owned(c)
	if err != nil {
		return err
	}
	details, err := h.svc.Reports.AssessmentDetails(c.Request().Context(), a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, details)
}

func (h *userHandler) invite(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	a, err := h.owned(c)
	if err != nil {
		return err
	}
	var req struct {
		Emails string `json:"emails" form:"emails"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Invitations.InviteByEmail(c.Request().Context(), a.ID, u.ID, req.Emails)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *userHandler) analytics(c echo.Context) error {
	a, err := h.owned(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Analytics.Summary(c.Request().Context(), a.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *userHandler) respondForm(c echo.Context) error {
	view, err := h.svc.Invitations.ResolveInvitation(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	if view.AlreadyCompleted {
		return c.JSON(http.StatusOK, map[string]any{"already_completed": true, "assessment": view.Assessment})
	}
	return c.JSON(http.StatusOK, view)
}

func (h *userHandler) submitResponse(c echo.Context) error {
	raw, err := bindAnswers(c)
	if err != nil {
		return err
	}
	if _, err := h.svc.Responses.SubmitWithToken(c.Request().Context(), c.Param("token"), raw); err != nil {
		return err
	}
	return success(c)
}

func (h *userHandler) selfAssessForm(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	view, err := h.svc.Responses.SelfAssessment(c.Request().Context(), u, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *userHandler) submitSelfAssessment(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	raw, err := bindAnswers(c)
	if err != nil {
		return err
	}
	if _, err := h.svc.Responses.SubmitSelfAssessment(c.Request().Context(), u, id, raw); err != nil {
		return err
	}
	return success(c)
}
