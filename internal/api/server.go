// Package api exposes the user and admin HTTP apps.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/soaringjerry/modern360/internal/metrics"
	"github.com/soaringjerry/modern360/internal/middleware"
	"github.com/soaringjerry/modern360/internal/models"
	"github.com/soaringjerry/modern360/internal/services"
	"github.com/soaringjerry/modern360/internal/utils"
)

const (
	UserCookie  = "m360_session"
	AdminCookie = "m360_admin"
)

// BuildInfo is reported by /version.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type Options struct {
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	CookieSecure  bool
	RatePerMinute int
	// StaticDir serves a built frontend from the user app when set.
	StaticDir string
	Build     BuildInfo
}

// newEcho sets up what both apps share: error rendering, request logging,
// security headers and the health, version and metrics endpoints under prefix.
func newEcho(store Store, opts Options, prefix string) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.Locale)
	e.Use(middleware.RequestLogger(logger, opts.Metrics))
	e.Use(middleware.SecureHeaders)

	e.GET(prefix+"/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			logger.Error("health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": utils.T(middleware.LocaleFrom(c), "health.ok")})
	})
	e.GET(prefix+"/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, opts.Build)
	})
	e.GET(prefix+"/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	return e
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if werr := writeError(c, err); werr != nil {
			logger.Warn("write error response", zap.Error(werr))
		}
		if c.Response().Status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err))
		}
	}
}

// writeError renders err as {"error": message}. Service errors map to their
// status; anything unrecognised is a 500 with a generic message.
func writeError(c echo.Context, err error) error {
	status, msg := statusFor(err)
	if msg == "" {
		msg = utils.T(middleware.LocaleFrom(c), "error.internal")
	}
	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	return c.JSON(status, map[string]string{"error": msg})
}

func statusFor(err error) (int, string) {
	if se, ok := services.AsServiceError(err); ok {
		switch se.Code {
		case services.ErrorInvalid, services.ErrorConflict:
			return http.StatusBadRequest, se.Message
		case services.ErrorNotFound:
			return http.StatusNotFound, se.Message
		case services.ErrorForbidden:
			return http.StatusForbidden, se.Message
		case services.ErrorUnauthorized:
			return http.StatusUnauthorized, se.Message
		case services.ErrorTooManyRequests:
			return http.StatusTooManyRequests, se.Message
		case services.ErrorBadGateway:
			return http.StatusBadGateway, se.Message
		}
		return http.StatusBadRequest, se.Message
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			return he.Code, ""
		}
		return he.Code, fmt.Sprint(he.Message)
	}
	return http.StatusInternalServerError, ""
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, services.NewNotFoundError("not found")
	}
	return id, nil
}

func queryID(c echo.Context, name string) int64 {
	id, err := strconv.ParseInt(c.QueryParam(name), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func pageFrom(c echo.Context) models.Page {
	n, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("per_page"))
	return models.Page{Number: n, Size: size}.Normalize()
}

type listResponse[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Pages   int `json:"pages"`
}

func newList[T any](items []T, total int, page models.Page) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if page.Size > 0 {
		pages = (total + page.Size - 1) / page.Size
	}
	return listResponse[T]{Items: items, Total: total, Page: page.Number, PerPage: page.Size, Pages: pages}
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return services.NewInvalidError(utils.T(middleware.LocaleFrom(c), "error.bad_request"))
	}
	return nil
}

// bindAnswers reads the answer fields from a JSON object or a form body.
// Path parameters are not mixed in.
func bindAnswers(c echo.Context) (map[string]any, error) {
	raw := map[string]any{}
	if err := (&echo.DefaultBinder{}).BindBody(c, &raw); err != nil {
		return nil, services.NewInvalidError(utils.T(middleware.LocaleFrom(c), "error.bad_request"))
	}
	return raw, nil
}

func attachment(c echo.Context, res *services.ExportResult) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", res.Filename))
	return c.Blob(http.StatusOK, res.ContentType+"; charset=utf-8", res.Data)
}

func success(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
