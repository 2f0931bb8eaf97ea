package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/soaringjerry/modern360/internal/utils"
)

const localeKey = "m360.locale"

// Locale picks the response language from ?lang= or Accept-Language.
func Locale(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		locale := utils.DetermineLocale(c.QueryParam("lang"), c.Request().Header.Get("Accept-Language"), utils.SupportedLocales, "en")
		c.Set(localeKey, locale)
		c.Response().Header().Set("Content-Language", locale)
		return next(c)
	}
}

// LocaleFrom returns the locale stored by Locale, or "en".
func LocaleFrom(c echo.Context) string {
	if s, ok := c.Get(localeKey).(string); ok && s != "" {
		return s
	}
	return "en"
}
