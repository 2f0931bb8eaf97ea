package utils

// Server-side strings for the few messages produced outside the services
// (middleware rejections, health). Everything else is rendered by the client.

var translations = map[string]map[string]string{
	"en": {
		"health.ok":            "ok",
		"auth.required":        "Authentication required",
		"auth.invalid_session": "Session is invalid or has expired",
		"rate.limited":         "Too many requests, please try again later",
		"error.internal":       "Internal server error",
		"error.bad_request":    "Invalid request body",
	},
	"bs": {
		"health.ok":            "ok",
		"auth.required":        "Potrebna je prijava",
		"auth.invalid_session": "Sesija je nevažeća ili je istekla",
		"rate.limited":         "Previše zahtjeva, pokušajte ponovo kasnije",
		"error.internal":       "Interna greška servera",
		"error.bad_request":    "Neispravan zahtjev",
	},
}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := translations["en"][key]; ok {
		return v
	}
	return key
}
