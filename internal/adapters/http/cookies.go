package http

import (
	"net/http"
	"strings"
	"time"
)

const defaultRefreshCookieName = "refreshToken"

// CookieConfig controls how the refresh token travels to the browser.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(h.cookie.MaxAge.Seconds())
	if !expiresAt.IsZero() {
		if remaining := int(time.Until(expiresAt).Seconds()); remaining > 0 && remaining < maxAge {
			maxAge = remaining
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshTokenFromRequest prefers the cookie and falls back to the body value.
func (h *Handler) refreshTokenFromRequest(r *http.Request, bodyToken string) string {
	if c, err := r.Cookie(h.cookie.Name); err == nil && strings.TrimSpace(c.Value) != "" {
		return c.Value
	}
	return strings.TrimSpace(bodyToken)
}
