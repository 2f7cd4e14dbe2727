package http

import (
	"net/http"

	"github.com/aussiebroadwan/sfgate/pkg/cryptox"
)

// SessionCookieName carries the broker's opaque session identifier. The
// session is an anonymous browser binding, not an authentication claim: it
// only becomes meaningful once a completed authorization attaches a platform
// credential to it.
const SessionCookieName = "sfgate_session"

// sessionID returns the request's session identifier, or "" when absent.
func sessionID(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// ensureSession returns the existing session id or mints and sets a new one.
func ensureSession(w http.ResponseWriter, r *http.Request) (string, error) {
	if sid := sessionID(r); sid != "" {
		return sid, nil
	}

	sid, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return sid, nil
}

// clearSession expires the session cookie.
func clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
