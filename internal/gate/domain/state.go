package domain

import "time"

// PendingAuth tracks one in-progress authorization attempt between the time
// the login URL is issued and the time the platform redirects back. It lives
// only in memory and is consumed exactly once.
type PendingAuth struct {
	State     string // opaque CSRF token, also the map key
	UserID    string
	SessionID string
	ReturnURL string // optional post-login redirect target
	IssuedAt  time.Time
}

// Expired reports whether the attempt is older than the validity window.
func (p PendingAuth) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(p.IssuedAt) > window
}
