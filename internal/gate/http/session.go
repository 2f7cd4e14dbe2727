package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/sfgate/internal/gate/service"
	"github.com/aussiebroadwan/sfgate/pkg/httpx"
)

type SessionHandler struct {
	TokenStore *service.TokenStore
}

// SessionResponse describes the session's connection status. Token material
// never appears here.
type SessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	UserID        string     `json:"user_id,omitempty"`
	InstanceURL   string     `json:"instance_url,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// HandleGet godoc
//
//	@Summary		Session Status
//	@Description	Reports whether the session has an active platform connection.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	SessionResponse	"authenticated, user_id, instance_url, expires_at"
//	@Router			/v1/auth/session [get].
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	httpx.NoCache(w)

	sid := sessionID(r)
	if sid == "" {
		httpx.WriteJSON(w, http.StatusOK, SessionResponse{Authenticated: false})
		return
	}

	cred, err := h.TokenStore.GetConnectionBySession(r.Context(), sid)
	if err != nil {
		httpx.WriteJSON(w, http.StatusOK, SessionResponse{Authenticated: false})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, SessionResponse{
		Authenticated: true,
		UserID:        cred.UserID,
		InstanceURL:   cred.InstanceURL,
		ExpiresAt:     cred.ExpiresAt,
	})
}
