package http

import (
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/sfgate/internal/gate/service"
	"github.com/aussiebroadwan/sfgate/pkg/httpx"
	"github.com/aussiebroadwan/sfgate/pkg/slogx"
)

type LogoutHandler struct {
	Flow       *service.OAuthFlow
	TokenStore *service.TokenStore
	Logger     *slog.Logger
}

// HandlePost godoc
//
//	@Summary		Logout
//	@Description	Revokes the platform tokens best-effort, removes the stored connection,
//	@Description	and clears the session cookie. Local teardown always completes even when
//	@Description	the upstream revocation fails.
//	@Tags			Auth
//	@Produce		json
//	@Success		204	{string}	string			"Logged out"
//	@Failure		401	{object}	httpx.ErrorBody	"error, error_description"
//	@Router			/v1/auth/logout [post].
func (h *LogoutHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	sid := sessionID(r)
	if sid == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "not_authenticated", "no session")
		return
	}

	cred, err := h.TokenStore.GetConnectionBySession(ctx, sid)
	if err != nil {
		// Nothing stored for this session; clearing the cookie is all there
		// is to do.
		clearSession(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.Flow.RevokeToken(ctx, cred.AccessToken, cred.InstanceURL); err != nil {
		log.Warn("upstream revocation failed, continuing local teardown",
			"user_id", cred.UserID, "err", err)
	}
	if cred.RefreshToken != "" {
		if err := h.Flow.RevokeToken(ctx, cred.RefreshToken, cred.InstanceURL); err != nil {
			log.Warn("refresh token revocation failed, continuing local teardown",
				"user_id", cred.UserID, "err", err)
		}
	}

	if _, err := h.TokenStore.RemoveConnection(ctx, cred.UserID); err != nil {
		log.Error("failed to remove connection", "user_id", cred.UserID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "logout failed")
		return
	}

	log.Info("logged out", "user_id", cred.UserID)
	clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}
