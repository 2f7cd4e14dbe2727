package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/sfgate/internal/gate/service"
	"github.com/aussiebroadwan/sfgate/pkg/httpx"
	"github.com/aussiebroadwan/sfgate/pkg/slogx"
)

type CallbackHandler struct {
	Flow       *service.OAuthFlow
	TokenStore *service.TokenStore
	Logger     *slog.Logger
}

// HandleGet godoc
//
//	@Summary		Authorization Callback
//	@Description	Completes the authorization-code flow: validates the single-use state,
//	@Description	exchanges the code, resolves the platform identity, stores the encrypted
//	@Description	credential against the session, and redirects to the original return URL.
//	@Tags			Auth
//	@Produce		json
//	@Param			code	query		string			true	"Authorization code"
//	@Param			state	query		string			true	"CSRF state from the login step"
//	@Success		302		{string}	string			"Redirect to the recorded return URL"
//	@Failure		400		{object}	httpx.ErrorBody	"error, error_description"
//	@Failure		502		{object}	httpx.ErrorBody	"error, error_description"
//	@Router			/v1/auth/callback [get].
func (h *CallbackHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	q := r.URL.Query()

	// The authorization server reports user denial and misconfiguration via
	// the error parameter. Checked before any state lookup so a denied
	// attempt does not consume the pending state's single use.
	if upstreamErr := q.Get("error"); upstreamErr != "" {
		log.Warn("authorization rejected upstream",
			"upstream_error", upstreamErr,
			"description", q.Get("error_description"))
		httpx.WriteError(w, http.StatusBadRequest, "authorization_denied",
			"the platform rejected the authorization attempt")
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request",
			"code and state are required")
		return
	}

	pending, err := h.Flow.ValidateState(state)
	if err != nil {
		if errors.Is(err, service.ErrInvalidState) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_state",
				"state is unknown, expired, or already used")
			return
		}
		log.Error("state validation failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "callback failed")
		return
	}

	tok, err := h.Flow.ExchangeCode(ctx, code)
	if err != nil {
		var exErr *service.TokenExchangeError
		if errors.As(err, &exErr) {
			log.Warn("code exchange rejected",
				"upstream_status", exErr.StatusCode, "body", exErr.Body)
		} else {
			log.Error("code exchange failed", "err", err)
		}
		httpx.WriteError(w, http.StatusBadGateway, "exchange_failed",
			"could not exchange the authorization code")
		return
	}

	info, err := h.Flow.GetUserInfo(ctx, tok.AccessToken, tok.InstanceURL)
	if err != nil {
		log.Error("identity lookup failed after exchange", "err", err)
		httpx.WriteError(w, http.StatusBadGateway, "identity_failed",
			"could not resolve the platform identity")
		return
	}

	connID, err := h.TokenStore.StoreConnection(ctx, info.UserID, pending.SessionID, tok)
	if err != nil {
		log.Error("failed to store connection", "user_id", info.UserID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error",
			"could not store the connection")
		return
	}

	log.Info("authorization completed",
		"conn_id", connID, "user_id", info.UserID, "username", info.Username)

	httpx.NoCache(w)
	http.Redirect(w, r, safeReturnURL(pending.ReturnURL), http.StatusFound)
}
