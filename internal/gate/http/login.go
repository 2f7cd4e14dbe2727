package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/sfgate/internal/gate/service"
	"github.com/aussiebroadwan/sfgate/pkg/httpx"
	"github.com/aussiebroadwan/sfgate/pkg/slogx"
)

type LoginHandler struct {
	Flow   *service.OAuthFlow
	Logger *slog.Logger
}

// LoginResponse is returned when the caller asks for JSON instead of a
// redirect.
type LoginResponse struct {
	AuthURL string `json:"auth_url"`
}

// HandleGet godoc
//
//	@Summary		Start Platform Login
//	@Description	Begins the authorization-code flow: binds a session cookie, mints a
//	@Description	single-use CSRF state, and sends the user to the platform's login page.
//	@Description	Pass redirect=false to receive the authorization URL as JSON instead.
//	@Tags			Auth
//	@Produce		json
//	@Param			return_url	query		string			false	"Relative path to return to after login"
//	@Param			redirect	query		string			false	"Set to false for a JSON response"
//	@Success		302			{string}	string			"Redirect to the platform authorization page"
//	@Success		200			{object}	LoginResponse	"auth_url"
//	@Failure		500			{object}	httpx.ErrorBody	"error, error_description"
//	@Router			/v1/auth/login [get].
func (h *LoginHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	sid, err := ensureSession(w, r)
	if err != nil {
		log.Error("failed to mint session id", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "could not start login")
		return
	}

	returnURL := safeReturnURL(r.URL.Query().Get("return_url"))

	// The platform user is unknown until the callback resolves identity.
	authURL, err := h.Flow.GenerateAuthURL("", sid, returnURL)
	if err != nil {
		log.Error("failed to build authorization url", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "could not start login")
		return
	}

	httpx.NoCache(w)
	if r.URL.Query().Get("redirect") == "false" {
		httpx.WriteJSON(w, http.StatusOK, LoginResponse{AuthURL: authURL})
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// safeReturnURL restricts post-login redirects to same-origin relative
// paths. Anything absolute or protocol-relative is discarded.
func safeReturnURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return "/"
	}
	return raw
}
