package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/sfgate/internal/gate/crm"
	"github.com/aussiebroadwan/sfgate/internal/gate/domain"
	"github.com/aussiebroadwan/sfgate/internal/gate/service"
	"github.com/aussiebroadwan/sfgate/pkg/httpx"
	"github.com/aussiebroadwan/sfgate/pkg/slogx"
)

// CRMHandler exposes the thin pass-through API. Every request walks the same
// gate: resolve the session's credential, refresh it if due, obtain a
// health-checked connection, then forward.
type CRMHandler struct {
	Refresh *service.RefreshCoordinator
	Cache   *service.ConnectionCache
	CRM     *crm.Client
	Logger  *slog.Logger
}

// QueryRequest carries a SOQL statement.
type QueryRequest struct {
	Query string `json:"query"`
}

// connect resolves a live connection for the request's session, writing the
// appropriate error response itself when it cannot. The bool reports success.
func (h *CRMHandler) connect(w http.ResponseWriter, r *http.Request) (domain.Connection, bool) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	sid := sessionID(r)
	if sid == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "not_authenticated", "no session")
		return domain.Connection{}, false
	}

	cred, err := h.Refresh.EnsureFresh(ctx, sid)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotAuthenticated):
			httpx.WriteError(w, http.StatusUnauthorized, "not_authenticated",
				"no platform connection for this session")
		case errors.Is(err, service.ErrAuthenticationExpired):
			httpx.WriteError(w, http.StatusUnauthorized, "authentication_expired",
				"the platform credential could not be refreshed, log in again")
		default:
			log.Error("credential resolution failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error",
				"could not resolve the platform credential")
		}
		return domain.Connection{}, false
	}

	conn, err := h.Cache.GetForCredential(ctx, cred)
	if err != nil {
		var connErr *service.ConnectionError
		if errors.As(err, &connErr) && connErr.Retryable {
			w.Header().Set("Retry-After", "5")
			httpx.WriteError(w, http.StatusServiceUnavailable, "connection_unavailable",
				"the platform is temporarily unreachable")
		} else {
			httpx.WriteError(w, http.StatusUnauthorized, "connection_rejected",
				"the platform rejected the credential, log in again")
		}
		return domain.Connection{}, false
	}

	return conn, true
}

// HandleDescribe godoc
//
//	@Summary		Describe Object
//	@Description	Passes through the platform's object metadata document.
//	@Tags			CRM
//	@Produce		json
//	@Param			object	path		string			true	"Object API name, e.g. Account"
//	@Success		200		{object}	object			"Raw platform describe document"
//	@Failure		401		{object}	httpx.ErrorBody	"error, error_description"
//	@Failure		503		{object}	httpx.ErrorBody	"error, error_description"
//	@Router			/v1/crm/describe/{object} [get].
func (h *CRMHandler) HandleDescribe(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connect(w, r)
	if !ok {
		return
	}

	doc, err := h.CRM.Describe(r.Context(), conn, r.PathValue("object"))
	if err != nil {
		h.writeUpstreamError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, doc)
}

// HandleQuery godoc
//
//	@Summary		Run SOQL Query
//	@Description	Passes a SOQL query through to the platform and returns the first page.
//	@Tags			CRM
//	@Accept			json
//	@Produce		json
//	@Param			request	body		QueryRequest	true	"query"
//	@Success		200		{object}	crm.QueryResult	"totalSize, done, records"
//	@Failure		400		{object}	httpx.ErrorBody	"error, error_description"
//	@Failure		401		{object}	httpx.ErrorBody	"error, error_description"
//	@Router			/v1/crm/query [post].
func (h *CRMHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	conn, ok := h.connect(w, r)
	if !ok {
		return
	}

	res, err := h.CRM.Query(r.Context(), conn, req.Query)
	if err != nil {
		h.writeUpstreamError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// HandleCreateRecord godoc
//
//	@Summary		Create Record
//	@Description	Inserts a record of the given object type with the posted fields.
//	@Tags			CRM
//	@Accept			json
//	@Produce		json
//	@Param			object	path		string				true	"Object API name, e.g. Lead"
//	@Param			fields	body		object				true	"Field name/value pairs"
//	@Success		201		{object}	crm.CreateResult	"id, success"
//	@Failure		400		{object}	httpx.ErrorBody		"error, error_description"
//	@Failure		401		{object}	httpx.ErrorBody		"error, error_description"
//	@Router			/v1/crm/records/{object} [post].
func (h *CRMHandler) HandleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || len(fields) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "a field object is required")
		return
	}

	conn, ok := h.connect(w, r)
	if !ok {
		return
	}

	res, err := h.CRM.CreateRecord(r.Context(), conn, r.PathValue("object"), fields)
	if err != nil {
		h.writeUpstreamError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

// writeUpstreamError maps a CRM client failure onto our error envelope,
// preserving the platform's status code where it carries one.
func (h *CRMHandler) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	var apiErr *crm.APIError
	if errors.As(err, &apiErr) {
		log.Warn("platform api call rejected", "upstream_status", apiErr.StatusCode)
		httpx.WriteError(w, apiErr.StatusCode, "upstream_error", apiErr.Body)
		return
	}

	log.Error("platform api call failed", "err", err)
	httpx.WriteError(w, http.StatusBadGateway, "upstream_error", "the platform call failed")
}
