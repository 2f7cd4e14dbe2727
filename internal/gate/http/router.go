package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/sfgate/internal/gate/crm"
	"github.com/aussiebroadwan/sfgate/internal/gate/service"
	"github.com/aussiebroadwan/sfgate/pkg/httpx"
	"github.com/aussiebroadwan/sfgate/pkg/slogx"

	_ "github.com/aussiebroadwan/sfgate/api/gate" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	TokenStore *service.TokenStore
	Flow       *service.OAuthFlow
	Refresh    *service.RefreshCoordinator
	Cache      *service.ConnectionCache
	CRM        *crm.Client

	// Drain reports and gates in-flight work during shutdown. Optional; nil
	// disables drain behaviour (useful in tests).
	Drain DrainState
}

// DrainState is what the router needs from the shutdown orchestrator.
type DrainState interface {
	httpx.DrainGate
	Draining() bool
}

func NewRouter(buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerCRM()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			sfgate CRM Connection Broker API
//	@version		0.1.0
//	@description	Brokers per-user OAuth2 sessions against a Salesforce-style CRM platform:
//	@description	authorization-code login, encrypted token storage with automatic refresh,
//	@description	and thin pass-through access to the platform's REST data API.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/sfgate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	middlewares := r.middlewares
	if r.Drain != nil {
		middlewares = append([]httpx.Middleware{
			httpx.DrainMiddleware(r.Drain, 5, "/livez", "/readyz"),
		}, middlewares...)
	}
	httpx.Chain(r.Mux, middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	loginHandler := &LoginHandler{Flow: r.Flow, Logger: r.logger}
	callbackHandler := &CallbackHandler{
		Flow:       r.Flow,
		TokenStore: r.TokenStore,
		Logger:     r.logger,
	}
	logoutHandler := &LogoutHandler{
		Flow:       r.Flow,
		TokenStore: r.TokenStore,
		Logger:     r.logger,
	}
	sessionHandler := &SessionHandler{TokenStore: r.TokenStore}

	// GET /login - strict rate limit by IP (starts an authorization attempt)
	r.Mux.Handle("GET /v1/auth/login",
		httpx.Chain(http.HandlerFunc(loginHandler.HandleGet),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// GET /callback - strict rate limit by IP (state redemption)
	r.Mux.Handle("GET /v1/auth/callback",
		httpx.Chain(http.HandlerFunc(callbackHandler.HandleGet),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /logout - moderate rate limit by session
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(logoutHandler.HandlePost),
			httpx.RateLimitByCookie(httpx.ModerateLimit, SessionCookieName),
		),
	)

	// GET /session - lenient rate limit (polled by frontends)
	r.Mux.Handle("GET /v1/auth/session",
		httpx.Chain(http.HandlerFunc(sessionHandler.HandleGet),
			httpx.RateLimitByCookie(httpx.LenientLimit, SessionCookieName),
		),
	)
}

func (r *Router) registerCRM() {
	h := &CRMHandler{
		Refresh: r.Refresh,
		Cache:   r.Cache,
		CRM:     r.CRM,
		Logger:  r.logger,
	}

	// All pass-throughs are session-bound; moderate limits per session.
	r.Mux.Handle("GET /v1/crm/describe/{object}",
		httpx.Chain(http.HandlerFunc(h.HandleDescribe),
			httpx.RateLimitByCookie(httpx.ModerateLimit, SessionCookieName),
		),
	)
	r.Mux.Handle("POST /v1/crm/query",
		httpx.Chain(http.HandlerFunc(h.HandleQuery),
			httpx.RateLimitByCookie(httpx.ModerateLimit, SessionCookieName),
		),
	)
	r.Mux.Handle("POST /v1/crm/records/{object}",
		httpx.Chain(http.HandlerFunc(h.HandleCreateRecord),
			httpx.RateLimitByCookie(httpx.ModerateLimit, SessionCookieName),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.TokenStore, r.draining),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

// draining is evaluated per request so a Drain assigned after ApplyRoutes is
// still observed, matching the middleware in ServeHTTP.
func (r *Router) draining() bool {
	return r.Drain != nil && r.Drain.Draining()
}
