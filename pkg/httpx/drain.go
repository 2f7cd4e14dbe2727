package httpx

import (
	"net/http"
	"strconv"
)

// DrainGate is implemented by the shutdown orchestrator. Begin registers a
// request with the in-flight set and returns a release func, or ok=false when
// the service is draining and no new work may start.
type DrainGate interface {
	Begin() (release func(), ok bool)
}

// DrainMiddleware tracks in-flight requests against the gate and rejects new
// work with 503 once draining has begun, so load balancers retry elsewhere.
// Exempt paths (health probes) are never gated or counted.
func DrainMiddleware(gate DrainGate, retryAfterSeconds int, exemptPaths ...string) Middleware {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			release, ok := gate.Begin()
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
				WriteError(w, http.StatusServiceUnavailable,
					"service_draining", "service is shutting down, retry later")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
