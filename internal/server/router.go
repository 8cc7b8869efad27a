// Package server assembles the HTTP surface: the session-backed /auth routes, the bearer-token
// /api/v1 routes, /healthz and /metrics.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	apihandler "outreach-tracker/backend/internal/api/handler"
	"outreach-tracker/backend/internal/audit"
	auditrepo "outreach-tracker/backend/internal/audit/repository"
	healthhandler "outreach-tracker/backend/internal/health/handler"
	identityhandler "outreach-tracker/backend/internal/identity/handler"
	identityservice "outreach-tracker/backend/internal/identity/service"
	"outreach-tracker/backend/internal/metrics"
	"outreach-tracker/backend/internal/platform/httpjson"
	"outreach-tracker/backend/internal/policy/engine"
	"outreach-tracker/backend/internal/server/middleware"
	sessionservice "outreach-tracker/backend/internal/session/service"
	"outreach-tracker/backend/internal/telemetry"
)

// APIPrefix is where the bearer-token API is mounted.
const APIPrefix = "/api/v1"

// Deps holds what the router wires together. Auth, Sessions, Tokens, Users and Authorizer are required.
type Deps struct {
	Auth       *identityservice.AuthService
	Sessions   *sessionservice.Manager
	Tokens     middleware.TokenVerifier
	Users      apihandler.Directory
	Authorizer engine.Authorizer
	// AuditRepo stores audit entries for API writes and serves GET /api/v1/audit. Nil disables both.
	AuditRepo auditrepo.Repository
	// Events receives 401/403 telemetry. Nil disables emission.
	Events telemetry.EventEmitter
	// Health maps check names to probes for /healthz.
	Health map[string]healthhandler.Checker
	// Metrics serves the Prometheus registry on /metrics.
	Metrics bool
	// Tracing wraps the router with otelhttp so spans go to the global tracer provider.
	Tracing     bool
	ServiceName string
	Logger      *zap.Logger
}

// NewRouter returns the application handler.
//
// Order: RequestContext and LogRequests wrap everything, including unmatched paths. Observe runs as
// router middleware so it sees route templates. The /api/v1 subrouter adds Authenticate then Audit;
// per-route role guards sit inside them.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Error(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpjson.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	r.Use(middleware.Observe(deps.Events, logger))

	r.Handle("/healthz", healthhandler.NewServer(deps.Health, logger)).Methods(http.MethodGet)
	if deps.Metrics {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	var auditLogger audit.AuditLogger
	if deps.AuditRepo != nil {
		auditLogger = audit.NewLogger(deps.AuditRepo, logger)
	}
	api := r.PathPrefix(APIPrefix).Subrouter()
	api.Use(middleware.Authenticate(deps.Tokens), middleware.Audit(auditLogger))
	apihandler.NewAPIHandler(deps.Users, deps.AuditRepo, deps.Authorizer, logger).Register(api)

	identityhandler.NewAuthHandler(deps.Auth, deps.Sessions, logger).Register(r)

	var h http.Handler = middleware.LogRequests(logger)(r)
	h = middleware.RequestContext(h)
	if deps.Tracing {
		name := deps.ServiceName
		if name == "" {
			name = "outreach-tracker"
		}
		h = otelhttp.NewHandler(h, name)
	}
	return h
}
