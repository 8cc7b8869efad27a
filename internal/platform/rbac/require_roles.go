// Package rbac gates routes on the caller's roles: 401 when the request carries no identity,
// 403 when the identity lacks every required role.
package rbac

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"outreach-tracker/backend/internal/metrics"
	"outreach-tracker/backend/internal/platform/httpjson"
	"outreach-tracker/backend/internal/policy/engine"
	"outreach-tracker/backend/internal/server/middleware"
	userdomain "outreach-tracker/backend/internal/user/domain"
)

// Client-facing 403 messages.
const (
	MsgAdminsOnly        = "Admins Only"
	MsgUsersOrAdminsOnly = "Users or Admins Only"
)

// RequireRoles returns middleware that lets the request through when the caller holds at least one of
// roles, as decided by authz. Must run after middleware.Authenticate. Authorizer failures are logged
// to logger, which may be nil.
func RequireRoles(authz engine.Authorizer, logger *zap.Logger, message string, roles ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("rbac")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := middleware.IdentityFromContext(r.Context())
			if !ok {
				httpjson.Error(w, http.StatusUnauthorized, middleware.MsgMissingAuthorization)
				return
			}
			allowed, err := authz.Allow(r.Context(), id.Roles, roles)
			if err != nil {
				logger.Error("authorization check failed",
					zap.String("route", routeOf(r)),
					zap.Int64("user_id", id.UserID),
					zap.Strings("required", roles),
					zap.Error(err))
				httpjson.Error(w, http.StatusInternalServerError, "Authorization Check Failed")
				return
			}
			if !allowed {
				metrics.RecordDenial(routeOf(r))
				httpjson.Error(w, http.StatusForbidden, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminOnly admits admins.
func AdminOnly(authz engine.Authorizer, logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRoles(authz, logger, MsgAdminsOnly, userdomain.RoleAdmin)
}

// UserOrAdminOnly admits users and admins; an authenticated identity with no roles is refused.
func UserOrAdminOnly(authz engine.Authorizer, logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRoles(authz, logger, MsgUsersOrAdminsOnly, userdomain.RoleUser, userdomain.RoleAdmin)
}

func routeOf(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
