// Package middleware holds the HTTP middleware chain: request context, access logging, the bearer token
// request filter, audit of admin writes and auth telemetry.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"outreach-tracker/backend/internal/audit"
	"outreach-tracker/backend/internal/metrics"
	"outreach-tracker/backend/internal/platform/httpjson"
	"outreach-tracker/backend/internal/security"
)

const bearerPrefix = "bearer "

// Client-facing 401 messages.
const (
	MsgMissingAuthorization = "Missing Authorization Header"
	MsgTokenExpired         = "Token Expired"
	MsgInvalidToken         = "Invalid Token"
)

// TokenVerifier verifies access tokens. *security.TokenIssuer implements it.
type TokenVerifier interface {
	VerifyAccess(token string) (*security.AccessClaims, error)
}

// Authenticate returns middleware that requires a valid Bearer access token and stores the caller's
// Identity in the request context. Every failure is 401; expired tokens get their own message so
// clients know a refresh may help.
func Authenticate(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				metrics.RecordRejection("missing")
				httpjson.Error(w, http.StatusUnauthorized, MsgMissingAuthorization)
				return
			}
			claims, err := tokens.VerifyAccess(token)
			if err != nil {
				if errors.Is(err, security.ErrTokenExpired) {
					metrics.RecordRejection("expired")
					httpjson.Error(w, http.StatusUnauthorized, MsgTokenExpired)
					return
				}
				metrics.RecordRejection("invalid")
				httpjson.Error(w, http.StatusUnauthorized, MsgInvalidToken)
				return
			}
			ctx := WithIdentity(r.Context(), Identity{UserID: claims.UserID, EID: claims.EID, Roles: claims.Roles})
			ctx = audit.WithActor(ctx, claims.EID)
			SetRemoteUser(ctx, "t:"+claims.EID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
