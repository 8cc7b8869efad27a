package middleware

import "context"

type contextKey struct{ name string }

var (
	identityKey   = contextKey{"identity"}
	remoteUserKey = contextKey{"remote_user"}
	requestIDKey  = contextKey{"request_id"}
)

// Identity is the caller established by a verified bearer token.
type Identity struct {
	UserID int64
	EID    string
	Roles  []string
}

// WithIdentity returns a context carrying id. Handlers and the role guard read it via IdentityFromContext.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity and true if the request passed Authenticate; otherwise false.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(identityKey).(Identity)
	return v, ok
}

// SetRemoteUser records who made the request for the access log: "t:<eid>" for a token identity,
// "s:<eid>" for a session identity. No-op outside LogRequests.
func SetRemoteUser(ctx context.Context, user string) {
	if p, ok := ctx.Value(remoteUserKey).(*string); ok {
		*p = user
	}
}

// RequestIDFromContext returns the request id assigned by RequestContext, or "".
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
