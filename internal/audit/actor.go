package audit

import "context"

// SystemActor is recorded as created_by/updated_by when no authenticated actor is in the context.
const SystemActor = "system"

type (
	actorKey    struct{}
	clientIPKey struct{}
)

// WithActor returns a context carrying the eid of the user performing writes.
func WithActor(ctx context.Context, eid string) context.Context {
	if eid == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, eid)
}

// ActorFromContext returns the actor eid from ctx, or SystemActor.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return SystemActor
}

// WithClientIP returns a context carrying the request's client address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the client address from ctx, or "unknown".
func ClientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
