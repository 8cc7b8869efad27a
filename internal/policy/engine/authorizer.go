// Package engine decides whether a set of user roles satisfies a route's role requirement.
package engine

import (
	"context"
	"slices"
)

// Authorizer answers role-guard questions. Implementations must be safe for concurrent use.
type Authorizer interface {
	// Allow reports whether roles contains at least one of required. An empty required list allows nobody.
	Allow(ctx context.Context, roles, required []string) (bool, error)
}

// SetAuthorizer is the in-process set-membership Authorizer.
type SetAuthorizer struct{}

// Allow implements Authorizer.
func (SetAuthorizer) Allow(_ context.Context, roles, required []string) (bool, error) {
	for _, r := range roles {
		if slices.Contains(required, r) {
			return true, nil
		}
	}
	return false, nil
}

// HealthCheck always succeeds.
func (SetAuthorizer) HealthCheck(context.Context) error { return nil }
