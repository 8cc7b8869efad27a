package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

const allowQuery = "data.outreach.authz.allow"

// DefaultPolicy grants access when the user holds any of the required roles.
const DefaultPolicy = `package outreach.authz

default allow := false

allow if {
	some role in input.roles
	role in input.required
}
`

// OPAAuthorizer evaluates role requirements with an in-process Rego policy.
type OPAAuthorizer struct {
	query rego.PreparedEvalQuery
}

// NewOPAAuthorizer compiles policy (DefaultPolicy when empty). The policy must define data.outreach.authz.allow.
func NewOPAAuthorizer(ctx context.Context, policy string) (*OPAAuthorizer, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	q, err := rego.New(
		rego.Query(allowQuery),
		rego.Module("authz.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile authz policy: %w", err)
	}
	return &OPAAuthorizer{query: q}, nil
}

// Allow implements Authorizer.
func (a *OPAAuthorizer) Allow(ctx context.Context, roles, required []string) (bool, error) {
	input := map[string]interface{}{
		"roles":    toAny(roles),
		"required": toAny(required),
	}
	rs, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval authz policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, errors.New("authz policy returned no result")
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("authz policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return allowed, nil
}

// HealthCheck evaluates the policy against a known input. Returns nil on success.
func (a *OPAAuthorizer) HealthCheck(ctx context.Context) error {
	ok, err := a.Allow(ctx, []string{"user"}, []string{"user"})
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("authz policy denied a matching role")
	}
	return nil
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
