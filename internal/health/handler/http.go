// Package handler serves /healthz for load balancers and orchestrators.
package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"outreach-tracker/backend/internal/platform/httpjson"
)

const checkTimeout = 2 * time.Second

// Checker is one dependency probe. *sql.DB satisfies it through DBChecker; the policy
// authorizers satisfy it directly.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

// HealthCheck implements Checker.
func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// DBChecker probes the database with a ping.
func DBChecker(p Pinger) Checker {
	return CheckFunc(p.PingContext)
}

// Response is the /healthz body. Checks maps each probe name to "ok" or its error.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Server runs named checks on every request.
type Server struct {
	checks map[string]Checker
	logger *zap.Logger
}

// NewServer returns a health Server. Nil checkers are skipped.
func NewServer(checks map[string]Checker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	live := make(map[string]Checker, len(checks))
	for name, c := range checks {
		if c != nil {
			live[name] = c
		}
	}
	return &Server{checks: live, logger: logger.Named("health")}
}

// ServeHTTP answers 200 when every check passes and 503 otherwise.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	resp := Response{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for name, c := range s.checks {
		if err := c.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	httpjson.Write(w, status, resp)
}
