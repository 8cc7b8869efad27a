package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"outreach-tracker/backend/internal/audit"
	"outreach-tracker/backend/internal/platform/clientip"
)

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// RequestContext assigns a request id (echoed in X-Request-Id) and stores the client IP for auditing.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx = audit.WithClientIP(ctx, clientip.FromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LogRequests writes one access log line per request. The remote user is "-" unless a later handler
// called SetRemoteUser.
func LogRequests(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			user := "-"
			rec := &statusRecorder{ResponseWriter: w}
			ctx := context.WithValue(r.Context(), remoteUserKey, &user)
			next.ServeHTTP(rec, r.WithContext(ctx))
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.code()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_user", user),
				zap.String("client_ip", audit.ClientIPFromContext(r.Context())),
				zap.String("request_id", RequestIDFromContext(r.Context())),
			)
		})
	}
}

// routeTemplate returns the matched mux route template, or the raw path outside a router.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
