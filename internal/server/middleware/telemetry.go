package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"outreach-tracker/backend/internal/audit"
	"outreach-tracker/backend/internal/metrics"
	"outreach-tracker/backend/internal/telemetry"
)

// Observe returns middleware that records request metrics by route template and emits an auth telemetry
// event for every 401 and 403. Emission is best-effort; pass a telemetry.Async to keep it off the request path.
func Observe(events telemetry.EventEmitter, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			route := routeTemplate(r)
			metrics.RecordRequest(route, r.Method, rec.code(), time.Since(start))

			var eventType string
			switch rec.code() {
			case http.StatusUnauthorized:
				eventType = telemetry.EventUnauthenticated
			case http.StatusForbidden:
				eventType = telemetry.EventAccessDenied
			default:
				return
			}
			if events == nil {
				return
			}
			ev := telemetry.NewEvent(eventType)
			ev.IP = audit.ClientIPFromContext(r.Context())
			ev.Metadata = map[string]string{"method": r.Method, "route": route}
			if err := events.Emit(r.Context(), ev); err != nil {
				logger.Warn("emit request event", zap.String("event_type", eventType), zap.Error(err))
			}
		})
	}
}
