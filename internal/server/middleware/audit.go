package middleware

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"outreach-tracker/backend/internal/audit"
)

// Audit returns middleware that records an audit entry for every successful write (PUT, POST, DELETE)
// made with a token identity. Action and resource come from the route template; the affected id, if any,
// goes into metadata. Best-effort: the response is never affected.
func Audit(logger audit.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if logger == nil || !isWrite(r.Method) || rec.code() >= 400 {
				return
			}
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				return
			}
			ar := audit.ParseRoute(r.Method, routeTemplate(r))
			meta := ""
			if target := muxVar(r, "id"); target != "" {
				meta = "target=" + target
			}
			logger.LogEvent(r.Context(), audit.Event{
				UserID:   id.UserID,
				EID:      id.EID,
				Action:   ar.Action,
				Resource: ar.Resource,
				Metadata: meta,
			})
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func muxVar(r *http.Request, name string) string {
	v := mux.Vars(r)[name]
	if _, err := strconv.ParseInt(v, 10, 64); err != nil {
		return ""
	}
	return v
}
