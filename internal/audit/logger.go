// Package audit records who did what: authentication lifecycle events and admin writes.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"outreach-tracker/backend/internal/audit/domain"
	auditrepo "outreach-tracker/backend/internal/audit/repository"
)

// Authentication lifecycle actions.
const (
	ActionLogin           = "login"
	ActionLoginFailure    = "login_failure"
	ActionTokenIssued     = "token_issued"
	ActionTokenRefreshed  = "token_refreshed"
	ActionRefreshRejected = "refresh_rejected"
	ActionLogout          = "logout"

	ResourceSession = "session"
	ResourceToken   = "token"
)

// Event is one audit entry before persistence.
type Event struct {
	UserID   int64
	EID      string
	Action   string
	Resource string
	Metadata string
}

// AuditLogger writes a single audit event. LogEvent is best-effort: failures are logged and
// do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, ev Event)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo   auditrepo.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. A nil repo makes LogEvent a no-op.
func NewLogger(repo auditrepo.Repository, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{repo: repo, logger: logger.Named("audit"), now: time.Now}
}

// LogEvent writes one audit log entry. The client IP comes from ctx (see WithClientIP).
func (l *Logger) LogEvent(ctx context.Context, ev Event) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    ev.UserID,
		EID:       ev.EID,
		Action:    ev.Action,
		Resource:  ev.Resource,
		IP:        ClientIPFromContext(ctx),
		Metadata:  ev.Metadata,
		CreatedAt: l.now().UTC(),
	}
	if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		l.logger.Warn("failed to log event",
			zap.String("action", ev.Action), zap.String("resource", ev.Resource), zap.Error(err))
	}
}
