// Package service implements the session gateway: CAS or forced login into a server-side session,
// access token issuance for that session, refresh-token exchange and logout.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"outreach-tracker/backend/internal/audit"
	"outreach-tracker/backend/internal/cas"
	"outreach-tracker/backend/internal/metrics"
	"outreach-tracker/backend/internal/security"
	sessiondomain "outreach-tracker/backend/internal/session/domain"
	"outreach-tracker/backend/internal/telemetry"
	userdomain "outreach-tracker/backend/internal/user/domain"
	userservice "outreach-tracker/backend/internal/user/service"
)

// Sentinel errors; the handler maps every one of them to 401 with Message(err) as the body.
var (
	ErrNoSession            = errors.New("no session established")
	ErrRefreshTokenMissing  = errors.New("refresh token missing")
	ErrRefreshTokenInvalid  = errors.New("refresh token failed verification")
	ErrRefreshTokenData     = errors.New("refresh token carries no refresh value")
	ErrRefreshTokenNotFound = errors.New("refresh value not held by any user")
	// ErrSessionUserGone means the session is authenticated as a user that no longer exists. It matches
	// ErrNoSession; callers should destroy the session.
	ErrSessionUserGone = fmt.Errorf("%w: session user no longer exists", ErrNoSession)
)

// LoginPath is the route CAS returns the browser to with a service ticket.
const LoginPath = "/auth/login"

// Operation names recorded in metrics.
const (
	opLogin   = "login"
	opToken   = "token"
	opRefresh = "refresh"
	opLogout  = "logout"
)

// UserDirectory is the subset of the user directory the gateway needs.
type UserDirectory interface {
	FindOrCreate(ctx context.Context, eid string) (*userdomain.User, error)
	FindByID(ctx context.Context, id int64) (*userdomain.User, error)
	FindByRefreshToken(ctx context.Context, value string) (*userdomain.User, error)
	EnsureRefreshToken(ctx context.Context, userID int64) (string, error)
	ClearRefreshToken(ctx context.Context, userID int64) error
}

// SSO is the single sign-on provider. *cas.Client implements it.
type SSO interface {
	DevUser() (string, bool)
	Service(path string) string
	LoginURL(service string) string
	LogoutURL(returnTo string) string
	Validate(ctx context.Context, ticket, service string) (*cas.Principal, error)
}

// Config holds gateway switches.
type Config struct {
	// ForceAuth accepts an eid supplied on the login request instead of asking CAS. Never set in production.
	ForceAuth bool
	// LogoutReturnURL is where CAS sends the browser after single sign-out.
	LogoutReturnURL string
}

// LoginRequest carries the query parameters of GET /auth/login.
type LoginRequest struct {
	EID    string
	Ticket string
}

// LoginResult tells the handler where to send the browser and whether the session changed.
type LoginResult struct {
	Redirect      string
	SaveSession   bool
	Authenticated bool
}

// TokenResult is an issued access token.
type TokenResult struct {
	Token     string
	ExpiresAt time.Time
}

// AuthService is the session gateway.
type AuthService struct {
	users  UserDirectory
	tokens *security.TokenIssuer
	sso    SSO
	cfg    Config
	audit  audit.AuditLogger
	events telemetry.EventEmitter
	logger *zap.Logger
}

// NewAuthService returns an AuthService. auditLogger and events may be nil.
func NewAuthService(
	users UserDirectory,
	tokens *security.TokenIssuer,
	sso SSO,
	cfg Config,
	auditLogger audit.AuditLogger,
	events telemetry.EventEmitter,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = telemetry.Nop{}
	}
	return &AuthService{
		users:  users,
		tokens: tokens,
		sso:    sso,
		cfg:    cfg,
		audit:  auditLogger,
		events: events,
		logger: logger.Named("auth"),
	}
}

// Login advances s through Anonymous -> PendingSSO -> Authenticated. It never fails on the SSO side:
// a rejected ticket leaves the session anonymous and sends the browser home.
func (s *AuthService) Login(ctx context.Context, sess *sessiondomain.Session, req LoginRequest) (*LoginResult, error) {
	res := &LoginResult{Redirect: "/"}
	if sess.Authenticated() {
		res.Authenticated = true
		return res, nil
	}

	eid := ""
	switch {
	case s.cfg.ForceAuth && req.EID != "":
		eid = req.EID
	case sess.CASUser != "":
		eid = sess.CASUser
	default:
		principal, pending, err := s.confirmSSO(ctx, req.Ticket)
		if err != nil {
			s.recordLogin(ctx, 0, "", err)
			return res, nil
		}
		if pending {
			res.Redirect = s.sso.LoginURL(s.sso.Service(LoginPath))
			return res, nil
		}
		sess.CASUser = principal.User
		res.SaveSession = true
		eid = principal.User
	}

	user, err := s.users.FindOrCreate(ctx, eid)
	if err != nil {
		s.recordLogin(ctx, 0, eid, err)
		if errors.Is(err, userservice.ErrInvalidEID) {
			return res, nil
		}
		return nil, fmt.Errorf("login %q: %w", eid, err)
	}
	sess.UserID = user.ID
	sess.EID = user.EID
	res.SaveSession = true
	res.Authenticated = true
	s.recordLogin(ctx, user.ID, user.EID, nil)
	return res, nil
}

// confirmSSO returns the CAS principal, or pending=true when the browser must first visit CAS.
func (s *AuthService) confirmSSO(ctx context.Context, ticket string) (*cas.Principal, bool, error) {
	if _, dev := s.sso.DevUser(); !dev && ticket == "" {
		return nil, true, nil
	}
	p, err := s.sso.Validate(ctx, ticket, s.sso.Service(LoginPath))
	if err != nil {
		s.logger.Warn("cas ticket validation failed", zap.Error(err))
		return nil, false, err
	}
	return p, false, nil
}

// Token issues an access token for the session's user.
func (s *AuthService) Token(ctx context.Context, sess *sessiondomain.Session) (*TokenResult, error) {
	if sess == nil || !sess.Authenticated() {
		metrics.RecordAuth(opToken, ErrNoSession)
		return nil, ErrNoSession
	}
	res, err := s.IssueAccessToken(ctx, sess.UserID)
	if errors.Is(err, userservice.ErrUserNotFound) {
		err = ErrSessionUserGone
	}
	metrics.RecordAuth(opToken, err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, sess.UserID, sess.EID, audit.ActionTokenIssued, audit.ResourceToken, telemetry.EventTokenIssued, "")
	return res, nil
}

// IssueAccessToken signs an access token carrying the user's current roles and a refresh token for the
// user's stored refresh value. The stored value is generated on first use and then reused.
func (s *AuthService) IssueAccessToken(ctx context.Context, userID int64) (*TokenResult, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	value, err := s.users.EnsureRefreshToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.tokens.IssueRefresh(value)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	token, exp, err := s.tokens.IssueAccess(security.AccessSubject{
		UserID:       user.ID,
		EID:          user.EID,
		Roles:        user.RoleNames(),
		RefreshToken: refresh,
	})
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	return &TokenResult{Token: token, ExpiresAt: exp}, nil
}

// Refresh exchanges a refresh token for a new access token. No server-side session is needed. The stored
// refresh value is not rotated, so every refresh token issued for it keeps working until logout.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenResult, error) {
	user, err := s.refreshUser(ctx, refreshToken)
	if err != nil {
		metrics.RecordAuth(opRefresh, err)
		s.record(ctx, 0, "", audit.ActionRefreshRejected, audit.ResourceToken, telemetry.EventRefreshRejected, err.Error())
		return nil, err
	}
	res, err := s.IssueAccessToken(ctx, user.ID)
	metrics.RecordAuth(opRefresh, err)
	if err != nil {
		return nil, err
	}
	s.record(ctx, user.ID, user.EID, audit.ActionTokenRefreshed, audit.ResourceToken, telemetry.EventTokenRefreshed, "")
	return res, nil
}

func (s *AuthService) refreshUser(ctx context.Context, refreshToken string) (*userdomain.User, error) {
	if refreshToken == "" {
		return nil, ErrRefreshTokenMissing
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshTokenInvalid, err)
	}
	if claims.RefreshToken == "" {
		return nil, ErrRefreshTokenData
	}
	user, err := s.users.FindByRefreshToken(ctx, claims.RefreshToken)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrRefreshTokenNotFound
	}
	return user, nil
}

// Logout clears the user's refresh value and returns where to send the browser: the CAS logout page for
// CAS sessions, home otherwise. The caller destroys the session.
func (s *AuthService) Logout(ctx context.Context, sess *sessiondomain.Session) (string, error) {
	if sess == nil {
		return "/", nil
	}
	if sess.Authenticated() {
		err := s.users.ClearRefreshToken(ctx, sess.UserID)
		metrics.RecordAuth(opLogout, err)
		if err != nil {
			return "", fmt.Errorf("clear refresh token: %w", err)
		}
		s.record(ctx, sess.UserID, sess.EID, audit.ActionLogout, audit.ResourceSession, telemetry.EventLogout, "")
	}
	if sess.CASUser != "" {
		if _, dev := s.sso.DevUser(); !dev {
			return s.sso.LogoutURL(s.cfg.LogoutReturnURL), nil
		}
	}
	return "/", nil
}

// CurrentUser returns the session's user, nil for anonymous sessions, or ErrNoSession when the user
// record no longer exists.
func (s *AuthService) CurrentUser(ctx context.Context, sess *sessiondomain.Session) (*userdomain.User, error) {
	if sess == nil || !sess.Authenticated() {
		return nil, nil
	}
	u, err := s.users.FindByID(ctx, sess.UserID)
	if errors.Is(err, userservice.ErrUserNotFound) {
		return nil, ErrSessionUserGone
	}
	return u, err
}

// Message is the client-facing text for a gateway error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrNoSession):
		return "No Session Established, Please Login"
	case errors.Is(err, ErrRefreshTokenMissing):
		return "Refresh Token Not Found in Request Body"
	case errors.Is(err, ErrRefreshTokenInvalid):
		return "Error Parsing Token"
	case errors.Is(err, ErrRefreshTokenData):
		return "Token Data Invalid, Please Login"
	case errors.Is(err, ErrRefreshTokenNotFound):
		return "Refresh Token Not Found in Database, Session Expired, Please Login"
	default:
		return ""
	}
}

func (s *AuthService) recordLogin(ctx context.Context, userID int64, eid string, err error) {
	metrics.RecordAuth(opLogin, err)
	if err != nil {
		s.record(ctx, userID, eid, audit.ActionLoginFailure, audit.ResourceSession, telemetry.EventLoginFailed, err.Error())
		return
	}
	s.record(ctx, userID, eid, audit.ActionLogin, audit.ResourceSession, telemetry.EventLogin, "")
}

func (s *AuthService) record(ctx context.Context, userID int64, eid, action, resource, eventType, reason string) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, audit.Event{UserID: userID, EID: eid, Action: action, Resource: resource, Metadata: reason})
	}
	ev := telemetry.NewEvent(eventType)
	ev.UserID, ev.EID, ev.Reason = userID, eid, reason
	ev.IP = audit.ClientIPFromContext(ctx)
	if err := s.events.Emit(ctx, ev); err != nil {
		s.logger.Warn("emit auth event", zap.String("event_type", eventType), zap.Error(err))
	}
	s.logger.Info(action,
		zap.String("eid", eid),
		zap.String("user_id", strconv.FormatInt(userID, 10)),
		zap.String("reason", reason))
}
