package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"outreach-tracker/backend/internal/audit"
	auditrepo "outreach-tracker/backend/internal/audit/repository"
	"outreach-tracker/backend/internal/cas"
	"outreach-tracker/backend/internal/security"
	sessiondomain "outreach-tracker/backend/internal/session/domain"
	userrepo "outreach-tracker/backend/internal/user/repository"
	userservice "outreach-tracker/backend/internal/user/service"
)

// fakeSSO accepts the tickets in valid and rejects everything else.
type fakeSSO struct {
	valid   map[string]string
	devUser string
}

func (f *fakeSSO) DevUser() (string, bool)    { return f.devUser, f.devUser != "" }
func (f *fakeSSO) Service(path string) string { return "http://app.test" + path }
func (f *fakeSSO) LoginURL(service string) string {
	return "https://cas.test/login?service=" + url.QueryEscape(service)
}
func (f *fakeSSO) LogoutURL(returnTo string) string {
	return "https://cas.test/logout?service=" + url.QueryEscape(returnTo)
}
func (f *fakeSSO) Validate(_ context.Context, ticket, _ string) (*cas.Principal, error) {
	if f.devUser != "" {
		return &cas.Principal{User: f.devUser}, nil
	}
	if u, ok := f.valid[ticket]; ok {
		return &cas.Principal{User: u}, nil
	}
	return nil, cas.ErrTicketRejected
}

type fixture struct {
	svc    *AuthService
	dir    *userservice.Directory
	users  *userrepo.MemoryRepository
	audits *auditrepo.MemoryRepository
	tokens *security.TokenIssuer
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	users := userrepo.NewMemoryRepository()
	audits := auditrepo.NewMemoryRepository()
	dir := userservice.NewDirectory(users, nil)
	tokens := security.NewTestTokenIssuer()
	sso := &fakeSSO{valid: map[string]string{"ST-good": "russfeld"}}
	svc := NewAuthService(dir, tokens, sso, cfg, audit.NewLogger(audits, nil), nil, nil)
	return &fixture{svc: svc, dir: dir, users: users, audits: audits, tokens: tokens}
}

func (f *fixture) login(t *testing.T, eid string) *sessiondomain.Session {
	t.Helper()
	sess := &sessiondomain.Session{ID: "s1"}
	res, err := f.svc.Login(context.Background(), sess, LoginRequest{EID: eid})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.Authenticated {
		t.Fatalf("Login(%q) did not authenticate", eid)
	}
	return sess
}

func (f *fixture) auditActions(t *testing.T) []string {
	t.Helper()
	logs, err := f.audits.List(context.Background(), 100, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var out []string
	for _, l := range logs {
		out = append(out, l.Action)
	}
	return out
}

func TestLogin_ForceAuth(t *testing.T) {
	f := newFixture(t, Config{ForceAuth: true})
	sess := &sessiondomain.Session{ID: "s1"}
	res, err := f.svc.Login(context.Background(), sess, LoginRequest{EID: "new-user"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Redirect != "/" || !res.SaveSession || !res.Authenticated {
		t.Fatalf("Login = %+v", res)
	}
	if sess.UserID == 0 || sess.EID != "new-user" || sess.CASUser != "" {
		t.Fatalf("session = %+v", sess)
	}
	u, err := f.dir.FindByID(context.Background(), sess.UserID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(u.Roles) != 0 {
		t.Errorf("new user roles = %v, want none", u.Roles)
	}
}

func TestLogin_ForceAuthDisabledBouncesToCAS(t *testing.T) {
	f := newFixture(t, Config{})
	sess := &sessiondomain.Session{ID: "s1"}
	res, err := f.svc.Login(context.Background(), sess, LoginRequest{EID: "mallory"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Authenticated || res.SaveSession {
		t.Fatalf("Login = %+v; want pending SSO", res)
	}
	if !strings.HasPrefix(res.Redirect, "https://cas.test/login?service=") ||
		!strings.Contains(res.Redirect, url.QueryEscape("http://app.test/auth/login")) {
		t.Errorf("Redirect = %s", res.Redirect)
	}
}

func TestLogin_CASTicket(t *testing.T) {
	f := newFixture(t, Config{})
	sess := &sessiondomain.Session{ID: "s1"}
	res, err := f.svc.Login(context.Background(), sess, LoginRequest{Ticket: "ST-good"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Redirect != "/" || !res.Authenticated {
		t.Fatalf("Login = %+v", res)
	}
	if sess.CASUser != "russfeld" || sess.EID != "russfeld" {
		t.Errorf("session = %+v", sess)
	}
}

func TestLogin_CASTicketRejected(t *testing.T) {
	f := newFixture(t, Config{})
	sess := &sessiondomain.Session{ID: "s1"}
	res, err := f.svc.Login(context.Background(), sess, LoginRequest{Ticket: "ST-forged"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Redirect != "/" || res.Authenticated || sess.Authenticated() {
		t.Fatalf("Login = %+v, session %+v", res, sess)
	}
	if got := f.auditActions(t); len(got) != 1 || got[0] != audit.ActionLoginFailure {
		t.Errorf("audit = %v", got)
	}
}

func TestLogin_CASDevMode(t *testing.T) {
	f := newFixture(t, Config{})
	f.svc.sso = &fakeSSO{devUser: "dev-admin"}
	sess := &sessiondomain.Session{ID: "s1"}
	res, err := f.svc.Login(context.Background(), sess, LoginRequest{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.Authenticated || sess.EID != "dev-admin" {
		t.Fatalf("Login = %+v, session %+v", res, sess)
	}
}

func TestLogin_AlreadyAuthenticated(t *testing.T) {
	f := newFixture(t, Config{ForceAuth: true})
	sess := f.login(t, "alice")
	before := sess.UserID
	res, err := f.svc.Login(context.Background(), sess, LoginRequest{EID: "bob"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.SaveSession || sess.UserID != before || sess.EID != "alice" {
		t.Errorf("second login changed the session: %+v %+v", res, sess)
	}
}

func TestLogin_InvalidEID(t *testing.T) {
	f := newFixture(t, Config{ForceAuth: true})
	sess := &sessiondomain.Session{ID: "s1"}
	res, err := f.svc.Login(context.Background(), sess, LoginRequest{EID: strings.Repeat("x", 40)})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Authenticated || res.Redirect != "/" {
		t.Errorf("Login = %+v", res)
	}
}

func TestToken_NoSession(t *testing.T) {
	f := newFixture(t, Config{})
	if _, err := f.svc.Token(context.Background(), nil); !errors.Is(err, ErrNoSession) {
		t.Errorf("nil session: want ErrNoSession, got %v", err)
	}
	if _, err := f.svc.Token(context.Background(), &sessiondomain.Session{ID: "anon"}); !errors.Is(err, ErrNoSession) {
		t.Errorf("anonymous session: want ErrNoSession, got %v", err)
	}
}

func TestToken_CarriesRolesAndRefresh(t *testing.T) {
	f := newFixture(t, Config{ForceAuth: true})
	ctx := context.Background()
	sess := f.login(t, "alice")
	if _, err := f.users.Update(ctx, sess.UserID, "Alice", []int64{1, 2}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	res, err := f.svc.Token(ctx, sess)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	claims, err := f.tokens.VerifyAccess(res.Token)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.UserID != sess.UserID || claims.EID != "alice" {
		t.Errorf("claims identity = %d/%s", claims.UserID, claims.EID)
	}
	if !claims.HasRole("admin") || !claims.HasRole("user") || len(claims.Roles) != 2 {
		t.Errorf("roles = %v", claims.Roles)
	}
	rc, err := f.tokens.VerifyRefresh(claims.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	u, _ := f.dir.FindByID(ctx, sess.UserID)
	if rc.RefreshToken == "" || rc.RefreshToken != u.RefreshToken {
		t.Errorf("embedded refresh value %q does not match stored %q", rc.RefreshToken, u.RefreshToken)
	}

	again, err := f.svc.Token(ctx, sess)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	c2, _ := f.tokens.VerifyAccess(again.Token)
	rc2, _ := f.tokens.VerifyRefresh(c2.RefreshToken)
	if rc2.RefreshToken != rc.RefreshToken {
		t.Error("stored refresh value should be reused across issuances")
	}
}

func TestToken_UserDeleted(t *testing.T) {
	f := newFixture(t, Config{ForceAuth: true})
	sess := f.login(t, "alice")
	if _, err := f.users.Delete(context.Background(), sess.UserID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err := f.svc.Token(context.Background(), sess)
	if !errors.Is(err, ErrSessionUserGone) || !errors.Is(err, ErrNoSession) {
		t.Errorf("want ErrSessionUserGone matching ErrNoSession, got %v", err)
	}
	if Message(err) != "No Session Established, Please Login" {
		t.Errorf("Message = %q", Message(err))
	}
}

func refreshTokenFor(t *testing.T, f *fixture, sess *sessiondomain.Session) string {
	t.Helper()
	res, err := f.svc.Token(context.Background(), sess)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	claims, err := f.tokens.VerifyAccess(res.Token)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	return claims.RefreshToken
}

func TestRefresh_NoRotation(t *testing.T) {
	f := newFixture(t, Config{ForceAuth: true})
	sess := f.login(t, "alice")
	refresh := refreshTokenFor(t, f, sess)

	for i := 0; i < 3; i++ {
		res, err := f.svc.Refresh(context.Background(), refresh)
		if err != nil {
			t.Fatalf("Refresh #%d: %v", i+1, err)
		}
		claims, err := f.tokens.VerifyAccess(res.Token)
		if err != nil || claims.EID != "alice" {
			t.Fatalf("refreshed token claims = %+v, %v", claims, err)
		}
	}
}

func TestRefresh_Errors(t *testing.T) {
	f := newFixture(t, Config{ForceAuth: true})
	f.login(t, "alice")

	past := security.NewTestTokenIssuer().WithClock(func() time.Time { return time.Now().Add(-7 * time.Hour) })
	expired, _, err := past.IssueRefresh("whatever")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	unknown, _, err := f.tokens.IssueRefresh("never-issued")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "", ErrRefreshTokenMissing},
		{"garbage", "not.a.jwt", ErrRefreshTokenInvalid},
		{"expired", expired, ErrRefreshTokenInvalid},
		{"unknown value", unknown, ErrRefreshTokenNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Refresh(context.Background(), tt.token)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Refresh: want %v, got %v", tt.want, err)
			}
			if Message(err) == "" {
				t.Errorf("no client message for %v", err)
			}
		})
	}
}

func TestRefresh_ExpiredWrapsTokenExpired(t *testing.T) {
	f := newFixture(t, Config{})
	past := security.NewTestTokenIssuer().WithClock(func() time.Time { return time.Now().Add(-7 * time.Hour) })
	expired, _, _ := past.IssueRefresh("v")
	_, err := f.svc.Refresh(context.Background(), expired)
	if !errors.Is(err, security.ErrTokenExpired) {
		t.Errorf("want ErrTokenExpired in chain, got %v", err)
	}
}

func TestLogout_InvalidatesRefreshToken(t *testing.T) {
	f := newFixture(t, Config{ForceAuth: true})
	ctx := context.Background()
	sess := f.login(t, "alice")
	refresh := refreshTokenFor(t, f, sess)

	redirect, err := f.svc.Logout(ctx, sess)
	if err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if redirect != "/" {
		t.Errorf("redirect = %q, want /", redirect)
	}
	if _, err := f.tokens.VerifyRefresh(refresh); err != nil {
		t.Fatalf("refresh token should still verify cryptographically: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, refresh); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("Refresh after logout: want ErrRefreshTokenNotFound, got %v", err)
	}
	actions := f.auditActions(t)
	if len(actions) == 0 || actions[0] != audit.ActionRefreshRejected {
		t.Errorf("newest audit action = %v", actions)
	}
}

func TestLogout_CASSession(t *testing.T) {
	f := newFixture(t, Config{LogoutReturnURL: "http://app.test/"})
	sess := &sessiondomain.Session{ID: "s1"}
	if _, err := f.svc.Login(context.Background(), sess, LoginRequest{Ticket: "ST-good"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	redirect, err := f.svc.Logout(context.Background(), sess)
	if err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if redirect != "https://cas.test/logout?service="+url.QueryEscape("http://app.test/") {
		t.Errorf("redirect = %s", redirect)
	}
}

func TestLogout_Anonymous(t *testing.T) {
	f := newFixture(t, Config{})
	for _, sess := range []*sessiondomain.Session{nil, {ID: "anon"}} {
		redirect, err := f.svc.Logout(context.Background(), sess)
		if err != nil || redirect != "/" {
			t.Errorf("Logout(%+v) = %q, %v", sess, redirect, err)
		}
	}
}

func TestCurrentUser(t *testing.T) {
	f := newFixture(t, Config{ForceAuth: true})
	ctx := context.Background()
	if u, err := f.svc.CurrentUser(ctx, &sessiondomain.Session{ID: "anon"}); u != nil || err != nil {
		t.Fatalf("anonymous CurrentUser = %+v, %v", u, err)
	}
	sess := f.login(t, "alice")
	u, err := f.svc.CurrentUser(ctx, sess)
	if err != nil || u == nil || u.EID != "alice" {
		t.Fatalf("CurrentUser = %+v, %v", u, err)
	}
	if _, err := f.users.Delete(ctx, sess.UserID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.CurrentUser(ctx, sess); !errors.Is(err, ErrNoSession) {
		t.Errorf("deleted user: want ErrNoSession, got %v", err)
	}
}
