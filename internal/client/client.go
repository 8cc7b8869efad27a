// Package client is the consumer side of the auth API: a durable token store, bootstrap from the
// cookie session, and an http.RoundTripper that refreshes an expired token once per request.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Auth endpoints.
const (
	TokenPath  = "/auth/token"
	LoginPath  = "/auth/login"
	LogoutPath = "/auth/logout"
)

const defaultTimeout = 15 * time.Second

// ErrLoginRequired means neither the session nor the refresh token can produce an access token.
// The caller should send the user to LoginURL.
var ErrLoginRequired = errors.New("login required")

// StatusError is a non-2xx answer carrying the server's {"error": ...} message.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for /auth calls. Its Jar carries the session cookie; its
// Transport is also the base of the API transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client obtains and refreshes access tokens for one server.
type Client struct {
	base    *url.URL
	store   *TokenStore
	http    *http.Client
	logger  *zap.Logger
	refresh singleflight.Group
}

// New returns a Client for baseURL (e.g. http://localhost:3000).
func New(baseURL string, store *TokenStore, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", baseURL)
	}
	if store == nil {
		store = NewTokenStore(nil)
	}
	c := &Client{base: u, store: store}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("token_client")
	return c, nil
}

// Store returns the token store.
func (c *Client) Store() *TokenStore { return c.store }

// URL resolves path against the base URL.
func (c *Client) URL(path string) string {
	u := *c.base
	ref, err := url.Parse(path)
	if err != nil {
		u.Path += path
		return u.String()
	}
	return u.ResolveReference(ref).String()
}

// LoginURL is where a user without a usable token must go.
func (c *Client) LoginURL() string { return c.URL(LoginPath) }

// HTTPClient returns a client whose requests carry the bearer token and recover from one expiry.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Transport: &Transport{Base: c.http.Transport, Client: c},
		Timeout:   c.http.Timeout,
	}
}

// EnsureToken returns the cached token, fetching one from the cookie session when none is cached.
// A 401 clears the store and returns ErrLoginRequired.
func (c *Client) EnsureToken(ctx context.Context) (string, error) {
	if t := c.store.Token(); t != "" {
		return t, nil
	}
	t, err := c.fetchToken(ctx)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
			c.logger.Info("no session, login required")
			_ = c.store.Clear()
			return "", ErrLoginRequired
		}
		_ = c.store.Clear()
		return "", err
	}
	return t, nil
}

// TryToken restores a token without forcing a login: first from the cookie session, then from the
// refresh token already cached. It reports false when neither works.
func (c *Client) TryToken(ctx context.Context) (bool, error) {
	_, err := c.fetchToken(ctx)
	if err == nil {
		return true, nil
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		_ = c.store.Clear()
		return false, err
	}
	c.logger.Debug("session token failed, trying refresh token")
	if _, err := c.Refresh(ctx); err != nil {
		if errors.Is(err, ErrLoginRequired) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Refresh exchanges the cached refresh token for a new access token. Concurrent callers share one
// request. Any failure clears the store; a 401 returns ErrLoginRequired.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.refreshFrom(ctx, "")
}

// refreshFrom refreshes unless the cached token already differs from stale, which means another
// request refreshed after stale was sent. The shared request is detached from the cancellation of
// whichever caller started it; each caller stops waiting when its own ctx is done.
func (c *Client) refreshFrom(ctx context.Context, stale string) (string, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.refresh.DoChan("refresh", func() (interface{}, error) {
		if cur := c.store.Token(); stale != "" && cur != "" && cur != stale {
			return cur, nil
		}
		return c.doRefresh(shared)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) doRefresh(ctx context.Context) (string, error) {
	rt := c.store.RefreshToken()
	if rt == "" {
		_ = c.store.Clear()
		return "", ErrLoginRequired
	}
	body, err := json.Marshal(map[string]string{"refresh_token": rt})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(TokenPath), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	t, err := c.tokenCall(req)
	if err != nil {
		_ = c.store.Clear()
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
			c.logger.Info("refresh rejected, login required", zap.String("reason", se.Message))
			return "", ErrLoginRequired
		}
		return "", err
	}
	c.logger.Debug("access token refreshed")
	return t, nil
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(TokenPath), nil)
	if err != nil {
		return "", err
	}
	return c.tokenCall(req)
}

// tokenCall performs a /auth/token request and stores the returned token.
func (c *Client) tokenCall(req *http.Request) (string, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("empty token in response")
	}
	if err := c.store.Set(out.Token); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return out.Token, nil
}

// Login starts a session by visiting the login endpoint with the session cookie jar. eid is only
// honoured by servers running with forced authentication; CAS deployments answer with a redirect to
// the identity provider, reported as ErrLoginRequired.
func (c *Client) Login(ctx context.Context, eid string) (string, error) {
	if c.http.Jar == nil {
		return "", errors.New("login needs an http client with a cookie jar")
	}
	q := url.Values{}
	if eid != "" {
		q.Set("eid", eid)
	}
	target := c.URL(LoginPath)
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	loc, err := c.visit(ctx, target)
	if err != nil {
		return "", err
	}
	if loc != "/" && loc != c.URL("/") {
		return "", fmt.Errorf("%w: continue at %s", ErrLoginRequired, loc)
	}
	_ = c.store.Clear()
	return c.EnsureToken(ctx)
}

// Logout clears the cached token and ends the server session. It returns where the server sent the
// browser next (the CAS logout page for CAS sessions).
func (c *Client) Logout(ctx context.Context) (string, error) {
	if err := c.store.Clear(); err != nil {
		return "", err
	}
	return c.visit(ctx, c.URL(LogoutPath))
}

// visit GETs target without following redirects and returns the Location header.
func (c *Client) visit(ctx context.Context, target string) (string, error) {
	hc := *c.http
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusSeeOther {
		return "", statusError(resp)
	}
	return resp.Header.Get("Location"), nil
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
	return &StatusError{StatusCode: resp.StatusCode, Message: body.Error}
}

// Do sends a JSON API request through the refreshing transport and decodes a 2xx body into out
// (when out is non-nil). Non-2xx answers return *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
