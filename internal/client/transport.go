package client

import (
	"bytes"
	"io"
	"net/http"
	"strings"
)

// Transport attaches the cached bearer token and, on a 401, refreshes once and replays the request
// once. A second 401 is returned to the caller as is. Requests to /auth/token pass through untouched.
type Transport struct {
	// Base performs the requests. Defaults to http.DefaultTransport.
	Base   http.RoundTripper
	Client *Client
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.HasSuffix(req.URL.Path, TokenPath) {
		return t.base().RoundTrip(req)
	}
	req = req.Clone(req.Context())
	if err := rewindable(req); err != nil {
		return nil, err
	}

	sent := t.Client.store.Token()
	resp, err := t.base().RoundTrip(withBearer(req, sent))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	fresh, err := t.Client.refreshFrom(req.Context(), sent)
	if err != nil {
		return nil, err
	}
	retry := withBearer(req, fresh)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return t.base().RoundTrip(retry)
}

// withBearer clones req with the Authorization header set (or removed when token is empty).
func withBearer(req *http.Request, token string) *http.Request {
	r := req.Clone(req.Context())
	if token == "" {
		r.Header.Del("Authorization")
	} else {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

// rewindable buffers a body that cannot be replayed so the retry can resend it. req must be a clone.
func rewindable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	b, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}
	req.Body = io.NopCloser(bytes.NewReader(b))
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(b)), nil }
	return nil
}
