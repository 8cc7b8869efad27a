package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"outreach-tracker/backend/internal/policy/engine"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func serve(t *testing.T, s *Server) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, resp
}

func TestServer_Healthy(t *testing.T) {
	s := NewServer(map[string]Checker{
		"db":     DBChecker(fakePinger{}),
		"policy": engine.SetAuthorizer{},
		"skip":   nil,
	}, nil)
	code, resp := serve(t, s)
	if code != http.StatusOK || resp.Status != "ok" {
		t.Fatalf("got %d %+v", code, resp)
	}
	if len(resp.Checks) != 2 || resp.Checks["db"] != "ok" || resp.Checks["policy"] != "ok" {
		t.Errorf("checks = %v", resp.Checks)
	}
}

func TestServer_Unhealthy(t *testing.T) {
	s := NewServer(map[string]Checker{
		"db":     DBChecker(fakePinger{err: errors.New("connection refused")}),
		"policy": CheckFunc(func(context.Context) error { return nil }),
	}, nil)
	code, resp := serve(t, s)
	if code != http.StatusServiceUnavailable || resp.Status != "unavailable" {
		t.Fatalf("got %d %+v", code, resp)
	}
	if resp.Checks["db"] != "connection refused" || resp.Checks["policy"] != "ok" {
		t.Errorf("checks = %v", resp.Checks)
	}
}

func TestServer_NoChecks(t *testing.T) {
	code, resp := serve(t, NewServer(nil, nil))
	if code != http.StatusOK || resp.Status != "ok" {
		t.Errorf("got %d %+v", code, resp)
	}
}
