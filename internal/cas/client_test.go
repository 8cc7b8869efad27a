package cas

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

const successXML = `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
  <cas:authenticationSuccess>
    <cas:user>russfeld</cas:user>
    <cas:attributes>
      <cas:displayName>Russell Feldhausen</cas:displayName>
    </cas:attributes>
  </cas:authenticationSuccess>
</cas:serviceResponse>`

const failureXML = `<cas:serviceResponse xmlns:cas="http://www.yale.edu/tp/cas">
  <cas:authenticationFailure code="INVALID_TICKET">Ticket ST-1 not recognized</cas:authenticationFailure>
</cas:serviceResponse>`

func newCASServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/p3/serviceValidate" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("service") != "http://app.test/auth/login" {
			w.Write([]byte(failureXML))
			return
		}
		switch r.URL.Query().Get("ticket") {
		case "ST-good":
			w.Write([]byte(successXML))
		case "ST-garbage":
			w.Write([]byte("<html>oops"))
		default:
			w.Write([]byte(failureXML))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidate(t *testing.T) {
	srv := newCASServer(t)
	c, err := New(Config{URL: srv.URL + "/login", ServiceURL: "http://app.test/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	service := c.Service("/auth/login")

	p, err := c.Validate(context.Background(), "ST-good", service)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.User != "russfeld" {
		t.Errorf("User = %q, want russfeld", p.User)
	}
	if p.Attributes["displayName"] != "Russell Feldhausen" {
		t.Errorf("Attributes = %v", p.Attributes)
	}

	if _, err := c.Validate(context.Background(), "ST-bad", service); !errors.Is(err, ErrTicketRejected) {
		t.Errorf("bad ticket: want ErrTicketRejected, got %v", err)
	}
	if _, err := c.Validate(context.Background(), "ST-garbage", service); !errors.Is(err, ErrBadResponse) {
		t.Errorf("garbage: want ErrBadResponse, got %v", err)
	}
	if _, err := c.Validate(context.Background(), "", service); !errors.Is(err, ErrTicketRejected) {
		t.Errorf("empty ticket: want ErrTicketRejected, got %v", err)
	}
}

func TestURLs(t *testing.T) {
	c, err := New(Config{URL: "https://cas.example.edu/cas/", ServiceURL: "https://app.example.edu"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	login, _ := url.Parse(c.LoginURL(c.Service("/auth/login")))
	if login.Path != "/cas/login" || login.Query().Get("service") != "https://app.example.edu/auth/login" {
		t.Errorf("LoginURL = %s", login)
	}
	logout, _ := url.Parse(c.LogoutURL("https://app.example.edu/"))
	if logout.Path != "/cas/logout" || logout.Query().Get("service") != "https://app.example.edu/" {
		t.Errorf("LogoutURL = %s", logout)
	}
}

func TestDevMode(t *testing.T) {
	c, err := New(Config{DevMode: true, DevUser: "dev-admin"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	user, on := c.DevUser()
	if !on || user != "dev-admin" {
		t.Fatalf("DevUser = %q, %v", user, on)
	}
	p, err := c.Validate(context.Background(), "", "")
	if err != nil || p.User != "dev-admin" {
		t.Fatalf("Validate = %+v, %v", p, err)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New(Config{URL: "not a url"}); err == nil {
		t.Fatal("New with invalid URL should fail")
	}
}
