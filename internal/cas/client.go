// Package cas is a CAS 3.0 protocol client: login bounce URLs, service ticket validation and logout URLs.
package cas

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrTicketRejected is returned when CAS answers with authenticationFailure.
	ErrTicketRejected = errors.New("cas: ticket rejected")
	// ErrBadResponse is returned when the validation response cannot be understood.
	ErrBadResponse = errors.New("cas: malformed validation response")
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Config configures a Client.
type Config struct {
	// URL is the CAS server base, e.g. https://testcas.cs.ksu.edu. A trailing /login is ignored.
	URL string
	// ServiceURL is the externally visible base URL of this application.
	ServiceURL string
	// DevMode skips CAS entirely and authenticates every bounce as DevUser.
	DevMode bool
	DevUser string
	// HTTPClient is used for ticket validation. Defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

// Principal is the identity CAS confirmed.
type Principal struct {
	User       string
	Attributes map[string]string
}

// Client talks to one CAS server on behalf of one service.
type Client struct {
	base       *url.URL
	serviceURL string
	devMode    bool
	devUser    string
	http       *http.Client
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSuffix(strings.TrimRight(cfg.URL, "/"), "/login")
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		if !cfg.DevMode {
			return nil, fmt.Errorf("cas: invalid CAS URL %q", cfg.URL)
		}
		base = &url.URL{}
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		base:       base,
		serviceURL: strings.TrimRight(cfg.ServiceURL, "/"),
		devMode:    cfg.DevMode,
		devUser:    cfg.DevUser,
		http:       hc,
	}, nil
}

// DevUser returns the configured dev-mode user and whether dev mode is on.
func (c *Client) DevUser() (string, bool) {
	return c.devUser, c.devMode
}

// Service returns the service identifier CAS should return to for path (e.g. /auth/login).
func (c *Client) Service(path string) string {
	return c.serviceURL + path
}

// LoginURL is where the browser is bounced to authenticate for service.
func (c *Client) LoginURL(service string) string {
	return c.endpoint("/login", url.Values{"service": {service}})
}

// LogoutURL ends the CAS single sign-on session and returns the browser to returnTo.
func (c *Client) LogoutURL(returnTo string) string {
	q := url.Values{}
	if returnTo != "" {
		q.Set("service", returnTo)
	}
	return c.endpoint("/logout", q)
}

// Validate exchanges a service ticket for the authenticated principal using /p3/serviceValidate.
func (c *Client) Validate(ctx context.Context, ticket, service string) (*Principal, error) {
	if c.devMode {
		return &Principal{User: c.devUser, Attributes: map[string]string{}}, nil
	}
	if ticket == "" {
		return nil, ErrTicketRejected
	}
	endpoint := c.endpoint("/p3/serviceValidate", url.Values{"service": {service}, "ticket": {ticket}})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cas: validate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cas: validate: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("cas: validate: %w", err)
	}
	return parseServiceResponse(body)
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String()
}

type serviceResponse struct {
	XMLName xml.Name `xml:"serviceResponse"`
	Success *struct {
		User       string `xml:"user"`
		Attributes struct {
			Values []attribute `xml:",any"`
		} `xml:"attributes"`
	} `xml:"authenticationSuccess"`
	Failure *struct {
		Code    string `xml:"code,attr"`
		Message string `xml:",chardata"`
	} `xml:"authenticationFailure"`
}

type attribute struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

func parseServiceResponse(body []byte) (*Principal, error) {
	var sr serviceResponse
	if err := xml.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if sr.Failure != nil {
		return nil, fmt.Errorf("%w: %s %s", ErrTicketRejected, sr.Failure.Code, strings.TrimSpace(sr.Failure.Message))
	}
	if sr.Success == nil || strings.TrimSpace(sr.Success.User) == "" {
		return nil, ErrBadResponse
	}
	p := &Principal{
		User:       strings.TrimSpace(sr.Success.User),
		Attributes: make(map[string]string, len(sr.Success.Attributes.Values)),
	}
	for _, a := range sr.Success.Attributes.Values {
		p.Attributes[a.XMLName.Local] = strings.TrimSpace(a.Value)
	}
	return p, nil
}
