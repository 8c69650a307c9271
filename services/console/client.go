package console

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fabricclaim/pkg/telemetry"
	"fabricclaim/services/claim"
)

const (
	// SessionTTL is how long a device console login stays valid.
	SessionTTL = 30 * time.Minute

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 2048
)

// Session holds the cookies returned by a successful device console login. It
// is bound to the address it was issued for.
type Session struct {
	Address   string
	Cookies   []*http.Cookie
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session can no longer be used at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Config tunes a Client. Zero values select defaults.
type Config struct {
	Timeout time.Duration
	// Transport overrides the TLS transport; used by tests.
	Transport http.RoundTripper
	Now       func() time.Time
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client talks to fabric interconnect device consoles. Device consoles present
// self-signed certificates, so certificate verification is always off here.
type Client struct {
	http  *http.Client
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient returns a Client configured from cfg.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}

	base := cfg.Transport
	if base == nil {
		base = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, //nolint:gosec
			},
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	return &Client{
		http:  &http.Client{Timeout: cfg.Timeout, Transport: telemetry.Transport(base)},
		now:   cfg.Now,
		sleep: cfg.Sleep,
	}
}

type loginRequest struct {
	User     string `json:"User"`
	Password string `json:"Password"`
}

// Login authenticates against the device console at address. Only HTTP 200 is
// accepted; there is no retry at this layer.
func (c *Client) Login(ctx context.Context, address, username, password string) (*Session, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, &claim.LoginError{Address: address, Err: errors.New("empty address")}
	}

	body, err := json.Marshal(loginRequest{User: username, Password: password})
	if err != nil {
		return nil, &claim.LoginError{Address: address, Err: fmt.Errorf("marshal credentials: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, consoleURL(address, "/Login"), bytes.NewReader(body))
	if err != nil {
		return nil, &claim.LoginError{Address: address, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &claim.LoginError{Address: address, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &claim.LoginError{Address: address, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	issued := c.now()
	return &Session{
		Address:   address,
		Cookies:   resp.Cookies(),
		IssuedAt:  issued,
		ExpiresAt: issued.Add(SessionTTL),
	}, nil
}

// get performs an authenticated GET and decodes a 200 response into dest.
func (c *Client) get(ctx context.Context, session *Session, path string, dest any) error {
	resp, err := c.do(ctx, session, http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("GET %s unexpected status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, session *Session, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, consoleURL(session.Address, path), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept-Language", "application/json")
	for _, cookie := range session.Cookies {
		req.AddCookie(cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) checkSession(session *Session, address string) error {
	if session == nil {
		return errors.New("console session is required")
	}
	if !strings.EqualFold(session.Address, strings.TrimSpace(address)) {
		return fmt.Errorf("console session for %s cannot be used for %s", session.Address, address)
	}
	if session.Expired(c.now()) {
		return fmt.Errorf("console session for %s expired at %s", session.Address, session.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func consoleURL(address, path string) string {
	return "https://" + strings.TrimRight(address, "/") + path
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
