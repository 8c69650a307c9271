package platform

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fabricclaim/pkg/telemetry"
)

const (
	// DefaultBaseURL is the SaaS management platform endpoint.
	DefaultBaseURL = "https://intersight.com/api/v1"

	defaultTimeout  = 60 * time.Second
	maxResponseBody = 8 << 20
)

// Config configures a Session.
type Config struct {
	BaseURL string
	Signer  RequestSigner
	// InsecureSkipVerify disables certificate verification. The zero value verifies.
	InsecureSkipVerify bool
	Timeout            time.Duration
	// Transport overrides the TLS transport; used by tests.
	Transport http.RoundTripper
	Logger    *zerolog.Logger
}

// Session is an authenticated client for the management platform API. It is
// immutable after construction and safe for concurrent use.
type Session struct {
	baseURL *url.URL
	signer  RequestSigner
	http    *http.Client
	logger  zerolog.Logger
}

// NewSession validates cfg and builds a Session.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Signer == nil {
		return nil, errors.New("request signer is required")
	}
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "https" && base.Scheme != "http" {
		return nil, fmt.Errorf("base url must be http(s): %s", raw)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url missing host: %s", raw)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec
			},
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Session{
		baseURL: base,
		signer:  cfg.Signer,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: telemetry.Transport(transport)},
		logger:  logger,
	}, nil
}

// BaseURL returns the API base URL.
func (s *Session) BaseURL() string { return s.baseURL.String() }

// Call sends a signed request to path (relative to the base URL) and returns
// the status code and response body. Non-2xx statuses are not errors here.
func (s *Session) Call(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal body: %w", err)
		}
		payload = data
	}

	req, err := http.NewRequestWithContext(ctx, method, s.resolve(path), bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := s.signer.Sign(req, payload); err != nil {
		return 0, nil, err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	s.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("platform call")
	return resp.StatusCode, data, nil
}

func (s *Session) resolve(path string) string {
	return s.baseURL.String() + "/" + strings.TrimLeft(path, "/")
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
