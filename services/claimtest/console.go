// Package claimtest provides in-process fakes of a device console and of the
// management platform API for tests.
package claimtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

const consoleCookie = "sessionId"

// Console is a fake device console served over TLS with a self-signed certificate.
type Console struct {
	Server *httptest.Server

	mu             sync.Mutex
	username       string
	password       string
	identifier     string
	token          string
	tokenFailures  int
	loginStatus    int
	identStatus    int
	connectStatus  int
	requests       []string
	connectCalls   int
	sessionCounter int
	sessions       map[string]struct{}
}

// ConsoleOption customises a fake console.
type ConsoleOption func(*Console)

// WithCredentials sets the accepted username and password.
func WithCredentials(username, password string) ConsoleOption {
	return func(c *Console) { c.username, c.password = username, password }
}

// WithIdentity sets the device identifier and claim token the connector reports.
func WithIdentity(identifier, token string) ConsoleOption {
	return func(c *Console) { c.identifier, c.token = identifier, token }
}

// WithTokenFailures makes the first n token reads fail with 404.
func WithTokenFailures(n int) ConsoleOption {
	return func(c *Console) { c.tokenFailures = n }
}

// WithLoginStatus forces the login endpoint to answer with status.
func WithLoginStatus(status int) ConsoleOption {
	return func(c *Console) { c.loginStatus = status }
}

// WithIdentifierStatus forces the device identifier endpoint to answer with status.
func WithIdentifierStatus(status int) ConsoleOption {
	return func(c *Console) { c.identStatus = status }
}

// WithConnectStatus forces the connector refresh endpoint to answer with status.
func WithConnectStatus(status int) ConsoleOption {
	return func(c *Console) { c.connectStatus = status }
}

// NewConsole starts a fake device console. Close it with Close.
func NewConsole(opts ...ConsoleOption) *Console {
	c := &Console{
		username:   "admin",
		password:   "password",
		identifier: "FCH1234",
		token:      "TOK-ABC",
		sessions:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	r := chi.NewRouter()
	r.Use(c.record)
	r.Post("/Login", c.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(c.requireSession)
		r.Get("/connector/DeviceIdentifiers", c.handleIdentifiers)
		r.Get("/connector/SecurityTokens", c.handleTokens)
		r.Post("/connector/Connect", c.handleConnect)
		r.Get("/connector/Systems", c.handleSystems)
	})

	c.Server = httptest.NewTLSServer(r)
	return c
}

// Address returns the host:port the console listens on.
func (c *Console) Address() string {
	return strings.TrimPrefix(c.Server.URL, "https://")
}

// Close stops the server.
func (c *Console) Close() { c.Server.Close() }

// Requests returns "METHOD /path" for every request served, in order.
func (c *Console) Requests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.requests...)
}

// ConnectCalls returns how many connector refreshes were requested.
func (c *Console) ConnectCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectCalls
}

func (c *Console) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.requests = append(c.requests, r.Method+" "+r.URL.Path)
		c.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (c *Console) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(consoleCookie)
		c.mu.Lock()
		_, ok := c.sessions[cookieValue(cookie, err)]
		c.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "not logged in"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Console) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		User     string `json:"User"`
		Password string `json:"Password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loginStatus != 0 {
		writeJSON(w, c.loginStatus, map[string]string{"message": "login rejected"})
		return
	}
	if body.User != c.username || body.Password != c.password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
		return
	}

	c.sessionCounter++
	value := "session-" + strconv.Itoa(c.sessionCounter)
	c.sessions[value] = struct{}{}
	http.SetCookie(w, &http.Cookie{Name: consoleCookie, Value: value, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (c *Console) handleIdentifiers(w http.ResponseWriter, _ *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identStatus != 0 {
		writeJSON(w, c.identStatus, map[string]string{"message": "identifier unavailable"})
		return
	}
	if c.identifier == "" {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, []map[string]string{{"Id": c.identifier}})
}

func (c *Console) handleTokens(w http.ResponseWriter, _ *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokenFailures > 0 {
		c.tokenFailures--
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "token not generated"})
		return
	}
	writeJSON(w, http.StatusOK, []map[string]any{{"Token": c.token, "Duration": 600}})
}

func (c *Console) handleConnect(w http.ResponseWriter, _ *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connectCalls++
	if c.connectStatus != 0 {
		writeJSON(w, c.connectStatus, map[string]string{"message": "connect failed"})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (c *Console) handleSystems(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]any{{
		"Serial":          []string{"FDO1", "FDO2"},
		"PlatformType":    "UCSFIISM",
		"ConnectionState": "Connected",
	}})
}

func cookieValue(c *http.Cookie, err error) string {
	if err != nil || c == nil {
		return ""
	}
	return c.Value
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
