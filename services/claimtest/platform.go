package claimtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// APIPrefix is the path prefix the fake platform serves under.
const APIPrefix = "/api/v1"

// Object is a stored platform object.
type Object struct {
	Moid          string
	Name          string
	SerialNumber  string
	SecurityToken string
	OrgMoid       string
}

// Platform is a fake management platform API.
type Platform struct {
	Server *httptest.Server

	mu            sync.Mutex
	accountName   string
	accountStatus int
	claimStatus   int
	updateStatus  int
	nextMoid      int
	claims        []Object
	orgs          []Object
	requests      []string
	unsigned      int
}

// PlatformOption customises a fake platform.
type PlatformOption func(*Platform)

// WithAccountStatus forces the account endpoint to answer with status.
func WithAccountStatus(status int) PlatformOption {
	return func(p *Platform) { p.accountStatus = status }
}

// WithClaimStatus forces device claim creation to answer with status.
func WithClaimStatus(status int) PlatformOption {
	return func(p *Platform) { p.claimStatus = status }
}

// WithUpdateStatus forces device claim updates to answer with status.
func WithUpdateStatus(status int) PlatformOption {
	return func(p *Platform) { p.updateStatus = status }
}

// WithExistingClaim seeds a device claim object.
func WithExistingClaim(obj Object) PlatformOption {
	return func(p *Platform) { p.claims = append(p.claims, obj) }
}

// WithOrganization seeds an organization object.
func WithOrganization(name, moid string) PlatformOption {
	return func(p *Platform) { p.orgs = append(p.orgs, Object{Name: name, Moid: moid}) }
}

// NewPlatform starts a fake management platform over TLS.
func NewPlatform(opts ...PlatformOption) *Platform {
	p := &Platform{accountName: "lab-account"}
	for _, opt := range opts {
		opt(p)
	}

	r := chi.NewRouter()
	r.Use(p.record)
	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/iam/Accounts", p.handleAccounts)
		r.Get("/organization/Organizations", p.handleOrganizations)
		r.Get("/asset/DeviceClaims", p.handleListClaims)
		r.Post("/asset/DeviceClaims", p.handleCreateClaim)
		r.Post("/asset/DeviceClaims/{moid}", p.handleUpdateClaim)
	})

	p.Server = httptest.NewTLSServer(r)
	return p
}

// BaseURL returns the API base URL including the version prefix.
func (p *Platform) BaseURL() string { return p.Server.URL + APIPrefix }

// Close stops the server.
func (p *Platform) Close() { p.Server.Close() }

// Requests returns "METHOD /path" for every request served, in order.
func (p *Platform) Requests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.requests...)
}

// UnsignedRequests counts requests that arrived without a signature.
func (p *Platform) UnsignedRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unsigned
}

// Claims returns the stored device claims.
func (p *Platform) Claims() []Object {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Object(nil), p.claims...)
}

func (p *Platform) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.requests = append(p.requests, r.Method+" "+strings.TrimPrefix(r.URL.Path, APIPrefix))
		signed := strings.HasPrefix(r.Header.Get("Authorization"), "Signature ")
		if !signed {
			p.unsigned++
		}
		p.mu.Unlock()
		if !signed {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "missing signature"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Platform) handleAccounts(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accountStatus != 0 {
		writeJSON(w, p.accountStatus, map[string]string{"message": "account unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, results([]map[string]any{{"Name": p.accountName, "Moid": "account-1"}}))
}

func (p *Platform) handleOrganizations(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := make([]map[string]any, 0, len(p.orgs))
	for _, org := range p.orgs {
		entries = append(entries, map[string]any{"Name": org.Name, "Moid": org.Moid})
	}
	writeJSON(w, http.StatusOK, results(entries))
}

func (p *Platform) handleListClaims(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := make([]map[string]any, 0, len(p.claims))
	for _, obj := range p.claims {
		entry := map[string]any{"Moid": obj.Moid, "SerialNumber": obj.SerialNumber}
		if obj.Name != "" {
			entry["Name"] = obj.Name
		}
		if obj.OrgMoid != "" {
			entry["Organization"] = map[string]any{"Moid": obj.OrgMoid, "ObjectType": "organization.Organization"}
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, results(entries))
}

func (p *Platform) handleCreateClaim(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SerialNumber  string `json:"SerialNumber"`
		SecurityToken string `json:"SecurityToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.claimStatus != 0 {
		writeJSON(w, p.claimStatus, map[string]string{"message": "claim rejected"})
		return
	}
	for _, obj := range p.claims {
		if obj.SerialNumber == body.SerialNumber {
			writeJSON(w, http.StatusConflict, map[string]string{"code": "InvalidRequest", "message": "object already exists"})
			return
		}
	}

	p.nextMoid++
	obj := Object{
		Moid:          fmt.Sprintf("moid-%d", p.nextMoid),
		SerialNumber:  body.SerialNumber,
		SecurityToken: body.SecurityToken,
	}
	p.claims = append(p.claims, obj)
	writeJSON(w, http.StatusCreated, map[string]any{"Moid": obj.Moid, "SerialNumber": obj.SerialNumber})
}

func (p *Platform) handleUpdateClaim(w http.ResponseWriter, r *http.Request) {
	moid := chi.URLParam(r, "moid")
	var body struct {
		SerialNumber  string `json:"SerialNumber"`
		SecurityToken string `json:"SecurityToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.updateStatus != 0 {
		writeJSON(w, p.updateStatus, map[string]string{"message": "update rejected"})
		return
	}
	for i, obj := range p.claims {
		if obj.Moid == moid {
			p.claims[i].SecurityToken = body.SecurityToken
			writeJSON(w, http.StatusOK, map[string]any{"Moid": moid, "SerialNumber": obj.SerialNumber})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "no such object"})
}

func results(entries []map[string]any) map[string]any {
	if entries == nil {
		entries = []map[string]any{}
	}
	return map[string]any{"ObjectType": "mo.List", "Results": entries}
}
