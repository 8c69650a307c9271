package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"fabricclaim/services/claim"
)

const (
	// OrganizationsPath lists organizations.
	OrganizationsPath = "organization/Organizations"
	// DefaultOrganization is the organization every account starts with.
	DefaultOrganization = "default"
)

// LookupKey names the field and value used to find an existing object.
type LookupKey struct {
	Field string
	Value string
}

// ObjectRef is a reference from one platform object to another.
type ObjectRef struct {
	Moid       string `json:"Moid"`
	ObjectType string `json:"ObjectType,omitempty"`
}

// ListEntry is the subset of an object listing used for lookups.
type ListEntry struct {
	Moid         string     `json:"Moid"`
	Name         string     `json:"Name,omitempty"`
	SerialNumber string     `json:"SerialNumber,omitempty"`
	Organization *ObjectRef `json:"Organization,omitempty"`
}

func (e ListEntry) value(field string) string {
	switch field {
	case "Moid":
		return e.Moid
	case "SerialNumber":
		return e.SerialNumber
	default:
		return e.Name
	}
}

func (e ListEntry) hasOrganization() bool {
	return e.Organization != nil && e.Organization.Moid != ""
}

// List returns every object at apiPath as a single page.
func (s *Session) List(ctx context.Context, apiPath string) ([]ListEntry, error) {
	status, body, err := s.Call(ctx, http.MethodGet, apiPath, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, &claim.SubmissionError{Method: http.MethodGet, Path: apiPath, Status: status, Body: truncate(body)}
	}

	var list struct {
		Results []ListEntry `json:"Results"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode %s listing: %w", apiPath, err)
	}
	return list.Results, nil
}

// FindMoid returns the identifier of the first object at apiPath matching key.
// When listed objects belong to organizations, only objects in organization
// qualify; the organization itself is matched by name alone.
func (s *Session) FindMoid(ctx context.Context, key LookupKey, apiPath, organization string) (string, error) {
	if organization == "" {
		organization = DefaultOrganization
	}

	entries, err := s.List(ctx, apiPath)
	if err != nil {
		return "", err
	}

	scoped := false
	for _, e := range entries {
		if e.hasOrganization() {
			scoped = true
			break
		}
	}

	orgMoid := ""
	if scoped {
		orgMoid, err = s.findOrganization(ctx, organization)
		if err != nil {
			return "", err
		}
	}

	for _, e := range entries {
		if e.value(key.Field) != key.Value {
			continue
		}
		if scoped && (!e.hasOrganization() || e.Organization.Moid != orgMoid) {
			continue
		}
		return e.Moid, nil
	}

	notFound := &claim.NotFoundError{APIPath: apiPath, Field: key.Field, Value: key.Value}
	if scoped {
		notFound.Organization = organization
	}
	return "", notFound
}

func (s *Session) findOrganization(ctx context.Context, name string) (string, error) {
	orgs, err := s.List(ctx, OrganizationsPath)
	if err != nil {
		return "", fmt.Errorf("resolve organization %q: %w", name, err)
	}
	for _, org := range orgs {
		if org.Name == name {
			return org.Moid, nil
		}
	}
	return "", &claim.NotFoundError{APIPath: OrganizationsPath, Field: "Name", Value: name}
}
