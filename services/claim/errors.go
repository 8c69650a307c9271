package claim

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks missing or unreadable configuration and credential material.
	ErrConfiguration = errors.New("configuration error")
	// ErrPlatformUnavailable marks a failed platform reachability check.
	ErrPlatformUnavailable = errors.New("management platform unavailable")
)

// LoginError is returned when the device console rejects or never answers a login.
type LoginError struct {
	Address string
	Status  int
	Body    string
	Err     error
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login to %s: %v", e.Address, e.Err)
	}
	return fmt.Sprintf("login to %s: unexpected status %d: %s", e.Address, e.Status, e.Body)
}

func (e *LoginError) Unwrap() error { return e.Err }

// ResolutionKind names which half of the device identity could not be read.
type ResolutionKind string

const (
	IdentifierUnavailable ResolutionKind = "identifier_unavailable"
	TokenUnavailable      ResolutionKind = "token_unavailable"
)

// ResolutionError is returned when the device identifier or claim token cannot be read.
type ResolutionError struct {
	Kind    ResolutionKind
	Address string
	Err     error
}

func (e *ResolutionError) Error() string {
	what := "device identifier"
	if e.Kind == TokenUnavailable {
		what = "claim token"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable on %s", what, e.Address)
	}
	return fmt.Sprintf("%s unavailable on %s: %v", what, e.Address, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// NotFoundError is returned when no platform object matches a lookup.
type NotFoundError struct {
	APIPath      string
	Field        string
	Value        string
	Organization string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("no object at %s with %s %q", e.APIPath, e.Field, e.Value)
	if e.Organization != "" {
		msg += fmt.Sprintf(" in organization %q", e.Organization)
	}
	return msg
}

// SubmissionError is returned for platform responses that are neither success nor conflict.
type SubmissionError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Status, strings.TrimSpace(e.Body))
}
