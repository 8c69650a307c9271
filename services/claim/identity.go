package claim

import (
	"errors"
	"strings"
)

// DeviceIdentity is the pair read from a device connector that the management
// platform needs to claim the device. It is never persisted.
type DeviceIdentity struct {
	Identifier string
	ClaimToken string
}

// Validate reports whether both halves of the identity are present.
func (d DeviceIdentity) Validate() error {
	if strings.TrimSpace(d.Identifier) == "" {
		return errors.New("device identifier is empty")
	}
	if strings.TrimSpace(d.ClaimToken) == "" {
		return errors.New("claim token is empty")
	}
	return nil
}

// MaskedToken returns the claim token with all but the last four characters hidden.
func (d DeviceIdentity) MaskedToken() string {
	if len(d.ClaimToken) <= 4 {
		return strings.Repeat("*", len(d.ClaimToken))
	}
	return strings.Repeat("*", len(d.ClaimToken)-4) + d.ClaimToken[len(d.ClaimToken)-4:]
}

// Request is the device claim payload submitted to the management platform.
type Request struct {
	SerialNumber  string `json:"SerialNumber"`
	SecurityToken string `json:"SecurityToken"`
}

// NewRequest derives the wire payload from a resolved identity.
func NewRequest(identity DeviceIdentity) (Request, error) {
	if err := identity.Validate(); err != nil {
		return Request{}, err
	}
	return Request{
		SerialNumber:  identity.Identifier,
		SecurityToken: identity.ClaimToken,
	}, nil
}

// Validate rejects requests that must never reach the platform.
func (r Request) Validate() error {
	return DeviceIdentity{Identifier: r.SerialNumber, ClaimToken: r.SecurityToken}.Validate()
}
