package platform

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"fabricclaim/services/claim"
)

// DeviceClaimsPath is the collection device claims are created in.
const DeviceClaimsPath = "asset/DeviceClaims"

// deviceClaim has no Name; the serial number is its correlating field.
type deviceClaim struct {
	claim.Request
}

func (d deviceClaim) LookupKey() LookupKey {
	return LookupKey{Field: "SerialNumber", Value: d.SerialNumber}
}

// Claimer submits device claims to the management platform.
type Claimer struct {
	session      *Session
	organization string
	logger       zerolog.Logger
}

// NewClaimer returns a Claimer using session. organization scopes conflict
// lookups and defaults to DefaultOrganization.
func NewClaimer(session *Session, organization string, logger *zerolog.Logger) *Claimer {
	if organization == "" {
		organization = DefaultOrganization
	}
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Claimer{session: session, organization: organization, logger: l}
}

// CheckAvailability delegates to the session.
func (c *Claimer) CheckAvailability(ctx context.Context) (string, error) {
	return c.session.CheckAvailability(ctx)
}

// Claim submits req for the device at address. Invalid requests fail without
// contacting the platform.
func (c *Claimer) Claim(ctx context.Context, address string, req claim.Request) claim.Outcome {
	if err := req.Validate(); err != nil {
		return claim.Failed(address, fmt.Errorf("refusing to submit claim: %w", err))
	}

	res, err := c.session.Upsert(ctx, DeviceClaimsPath, deviceClaim{req}, c.organization)
	if err != nil {
		return claim.Failed(address, fmt.Errorf("claim %s: %w", req.SerialNumber, err))
	}

	switch res.Action {
	case ActionUpdated:
		c.logger.Info().Str("address", address).Str("moid", res.Moid).Msg("existing device claim updated")
		return claim.UpdatedExisting(address, res.Moid)
	default:
		return claim.Claimed(address, res.Moid)
	}
}
