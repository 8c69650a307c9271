package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fabricclaim/services/claim"
)

// RefreshSettle is the wait between asking the connector to reconnect and
// reading the claim token again.
const RefreshSettle = 5 * time.Second

const (
	deviceIdentifiersPath = "/connector/DeviceIdentifiers"
	securityTokensPath    = "/connector/SecurityTokens"
	connectPath           = "/connector/Connect"
)

type deviceIdentifier struct {
	ID string `json:"Id"`
}

type securityToken struct {
	Token string `json:"Token"`
}

// ResolveIdentity reads the device identifier and claim token from the device
// connector at address. A failed token read triggers one connector refresh
// followed by exactly one more read.
func (c *Client) ResolveIdentity(ctx context.Context, session *Session, address string) (claim.DeviceIdentity, error) {
	if err := c.checkSession(session, address); err != nil {
		return claim.DeviceIdentity{}, &claim.ResolutionError{Kind: claim.IdentifierUnavailable, Address: address, Err: err}
	}

	identifier, err := c.readIdentifier(ctx, session)
	if err != nil {
		return claim.DeviceIdentity{}, &claim.ResolutionError{Kind: claim.IdentifierUnavailable, Address: address, Err: err}
	}

	token, err := c.readToken(ctx, session)
	if err != nil {
		token, err = c.refreshToken(ctx, session, err)
		if err != nil {
			return claim.DeviceIdentity{}, &claim.ResolutionError{Kind: claim.TokenUnavailable, Address: address, Err: err}
		}
	}

	return claim.DeviceIdentity{Identifier: identifier, ClaimToken: token}, nil
}

func (c *Client) refreshToken(ctx context.Context, session *Session, first error) (string, error) {
	if err := c.reconnect(ctx, session); err != nil {
		return "", fmt.Errorf("token read failed (%v); connector refresh: %w", first, err)
	}
	if err := c.sleep(ctx, RefreshSettle); err != nil {
		return "", fmt.Errorf("waiting for connector refresh: %w", err)
	}
	token, err := c.readToken(ctx, session)
	if err != nil {
		return "", fmt.Errorf("token read after connector refresh: %w", err)
	}
	return token, nil
}

func (c *Client) readIdentifier(ctx context.Context, session *Session) (string, error) {
	var ids []deviceIdentifier
	if err := c.get(ctx, session, deviceIdentifiersPath, &ids); err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", errors.New("device identifier list is empty")
	}
	id := strings.TrimSpace(ids[0].ID)
	if id == "" {
		return "", errors.New("device identifier is empty")
	}
	return id, nil
}

func (c *Client) readToken(ctx context.Context, session *Session) (string, error) {
	var tokens []securityToken
	if err := c.get(ctx, session, securityTokensPath, &tokens); err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", errors.New("security token list is empty")
	}
	token := strings.TrimSpace(tokens[0].Token)
	if token == "" {
		return "", errors.New("security token is empty")
	}
	return token, nil
}

// reconnect asks the device connector to reconnect, which regenerates the claim token.
func (c *Client) reconnect(ctx context.Context, session *Session) error {
	resp, err := c.do(ctx, session, http.MethodPost, connectPath)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("POST %s unexpected status %d: %s", connectPath, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
