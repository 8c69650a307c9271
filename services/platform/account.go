package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"fabricclaim/services/claim"
)

const accountsPath = "iam/Accounts"

// CheckAvailability verifies the API answers and the key's account is
// readable. It returns the account name.
func (s *Session) CheckAvailability(ctx context.Context) (string, error) {
	status, body, err := s.Call(ctx, http.MethodGet, accountsPath, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", claim.ErrPlatformUnavailable, err)
	}
	if !isSuccess(status) {
		return "", fmt.Errorf("%w: GET %s unexpected status %d: %s", claim.ErrPlatformUnavailable, accountsPath, status, strings.TrimSpace(truncate(body)))
	}

	var list struct {
		Results []struct {
			Name string `json:"Name"`
		} `json:"Results"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return "", fmt.Errorf("%w: decode account list: %v", claim.ErrPlatformUnavailable, err)
	}
	if len(list.Results) == 0 {
		return "", fmt.Errorf("%w: account list is empty", claim.ErrPlatformUnavailable)
	}
	return list.Results[0].Name, nil
}

func truncate(body []byte) string {
	const limit = 2048
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}
