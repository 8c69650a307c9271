package ledger

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabricclaim/services/claim"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultLimit},
		{-3, DefaultLimit},
		{7, 7},
		{maxLimit, maxLimit},
		{maxLimit + 1, maxLimit},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, clampLimit(tt.in))
		})
	}
}

func TestAttemptForSuccess(t *testing.T) {
	runID := uuid.New()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	row := attemptFor(runID, claim.UpdatedExisting("10.0.0.5", "moid-999"), at)

	assert.Equal(t, runID, row.RunID)
	assert.Equal(t, "10.0.0.5", row.Address)
	assert.Equal(t, "updated_existing", row.Outcome)
	assert.Equal(t, "moid-999", row.Moid)
	assert.Empty(t, row.Reason)
	assert.Nil(t, row.Detail)
	assert.Equal(t, at, row.RecordedAt)
}

func TestAttemptForFailureDetail(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want map[string]any
	}{
		{
			name: "login status",
			err:  &claim.LoginError{Address: "10.0.0.5", Status: 401, Body: "denied"},
			want: map[string]any{"stage": "login", "status": 401},
		},
		{
			name: "login transport",
			err:  &claim.LoginError{Address: "10.0.0.5", Err: errors.New("connection refused")},
			want: map[string]any{"stage": "login"},
		},
		{
			name: "token unavailable",
			err:  &claim.ResolutionError{Kind: claim.TokenUnavailable, Address: "10.0.0.5", Err: errors.New("503")},
			want: map[string]any{"stage": "resolve", "unavailable": "token_unavailable"},
		},
		{
			name: "wrapped submission",
			err:  fmt.Errorf("claim FCH1234: %w", &claim.SubmissionError{Method: "POST", Path: "asset/DeviceClaims", Status: 403}),
			want: map[string]any{"stage": "submit", "method": "POST", "path": "asset/DeviceClaims", "status": 403},
		},
		{
			name: "not found",
			err:  &claim.NotFoundError{APIPath: "asset/DeviceClaims", Field: "SerialNumber", Value: "FCH1234"},
			want: map[string]any{"stage": "lookup", "api_path": "asset/DeviceClaims"},
		},
		{
			name: "other",
			err:  errors.New("boom"),
			want: map[string]any{"stage": "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := attemptFor(uuid.New(), claim.Failed("10.0.0.5", tt.err), time.Now())
			require.Equal(t, "failed", row.Outcome)
			require.Equal(t, tt.err.Error(), row.Reason)
			require.Equal(t, tt.want, map[string]any(row.Detail))
		})
	}
}

func TestAttemptDetailOmitsIdentity(t *testing.T) {
	err := &claim.NotFoundError{APIPath: "asset/DeviceClaims", Field: "SerialNumber", Value: "FCH1234"}
	row := attemptFor(uuid.New(), claim.Failed("10.0.0.5", err), time.Now())

	for _, v := range row.Detail {
		assert.NotEqual(t, "FCH1234", v)
	}
}
