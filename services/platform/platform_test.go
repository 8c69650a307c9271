package platform

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fabricclaim/services/claim"
	"fabricclaim/services/claimtest"
)

func newTestSession(t *testing.T, fake *claimtest.Platform) *Session {
	t.Helper()
	session, err := NewSession(Config{
		BaseURL:            fake.BaseURL(),
		Signer:             testSigner(t),
		InsecureSkipVerify: true,
		Timeout:            5 * time.Second,
	})
	require.NoError(t, err)
	return session
}

func TestNewSessionValidatesConfig(t *testing.T) {
	_, err := NewSession(Config{BaseURL: DefaultBaseURL})
	require.Error(t, err)

	_, err = NewSession(Config{BaseURL: "ftp://example.com", Signer: testSigner(t)})
	require.Error(t, err)

	s, err := NewSession(Config{Signer: testSigner(t)})
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, s.BaseURL())
}

func TestCheckAvailability(t *testing.T) {
	fake := claimtest.NewPlatform()
	defer fake.Close()

	name, err := newTestSession(t, fake).CheckAvailability(context.Background())
	require.NoError(t, err)
	require.Equal(t, "lab-account", name)
	require.Zero(t, fake.UnsignedRequests())
}

func TestCheckAvailabilityFailures(t *testing.T) {
	fake := claimtest.NewPlatform(claimtest.WithAccountStatus(http.StatusUnauthorized))
	defer fake.Close()

	_, err := newTestSession(t, fake).CheckAvailability(context.Background())
	require.ErrorIs(t, err, claim.ErrPlatformUnavailable)

}

func TestSessionVerifiesCertificatesByDefault(t *testing.T) {
	fake := claimtest.NewPlatform()
	defer fake.Close()

	verifying, err := NewSession(Config{BaseURL: fake.BaseURL(), Signer: testSigner(t)})
	require.NoError(t, err)
	_, err = verifying.CheckAvailability(context.Background())
	require.ErrorIs(t, err, claim.ErrPlatformUnavailable)
	require.Empty(t, fake.Requests(), "self-signed certificate must be rejected before any request is served")

	skipping, err := NewSession(Config{BaseURL: fake.BaseURL(), Signer: testSigner(t), InsecureSkipVerify: true})
	require.NoError(t, err)
	_, err = skipping.CheckAvailability(context.Background())
	require.NoError(t, err)
}

var testRequest = claim.Request{SerialNumber: "FCH1234", SecurityToken: "TOK-ABC"}

func TestClaimFreshDevice(t *testing.T) {
	fake := claimtest.NewPlatform()
	defer fake.Close()

	outcome := NewClaimer(newTestSession(t, fake), "", nil).Claim(context.Background(), "10.0.0.5", testRequest)

	require.Equal(t, claim.KindClaimed, outcome.Kind)
	require.Equal(t, "10.0.0.5", outcome.Address)
	require.NotEmpty(t, outcome.Moid)
	require.Equal(t, []string{"POST /asset/DeviceClaims"}, fake.Requests())
}

func TestClaimExistingDeviceUpdates(t *testing.T) {
	fake := claimtest.NewPlatform(claimtest.WithExistingClaim(claimtest.Object{
		Moid:          "moid-999",
		SerialNumber:  "FCH1234",
		SecurityToken: "OLD",
	}))
	defer fake.Close()

	outcome := NewClaimer(newTestSession(t, fake), "", nil).Claim(context.Background(), "10.0.0.5", testRequest)

	require.Equal(t, claim.KindUpdatedExisting, outcome.Kind)
	require.Equal(t, "moid-999", outcome.Moid)
	require.Equal(t, []string{
		"POST /asset/DeviceClaims",
		"GET /asset/DeviceClaims",
		"POST /asset/DeviceClaims/moid-999",
	}, fake.Requests())
	require.Equal(t, "TOK-ABC", fake.Claims()[0].SecurityToken)
}

func TestClaimIsIdempotent(t *testing.T) {
	fake := claimtest.NewPlatform()
	defer fake.Close()

	claimer := NewClaimer(newTestSession(t, fake), "", nil)
	first := claimer.Claim(context.Background(), "10.0.0.5", testRequest)
	second := claimer.Claim(context.Background(), "10.0.0.5", testRequest)

	require.Equal(t, claim.KindClaimed, first.Kind)
	require.Equal(t, claim.KindUpdatedExisting, second.Kind)
	require.Equal(t, first.Moid, second.Moid)
	require.Len(t, fake.Claims(), 1)
}

func TestClaimFailures(t *testing.T) {
	tests := []struct {
		name      string
		opts      []claimtest.PlatformOption
		request   claim.Request
		wantErr   any
		wantCalls []string
	}{
		{
			name:      "server error is not retried",
			opts:      []claimtest.PlatformOption{claimtest.WithClaimStatus(http.StatusInternalServerError)},
			request:   testRequest,
			wantErr:   &claim.SubmissionError{},
			wantCalls: []string{"POST /asset/DeviceClaims"},
		},
		{
			name:      "conflict without a matching object",
			opts:      []claimtest.PlatformOption{claimtest.WithClaimStatus(http.StatusConflict)},
			request:   testRequest,
			wantErr:   &claim.NotFoundError{},
			wantCalls: []string{"POST /asset/DeviceClaims", "GET /asset/DeviceClaims"},
		},
		{
			name: "update rejected",
			opts: []claimtest.PlatformOption{
				claimtest.WithExistingClaim(claimtest.Object{Moid: "moid-999", SerialNumber: "FCH1234"}),
				claimtest.WithUpdateStatus(http.StatusForbidden),
			},
			request:   testRequest,
			wantErr:   &claim.SubmissionError{},
			wantCalls: []string{"POST /asset/DeviceClaims", "GET /asset/DeviceClaims", "POST /asset/DeviceClaims/moid-999"},
		},
		{
			name:    "empty token never submitted",
			request: claim.Request{SerialNumber: "FCH1234"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := claimtest.NewPlatform(tt.opts...)
			defer fake.Close()

			outcome := NewClaimer(newTestSession(t, fake), "", nil).Claim(context.Background(), "10.0.0.5", tt.request)

			require.Equal(t, claim.KindFailed, outcome.Kind)
			require.NotEmpty(t, outcome.Reason)
			require.Error(t, outcome.Err)
			switch want := tt.wantErr.(type) {
			case *claim.SubmissionError:
				require.True(t, errors.As(outcome.Err, &want))
			case *claim.NotFoundError:
				require.True(t, errors.As(outcome.Err, &want))
			}
			require.Equal(t, tt.wantCalls, fake.Requests())
		})
	}
}

func TestFindMoidScopesByOrganization(t *testing.T) {
	fake := claimtest.NewPlatform(
		claimtest.WithOrganization("default", "org-default"),
		claimtest.WithOrganization("lab", "org-lab"),
		claimtest.WithExistingClaim(claimtest.Object{Moid: "moid-lab", SerialNumber: "FCH1234", OrgMoid: "org-lab"}),
		claimtest.WithExistingClaim(claimtest.Object{Moid: "moid-default", SerialNumber: "FCH1234", OrgMoid: "org-default"}),
	)
	defer fake.Close()

	session := newTestSession(t, fake)
	key := LookupKey{Field: "SerialNumber", Value: "FCH1234"}

	moid, err := session.FindMoid(context.Background(), key, DeviceClaimsPath, "")
	require.NoError(t, err)
	require.Equal(t, "moid-default", moid)

	moid, err = session.FindMoid(context.Background(), key, DeviceClaimsPath, "lab")
	require.NoError(t, err)
	require.Equal(t, "moid-lab", moid)

	_, err = session.FindMoid(context.Background(), key, DeviceClaimsPath, "missing")
	var notFound *claim.NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, OrganizationsPath, notFound.APIPath)
}

func TestFindMoidFirstMatchWins(t *testing.T) {
	fake := claimtest.NewPlatform(
		claimtest.WithExistingClaim(claimtest.Object{Moid: "moid-1", SerialNumber: "FCH1234"}),
		claimtest.WithExistingClaim(claimtest.Object{Moid: "moid-2", SerialNumber: "FCH1234"}),
	)
	defer fake.Close()

	moid, err := newTestSession(t, fake).FindMoid(context.Background(), LookupKey{Field: "SerialNumber", Value: "FCH1234"}, DeviceClaimsPath, "")
	require.NoError(t, err)
	require.Equal(t, "moid-1", moid)
	require.NotContains(t, fake.Requests(), "GET /organization/Organizations")
}

func TestDocumentLookupKey(t *testing.T) {
	require.Equal(t, LookupKey{Field: "Name", Value: "fi-policy"}, Document{"Name": "fi-policy"}.LookupKey())
	require.Equal(t, LookupKey{Field: "Name", Value: "object"}, Document{"Description": "x"}.LookupKey())
}
