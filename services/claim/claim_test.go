package claim

import (
	"errors"
	"testing"
)

func TestNewRequest(t *testing.T) {
	tests := []struct {
		name     string
		identity DeviceIdentity
		want     Request
		wantErr  bool
	}{
		{
			name:     "complete identity",
			identity: DeviceIdentity{Identifier: "FCH1234", ClaimToken: "TOK-ABC"},
			want:     Request{SerialNumber: "FCH1234", SecurityToken: "TOK-ABC"},
		},
		{
			name:     "missing identifier",
			identity: DeviceIdentity{ClaimToken: "TOK-ABC"},
			wantErr:  true,
		},
		{
			name:     "blank token",
			identity: DeviceIdentity{Identifier: "FCH1234", ClaimToken: "  "},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewRequest(tt.identity)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got != tt.want {
				t.Fatalf("NewRequest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMaskedToken(t *testing.T) {
	tests := map[string]string{
		"":        "",
		"abc":     "***",
		"TOK-ABC": "***-ABC",
	}
	for token, want := range tests {
		got := DeviceIdentity{ClaimToken: token}.MaskedToken()
		if got != want {
			t.Errorf("MaskedToken(%q) = %q, want %q", token, got, want)
		}
	}
}

func TestSummarize(t *testing.T) {
	outcomes := []Outcome{
		Claimed("10.0.0.5", ""),
		UpdatedExisting("10.0.0.6", "moid-999"),
		Failed("10.0.0.7", errors.New("boom")),
	}

	got := Summarize(outcomes)
	want := Summary{Total: 3, Claimed: 1, Updated: 1, Failed: 1}
	if got != want {
		t.Fatalf("Summarize() = %+v, want %+v", got, want)
	}
}

func TestOutcomeSucceeded(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    bool
	}{
		{Claimed("10.0.0.5", "moid-1"), true},
		{UpdatedExisting("10.0.0.5", "moid-999"), true},
		{Failed("10.0.0.5", errors.New("boom")), false},
		{Outcome{Address: "10.0.0.5"}, false},
	}
	for _, tt := range tests {
		if got := tt.outcome.Succeeded(); got != tt.want {
			t.Errorf("%+v.Succeeded() = %v, want %v", tt.outcome, got, tt.want)
		}
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection refused")

	var err error = &LoginError{Address: "10.0.0.5", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("LoginError does not unwrap to its cause")
	}

	err = &ResolutionError{Kind: TokenUnavailable, Address: "10.0.0.5", Err: cause}
	var resErr *ResolutionError
	if !errors.As(err, &resErr) || resErr.Kind != TokenUnavailable {
		t.Fatalf("errors.As(ResolutionError) failed for %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("ResolutionError does not unwrap to its cause")
	}
}
