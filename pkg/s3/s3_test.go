package s3

import (
	"context"
	"net/url"
	"testing"
	"time"
)

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		endpoint   string
		disableTLS bool
		want       string
	}{
		{"", false, ""},
		{"minio:9000", false, "https://minio:9000"},
		{"minio:9000", true, "http://minio:9000"},
		{"http://minio:9000", false, "http://minio:9000"},
		{" https://s3.example.com ", true, "https://s3.example.com"},
	}
	for _, tt := range tests {
		if got := normalizeEndpoint(tt.endpoint, tt.disableTLS); got != tt.want {
			t.Errorf("normalizeEndpoint(%q, %v) = %q, want %q", tt.endpoint, tt.disableTLS, got, tt.want)
		}
	}
}

func TestEncodeSHA256(t *testing.T) {
	got, err := encodeSHA256("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	if err != nil {
		t.Fatalf("encodeSHA256: %v", err)
	}
	if want := "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU="; got != want {
		t.Fatalf("encodeSHA256 = %q, want %q", got, want)
	}
	if _, err := encodeSHA256(""); err == nil {
		t.Fatal("empty digest accepted")
	}
	if _, err := encodeSHA256("zz"); err == nil {
		t.Fatal("non-hex digest accepted")
	}
}

func TestNewClientRejectsHalfCredentials(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{AccessKey: "only"}); err == nil {
		t.Fatal("NewClient accepted an access key without a secret")
	}
}

func TestPresignGet(t *testing.T) {
	c, err := NewClient(context.Background(), Config{
		Endpoint:       "minio:9000",
		DisableTLS:     true,
		ForcePathStyle: true,
		AccessKey:      "AKIDEXAMPLE",
		SecretKey:      "secret",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	raw, err := c.PresignGet(context.Background(), "reports", "reports/run.json.zst", 24*time.Hour)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	if u.Scheme != "http" || u.Host != "minio:9000" {
		t.Errorf("unexpected endpoint in %q", raw)
	}
	if u.Path != "/reports/reports/run.json.zst" {
		t.Errorf("path = %q", u.Path)
	}
	if got := u.Query().Get("X-Amz-Expires"); got != "86400" {
		t.Errorf("X-Amz-Expires = %q, want 86400", got)
	}
}
