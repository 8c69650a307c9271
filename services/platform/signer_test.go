package platform

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/go-fed/httpsig"
	"github.com/stretchr/testify/require"
)

func ecKeyPEM(t *testing.T) ([]byte, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), key
}

func testSigner(t *testing.T) *Signer {
	t.Helper()
	pemData, _ := ecKeyPEM(t)
	signer, err := NewSigner("account/user/key", pemData)
	require.NoError(t, err)
	return signer
}

func TestNewSignerSelectsAlgorithm(t *testing.T) {
	ecPEM, _ := ecKeyPEM(t)
	ecSigner, err := NewSigner("key-v3", ecPEM)
	require.NoError(t, err)
	require.Equal(t, SchemeHS2019, ecSigner.Algorithm())

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rsaPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey)})
	rsaSigner, err := NewSigner("key-v2", rsaPEM)
	require.NoError(t, err)
	require.Equal(t, string(httpsig.RSA_SHA256), rsaSigner.Algorithm())
}

func TestNewSignerRejectsBadInput(t *testing.T) {
	ecPEM, _ := ecKeyPEM(t)

	_, err := NewSigner("", ecPEM)
	require.Error(t, err)

	_, err = NewSigner("key", []byte("not a key"))
	require.Error(t, err)

	_, err = NewSigner("key", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1}}))
	require.Error(t, err)
}

func TestSignProducesVerifiableSignature(t *testing.T) {
	ecPEM, key := ecKeyPEM(t)
	signer, err := NewSigner("account/user/key", ecPEM)
	require.NoError(t, err)

	body := []byte(`{"SerialNumber":"FCH1234","SecurityToken":"TOK-ABC"}`)
	req, err := http.NewRequest(http.MethodPost, "https://intersight.com/api/v1/asset/DeviceClaims", bytes.NewReader(body))
	require.NoError(t, err)

	require.NoError(t, signer.Sign(req, body))
	require.True(t, strings.HasPrefix(req.Header.Get("Authorization"), "Signature "))
	require.NotEmpty(t, req.Header.Get("Digest"))
	require.NotEmpty(t, req.Header.Get("Date"))

	verifier, err := httpsig.NewVerifier(asVerifiable(req, httpsig.ECDSA_SHA256))
	require.NoError(t, err)
	require.Equal(t, "account/user/key", verifier.KeyId())
	require.NoError(t, verifier.Verify(key.Public(), httpsig.ECDSA_SHA256))

	// Signing the same request again replaces the digest instead of failing.
	require.NoError(t, signer.Sign(req, body))
}

func TestSignAdvertisesSchemePerKeyType(t *testing.T) {
	ecPEM, _ := ecKeyPEM(t)
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rsaPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey)})

	tests := []struct {
		name    string
		pem     []byte
		want    string
		notWant string
	}{
		{name: "ec key v3", pem: ecPEM, want: `algorithm="hs2019"`, notWant: `algorithm="ecdsa-sha256"`},
		{name: "rsa key v2", pem: rsaPEM, want: `algorithm="rsa-sha256"`, notWant: `algorithm="hs2019"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := NewSigner("account/user/key", tt.pem)
			require.NoError(t, err)

			req, err := http.NewRequest(http.MethodGet, "https://intersight.com/api/v1/iam/Accounts", nil)
			require.NoError(t, err)
			require.NoError(t, signer.Sign(req, nil))

			auth := req.Header.Get("Authorization")
			require.Contains(t, auth, tt.want)
			require.NotContains(t, auth, tt.notWant)
			require.Contains(t, auth, `keyId="account/user/key"`)
		})
	}
}

func TestSignRSAVerifies(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rsaPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey)})
	signer, err := NewSigner("key-v2", rsaPEM)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "https://intersight.com/api/v1/iam/Accounts", nil)
	require.NoError(t, err)
	require.NoError(t, signer.Sign(req, nil))

	verifier, err := httpsig.NewVerifier(req)
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(rsaKey.Public(), httpsig.RSA_SHA256))
}

// asVerifiable returns a copy of req whose algorithm parameter names the
// concrete algorithm, so the httpsig verifier can check the signature.
func asVerifiable(req *http.Request, algo httpsig.Algorithm) *http.Request {
	clone := req.Clone(req.Context())
	auth := strings.Replace(req.Header.Get("Authorization"), `algorithm="`+SchemeHS2019+`"`, `algorithm="`+string(algo)+`"`, 1)
	clone.Header.Set("Authorization", auth)
	return clone
}

func TestReadKeyFile(t *testing.T) {
	plain, _ := ecKeyPEM(t)
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	encrypt := func(armored bool) []byte {
		var buf bytes.Buffer
		var dst io.Writer = &buf
		var aw io.WriteCloser
		if armored {
			aw = armor.NewWriter(&buf)
			dst = aw
		}
		w, err := age.Encrypt(dst, identity.Recipient())
		require.NoError(t, err)
		_, err = w.Write(plain)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		if aw != nil {
			require.NoError(t, aw.Close())
		}
		return buf.Bytes()
	}

	tests := []struct {
		name     string
		data     []byte
		identity string
		wantErr  bool
	}{
		{name: "plain pem", data: plain},
		{name: "age binary", data: encrypt(false), identity: identity.String()},
		{name: "age armored", data: encrypt(true), identity: identity.String()},
		{name: "age without identity", data: encrypt(false), wantErr: true},
		{name: "age with bad identity", data: encrypt(false), identity: "AGE-SECRET-KEY-BOGUS", wantErr: true},
	}

	dir := t.TempDir()
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "key-"+string(rune('a'+i)))
			require.NoError(t, os.WriteFile(path, tt.data, 0o600))

			got, err := ReadKeyFile(path, tt.identity)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, plain, got)
		})
	}

	_, err = ReadKeyFile(filepath.Join(dir, "missing"), "")
	require.Error(t, err)
}
