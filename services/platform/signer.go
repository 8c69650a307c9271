package platform

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/go-fed/httpsig"
)

const ageHeader = "age-encryption.org/v1"

var signedHeaders = []string{httpsig.RequestTarget, "host", "date", "digest"}

// RequestSigner adds authentication to an outgoing platform request.
type RequestSigner interface {
	Sign(req *http.Request, body []byte) error
}

// Signer signs platform requests with an API key, using HTTP message
// signatures over the request target, host, date and body digest.
type Signer struct {
	keyID     string
	key       crypto.PrivateKey
	algorithm httpsig.Algorithm
	scheme    string
	now       func() time.Time
}

// NewSigner parses a PEM private key. RSA keys (v2 API keys) sign with
// rsa-sha256. EC keys (v3 API keys) sign with ECDSA P-256/SHA-256 and are
// advertised under the hs2019 scheme, which the platform requires for them.
func NewSigner(keyID string, pemData []byte) (*Signer, error) {
	if strings.TrimSpace(keyID) == "" {
		return nil, errors.New("api key id is required")
	}

	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("api key is not PEM encoded")
	}

	var (
		key any
		err error
	)
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported api key block %q", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parse api key: %w", err)
	}

	s := &Signer{keyID: keyID, key: key, now: time.Now}
	switch key.(type) {
	case *rsa.PrivateKey:
		s.algorithm = httpsig.RSA_SHA256
		s.scheme = string(httpsig.RSA_SHA256)
	case *ecdsa.PrivateKey:
		s.algorithm = httpsig.ECDSA_SHA256
		s.scheme = SchemeHS2019
	default:
		return nil, fmt.Errorf("unsupported api key type %T", key)
	}
	return s, nil
}

// SchemeHS2019 is the algorithm parameter sent for EC keys.
const SchemeHS2019 = "hs2019"

// Algorithm returns the algorithm parameter advertised for the key.
func (s *Signer) Algorithm() string { return s.scheme }

// Sign sets the Date and Host headers and an Authorization signature on req.
// body must be the exact bytes sent; nil is treated as empty.
func (s *Signer) Sign(req *http.Request, body []byte) error {
	if s == nil {
		return errors.New("nil signer")
	}
	if body == nil {
		body = []byte{}
	}

	req.Header.Set("Date", s.now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Del("Digest")

	// httpsig signers are not safe for concurrent use, so one is built per request.
	signer, _, err := httpsig.NewSigner([]httpsig.Algorithm{s.algorithm}, httpsig.DigestSha256, signedHeaders, httpsig.Authorization, 0)
	if err != nil {
		return fmt.Errorf("create http signer: %w", err)
	}
	if err := signer.SignRequest(s.key, s.keyID, req, body); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	if s.scheme != string(s.algorithm) {
		auth := req.Header.Get("Authorization")
		req.Header.Set("Authorization", strings.Replace(auth,
			`algorithm="`+string(s.algorithm)+`"`, `algorithm="`+s.scheme+`"`, 1))
	}
	return nil
}

// ReadKeyFile reads a PEM API key from path. Files encrypted with age (binary
// or armored) are decrypted with ageIdentity, an AGE-SECRET-KEY-1... string.
func ReadKeyFile(path, ageIdentity string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read api key: %w", err)
	}
	return decryptKey(data, ageIdentity)
}

func decryptKey(data []byte, ageIdentity string) ([]byte, error) {
	var src io.Reader
	switch {
	case bytes.HasPrefix(data, []byte(armor.Header)):
		src = armor.NewReader(bytes.NewReader(data))
	case bytes.HasPrefix(data, []byte(ageHeader)):
		src = bytes.NewReader(data)
	default:
		return data, nil
	}

	if strings.TrimSpace(ageIdentity) == "" {
		return nil, errors.New("api key is age encrypted but no age identity is configured")
	}
	identity, err := age.ParseX25519Identity(strings.TrimSpace(ageIdentity))
	if err != nil {
		return nil, fmt.Errorf("parse age identity: %w", err)
	}

	r, err := age.Decrypt(src, identity)
	if err != nil {
		return nil, fmt.Errorf("decrypt api key: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decrypt api key: %w", err)
	}
	return plain, nil
}
