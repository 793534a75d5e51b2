// Package auth implements the credential lifecycle for the JustLog client:
// PKCE authorization-code login against the hosted identity provider,
// identity-token claim validation, exchange of the short-lived access token
// for a long-lived API key, and selection of the credential attached to
// outbound API requests.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// defaultVerifierBytes is the number of random bytes drawn for a code
// verifier. Hex encoding doubles it, yielding a 128-character verifier.
const defaultVerifierBytes = 64

// PKCECodes holds a PKCE code verifier and its derived S256 challenge,
// following RFC 7636. The verifier stays with the client; only the challenge
// travels in the authorization request.
type PKCECodes struct {
	CodeVerifier  string
	CodeChallenge string
}

// GeneratePKCECodes creates a fresh verifier/challenge pair for a login flow.
func GeneratePKCECodes() (*PKCECodes, error) {
	verifier, err := NewCodeVerifier(defaultVerifierBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return &PKCECodes{
		CodeVerifier:  verifier,
		CodeChallenge: DeriveCodeChallenge(verifier),
	}, nil
}

// NewCodeVerifier draws byteLength bytes from the CSPRNG and hex-encodes
// them, producing a verifier of 2*byteLength lowercase hex characters.
func NewCodeVerifier(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("invalid verifier byte length: %d", byteLength)
	}
	bytes := make([]byte, byteLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// DeriveCodeChallenge computes the S256 challenge for a verifier: SHA-256
// over the verifier bytes, base64url-encoded without padding.
func DeriveCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
